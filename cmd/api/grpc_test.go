package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func TestHealthService(t *testing.T) {
	logger := logging.Discard()
	lis := bufconn.Listen(bufSize)
	gs, hs := newHealthServer(logger)
	go func() {
		_ = gs.Serve(lis)
	}()
	defer gs.Stop()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		return resp.GetStatus()
	}

	db := &fakePinger{}
	checkHealth(ctx, hs, db, logger)
	for _, svc := range []string{"", healthServiceName} {
		if got := check(svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("%q: got %v, want SERVING", svc, got)
		}
	}

	db.set(errors.New("no reachable servers"))
	checkHealth(ctx, hs, db, logger)
	if got := check(healthServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("got %v, want NOT_SERVING", got)
	}

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown.Service"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("unknown service: got %v, want NotFound", err)
	}
}

func TestWatchHealthShutsDown(t *testing.T) {
	logger := logging.Discard()
	_, hs := newHealthServer(logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchHealth(ctx, hs, &fakePinger{}, time.Hour, logger)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchHealth did not return after cancel")
	}

	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: healthServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after shutdown: got %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestRecoveryInterceptors(t *testing.T) {
	logger := logging.Discard()

	unary := recoveryUnaryInterceptor(logger)
	_, err := unary(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Panic"},
		func(context.Context, any) (any, error) { panic("boom") })
	if status.Code(err) != codes.Internal {
		t.Fatalf("unary: got %v, want Internal", err)
	}

	stream := recoveryStreamInterceptor(logger)
	err = stream(nil, nil, &grpc.StreamServerInfo{FullMethod: "/test/PanicStream"},
		func(any, grpc.ServerStream) error { panic("boom") })
	if status.Code(err) != codes.Internal {
		t.Fatalf("stream: got %v, want Internal", err)
	}
}
