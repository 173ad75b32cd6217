package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthServiceName is reported alongside the overall ("") status.
const healthServiceName = "skillswap.API"

const (
	healthInterval  = 15 * time.Second
	grpcStopTimeout = 5 * time.Second
)

// newHealthServer returns a gRPC server exposing grpc.health.v1.Health.
func newHealthServer(logger *slog.Logger) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(logger),
			loggingUnaryInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			recoveryStreamInterceptor(logger),
			loggingStreamInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

// checkHealth pings the database once and publishes the result.
func checkHealth(ctx context.Context, hs *health.Server, db pinger, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := db.Ping(ctx); err != nil {
		logger.Warn("database unreachable", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(healthServiceName, st)
}

// watchHealth refreshes the health status every interval until ctx ends,
// then marks everything NOT_SERVING.
func watchHealth(ctx context.Context, hs *health.Server, db pinger, interval time.Duration, logger *slog.Logger) {
	checkHealth(ctx, hs, db, logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			checkHealth(ctx, hs, db, logger)
		case <-ctx.Done():
			hs.Shutdown()
			return
		}
	}
}

// serveGRPC serves gs on port until ctx is cancelled.
func serveGRPC(ctx context.Context, port int, gs *grpc.Server, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc health server listening", "addr", lis.Addr().String())
		errCh <- gs.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down grpc health server")
		// open Watch streams never finish on their own
		stopped := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(grpcStopTimeout):
			gs.Stop()
		}
		return nil
	}
}
