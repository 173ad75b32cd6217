package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/config"

	"github.com/google/uuid"
)

func setupRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}
	r, err := New(context.Background(), config.RedisConfig{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNewDisabled(t *testing.T) {
	if _, err := New(context.Background(), config.RedisConfig{}, nil); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestPresenceLastConnectionWins(t *testing.T) {
	r := setupRedis(t)
	p := r.NewPresenceStore(time.Minute)
	ctx := context.Background()
	user := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = r.client.Del(ctx, presenceKey(user)).Err() })

	if err := p.SetOnline(ctx, user, "c1"); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	if err := p.SetOnline(ctx, user, "c2"); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}

	// the replaced connection cannot clear the new mapping
	if err := p.SetOffline(ctx, user, "c1"); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	if got, _ := p.Connection(ctx, user); got != "c2" {
		t.Fatalf("expected c2 to own presence, got %q", got)
	}

	if err := p.Refresh(ctx, user, "c2"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := p.SetOffline(ctx, user, "c2"); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	if got, _ := p.Connection(ctx, user); got != "" {
		t.Fatalf("expected offline, got %q", got)
	}
}

func TestPresenceExpires(t *testing.T) {
	r := setupRedis(t)
	p := r.NewPresenceStore(200 * time.Millisecond)
	ctx := context.Background()
	user := "test-" + uuid.NewString()

	_ = p.SetOnline(ctx, user, "c1")
	time.Sleep(400 * time.Millisecond)
	if got, _ := p.Connection(ctx, user); got != "" {
		t.Fatalf("entry should have expired, got %q", got)
	}
}
