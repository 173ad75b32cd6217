package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/auth"
	"github.com/PaulBabatuyi/skillswap/internal/cache"
	"github.com/PaulBabatuyi/skillswap/internal/config"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/db"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/realtime"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := parseFlags(os.Args[1:], &cfg); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "flags: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

// parseFlags lets command-line flags override the environment.
func parseFlags(args []string, cfg *config.Config) error {
	fs := pflag.NewFlagSet("api", pflag.ContinueOnError)
	fs.StringVar(&cfg.Mongo.URI, "mongo-uri", cfg.Mongo.URI, "MongoDB connection string (MONGODB_URI)")
	fs.StringVar(&cfg.Mongo.Database, "mongo-db", cfg.Mongo.Database, "MongoDB database name (MONGODB_DATABASE)")
	fs.IntVar(&cfg.HTTP.Port, "port", cfg.HTTP.Port, "HTTP listen port (PORT)")
	fs.IntVar(&cfg.GRPCPort, "grpc-health-port", cfg.GRPCPort, "gRPC health listen port, 0 disables (GRPC_HEALTH_PORT)")
	fs.IntVar(&cfg.Limits.AuthPerMinute, "rate-limit-rpm", cfg.Limits.AuthPerMinute, "register/login requests per minute per email or IP (RATE_LIMIT_RPM)")
	fs.StringVar(&cfg.Redis.Addr, "redis-addr", cfg.Redis.Addr, "Redis address for shared presence, empty keeps it in memory (REDIS_ADDR)")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug, info, warn or error (LOG_LEVEL)")
	return fs.Parse(args)
}

// run connects the backing stores, serves until ctx is cancelled and then
// shuts everything down.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dbClient.Close(closeCtx); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}()

	// Ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		return err
	}

	store := &mongoStore{
		UsersStore:         data.NewUsersStore(dbClient.UsersCollection()),
		SkillsStore:        data.NewSkillsStore(dbClient.SkillsCollection()),
		MatchesStore:       data.NewMatchesStore(dbClient.MatchesCollection()),
		MessagesStore:      data.NewMessagesStore(dbClient.MessagesCollection()),
		NotificationsStore: data.NewNotificationsStore(dbClient.NotificationsCollection()),
		ReviewsStore:       data.NewReviewsStore(dbClient.ReviewsCollection()),
	}

	var presence realtime.Presence
	rdb, err := cache.New(ctx, cfg.Redis, logger)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logger.Info("redis not configured, presence is kept in memory")
		presence = realtime.NewMemoryPresence(cfg.Redis.PresenceTTL)
	case err != nil:
		return err
	default:
		defer rdb.Close()
		presence = rdb.NewPresenceStore(cfg.Redis.PresenceTTL)
	}

	jwtMgr := auth.NewJWTManagerFromKeys(cfg.JWT.Keys, cfg.JWT.ActiveKid, cfg.JWT.TTL)

	srv := newServer(serverDeps{
		store:    store,
		jwt:      jwtMgr,
		db:       dbClient,
		presence: presence,
		cfg:      cfg,
		logger:   logger,
	})
	defer srv.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(ctx, cfg.HTTP, srv.routes(), logger)
	})
	if cfg.GRPCPort > 0 {
		gs, hs := newHealthServer(logger.With("component", "grpc"))
		g.Go(func() error {
			watchHealth(ctx, hs, dbClient, healthInterval, logger)
			return nil
		})
		g.Go(func() error {
			return serveGRPC(ctx, cfg.GRPCPort, gs, logger)
		})
	}
	return g.Wait()
}
