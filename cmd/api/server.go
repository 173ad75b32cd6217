package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/auth"
	"github.com/PaulBabatuyi/skillswap/internal/config"
	"github.com/PaulBabatuyi/skillswap/internal/conversation"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/matching"
	"github.com/PaulBabatuyi/skillswap/internal/messaging"
	"github.com/PaulBabatuyi/skillswap/internal/middleware"
	"github.com/PaulBabatuyi/skillswap/internal/notify"
	"github.com/PaulBabatuyi/skillswap/internal/realtime"
	"github.com/PaulBabatuyi/skillswap/internal/review"
	"github.com/PaulBabatuyi/skillswap/internal/skills"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store is every persistence operation the API needs. The Mongo-backed
// mongoStore and datatest.Store both satisfy it.
type Store interface {
	matching.Store
	conversation.Store
	messaging.Store
	review.Store
	skills.Store
	notify.Store

	CreateUser(ctx context.Context, email, name, hashedPassword string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
}

// mongoStore joins the per-collection stores into one Store.
type mongoStore struct {
	*data.UsersStore
	*data.SkillsStore
	*data.MatchesStore
	*data.MessagesStore
	*data.NotificationsStore
	*data.ReviewsStore
}

// pinger reports whether the database is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the services behind the REST and websocket routes.
type Server struct {
	store Store
	auth  *auth.JWTManager
	db    pinger

	hub           *realtime.Hub
	ws            http.Handler
	matches       *matching.Engine
	conversations *conversation.Service
	messages      *messaging.Service
	reviews       *review.Service
	skills        *skills.Service
	notifications *notify.Service

	limiter        *middleware.LimiterStore
	allowedOrigins []string
	logger         *slog.Logger
}

// serverDeps are the process-level dependencies newServer wires together.
type serverDeps struct {
	store    Store
	jwt      *auth.JWTManager
	db       pinger
	presence realtime.Presence
	cfg      config.Config
	logger   *slog.Logger
}

// newServer returns a ready-to-use Server. Call Close to stop background work.
func newServer(d serverDeps) *Server {
	logger := logging.OrDiscard(d.logger)

	hub := realtime.NewHub(d.presence, logger.With("component", "realtime"))
	notifier := notify.New(d.store, hub, logger.With("component", "notify"))
	msgs := messaging.New(d.store, logger.With("component", "messaging"),
		messaging.WithDelivery(hub),
		messaging.WithNotifier(notifier))

	s := &Server{
		store:         d.store,
		auth:          d.jwt,
		db:            d.db,
		hub:           hub,
		matches:       matching.New(d.store, notifier, msgs, logger.With("component", "matching")),
		conversations: conversation.New(d.store, logger.With("component", "conversation")),
		messages:      msgs,
		reviews: review.New(d.store, notifier, logger.With("component", "review"),
			review.WithBidirectional(d.cfg.Reviews.Bidirectional)),
		skills:         skills.New(d.store, notifier, logger.With("component", "skills")),
		notifications:  notifier,
		limiter:        middleware.NewLimiterStore(d.cfg.Limits.AuthPerMinute, 3, time.Minute),
		allowedOrigins: d.cfg.HTTP.AllowedOrigins,
		logger:         logger,
	}
	s.ws = realtime.NewHandler(hub, msgs, logger.With("component", "websocket"),
		realtime.WithSendRate(d.cfg.Limits.WSSendPerMinute),
		realtime.WithCheckOrigin(s.checkOrigin))
	return s
}

// Close stops the rate limiter's cleanup loop.
func (s *Server) Close() {
	s.limiter.Stop()
}

// serveHTTP runs the HTTP server until ctx is cancelled, then drains it.
func serveHTTP(ctx context.Context, cfg config.HTTPConfig, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// me returns the authenticated user's id. Routes behind RequireAuth always
// carry one.
func me(r *http.Request) bson.ObjectID {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}
