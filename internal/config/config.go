// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Mongo    MongoConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Limits   LimitsConfig
	Reviews  ReviewsConfig
	Logging  LoggingConfig
	GRPCPort int // grpc.health.v1 listener; 0 disables it
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// MongoConfig describes connectivity to MongoDB.
type MongoConfig struct {
	URI      string
	Database string
}

// JWTConfig holds the signing keyring. Keys maps kid to secret.
type JWTConfig struct {
	Keys      map[string]string
	ActiveKid string
	TTL       time.Duration
}

// RedisConfig enables the shared presence store when Addr is set.
type RedisConfig struct {
	Addr        string
	Password    string
	PresenceTTL time.Duration
}

// LimitsConfig sets per-key rates.
type LimitsConfig struct {
	AuthPerMinute   int // register/login per email or IP
	WSSendPerMinute int // send_message per websocket connection
}

// ReviewsConfig toggles the dual-direction rating model.
type ReviewsConfig struct {
	Bidirectional bool
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultPort            = 5000
	defaultDatabase        = "skillswap"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultJWTTTL          = 24 * time.Hour
	defaultPresenceTTL     = 2 * time.Minute
	defaultAuthRPM         = 10
	defaultWSSendRPM       = 120
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
	defaultKid             = "default"
)

// Load reads configuration from environment variables, applying defaults.
// Missing required values are reported by Validate, so command-line flags
// may fill them in between the two calls.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			ReadTimeout:    defaultReadTimeout,
			WriteTimeout:   defaultWriteTimeout,
			IdleTimeout:    defaultIdleTimeout,
			AllowedOrigins: splitCSV(valueOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: valueOrDefault("MONGODB_DATABASE", defaultDatabase),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Limits: LimitsConfig{
			AuthPerMinute:   parseIntWithDefault("RATE_LIMIT_RPM", defaultAuthRPM),
			WSSendPerMinute: parseIntWithDefault("WS_SEND_RPM", defaultWSSendRPM),
		},
		Reviews: ReviewsConfig{
			Bidirectional: parseBoolWithDefault("REVIEWS_BIDIRECTIONAL", false),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	var err error
	if cfg.HTTP.Port, err = parsePort("PORT", defaultPort); err != nil {
		return Config{}, err
	}
	if cfg.GRPCPort, err = parsePort("GRPC_HEALTH_PORT", 0); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.JWT.TTL, err = parseDuration("JWT_TTL", defaultJWTTTL); err != nil {
		return Config{}, err
	}
	if cfg.Redis.PresenceTTL, err = parseDuration("PRESENCE_TTL", defaultPresenceTTL); err != nil {
		return Config{}, err
	}

	// JWT_KEYS ("kid:secret,kid:secret") takes precedence over JWT_SECRET
	if raw := os.Getenv("JWT_KEYS"); raw != "" {
		keys, err := parseKeyring(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.JWT.Keys = keys
		cfg.JWT.ActiveKid = os.Getenv("JWT_ACTIVE_KID")
	} else if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Keys = map[string]string{defaultKid: secret}
		cfg.JWT.ActiveKid = defaultKid
	}

	return cfg, nil
}

// Validate reports missing or inconsistent required settings.
func (c Config) Validate() error {
	var errs []error
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("MONGODB_URI is required"))
	}
	if len(c.JWT.Keys) == 0 {
		errs = append(errs, errors.New("JWT_SECRET or JWT_KEYS is required"))
	} else if _, ok := c.JWT.Keys[c.JWT.ActiveKid]; !ok {
		errs = append(errs, fmt.Errorf("JWT_ACTIVE_KID %q is not in JWT_KEYS", c.JWT.ActiveKid))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.HTTP.Port))
	}
	return errors.Join(errs...)
}

func parseKeyring(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, pair := range splitCSV(raw) {
		kid, secret, ok := strings.Cut(pair, ":")
		kid, secret = strings.TrimSpace(kid), strings.TrimSpace(secret)
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry %q (want kid:secret)", pair)
		}
		keys[kid] = secret
	}
	return keys, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port < 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
