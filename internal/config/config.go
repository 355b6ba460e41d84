package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the session coordination service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	DevMode          bool

	LogDebug   bool
	LogConsole bool

	AuthJWTSecret string

	DatabaseURL    string
	JoinCodeLength int

	MediaURL       string
	MediaAPIKey    string
	MediaAPISecret string
	MediaTokenTTL  time.Duration
	WebhookVerify  bool

	PresencePollInterval time.Duration
	PresenceGraceWindow  time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "tutorlink"),
		AuthJWTSecret:    stringsTrimSpace("AUTH_JWT_SECRET"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		MediaURL:         envOrDefault("MEDIA_URL", "ws://localhost:7880"),
		MediaAPIKey:      stringsTrimSpace("MEDIA_API_KEY"),
		MediaAPISecret:   stringsTrimSpace("MEDIA_API_SECRET"),
		JoinCodeLength:   8,
		ShutdownTimeout:  15 * time.Second,
		MediaTokenTTL:    6 * time.Hour,
		// Matches the dashboard refresh cadence of the tutor view.
		PresencePollInterval: 5 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MediaTokenTTL, err = durationFromEnv("MEDIA_TOKEN_TTL", cfg.MediaTokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.PresencePollInterval, err = durationFromEnv("PRESENCE_POLL_INTERVAL", cfg.PresencePollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PresenceGraceWindow, err = durationFromEnv("PRESENCE_GRACE_WINDOW", 2*cfg.PresencePollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.JoinCodeLength, err = intFromEnv("JOIN_CODE_LENGTH", cfg.JoinCodeLength)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.DevMode, err = boolFromEnv("APP_DEV_MODE", cfg.DevMode)
	if err != nil {
		return Config{}, err
	}
	cfg.LogDebug, err = boolFromEnv("APP_LOG_DEBUG", cfg.LogDebug)
	if err != nil {
		return Config{}, err
	}
	cfg.LogConsole, err = boolFromEnv("APP_LOG_CONSOLE", cfg.LogConsole)
	if err != nil {
		return Config{}, err
	}
	cfg.WebhookVerify, err = boolFromEnv("WEBHOOK_VERIFY", cfg.MediaAPISecret != "")
	if err != nil {
		return Config{}, err
	}

	if cfg.PresencePollInterval < time.Second {
		return Config{}, fmt.Errorf("PRESENCE_POLL_INTERVAL must be at least 1s")
	}
	if cfg.PresenceGraceWindow < cfg.PresencePollInterval {
		return Config{}, fmt.Errorf("PRESENCE_GRACE_WINDOW must not be shorter than PRESENCE_POLL_INTERVAL")
	}
	if cfg.JoinCodeLength < 6 || cfg.JoinCodeLength > 32 {
		return Config{}, fmt.Errorf("JOIN_CODE_LENGTH must be between 6 and 32")
	}
	if cfg.MediaTokenTTL <= 0 {
		return Config{}, fmt.Errorf("MEDIA_TOKEN_TTL must be positive")
	}
	if cfg.AuthJWTSecret == "" && !cfg.DevMode {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET is required outside dev mode")
	}
	if cfg.WebhookVerify && cfg.MediaAPISecret == "" {
		return Config{}, fmt.Errorf("WEBHOOK_VERIFY requires MEDIA_API_SECRET")
	}
	if cfg.DevMode && cfg.AuthJWTSecret == "" {
		cfg.AuthJWTSecret = "dev-secret"
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: invalid boolean %q", key, v)
	}
}
