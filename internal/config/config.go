// Package config reads the server configuration from environment variables.
//
// A .env file in the working directory is loaded first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort           = 8080
	DefaultDBPath         = "data/tabletop.db"
	DefaultStorageTimeout = 5 * time.Second
	DefaultTokenTTL       = 24 * time.Hour

	minSecretLength = 16
)

// Config holds every runtime setting of the server.
type Config struct {
	Port   int
	DBPath string

	// JWTSecret signs session tokens. Required, at least 16 characters.
	JWTSecret string
	TokenTTL  time.Duration

	// Google sign-in is enabled only when both id and secret are set.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// FrontendURL is where the browser goes after signing in.
	FrontendURL string
	// StaticDir, when set, is served at /.
	StaticDir string
	// RedisAddr switches chat fan-out from the in-process hub to Redis.
	RedisAddr string

	StorageTimeout time.Duration
	LogLevel       slog.Level
}

// GoogleEnabled reports whether Google credentials are configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// SecureCookies is true when the public callback is served over HTTPS.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.GoogleCallbackURL, "https://")
}

// Load reads .env (if any) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it. Every problem is
// reported, not only the first.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:               DefaultPort,
		DBPath:             DefaultDBPath,
		JWTSecret:          getenv("JWT_SECRET"),
		TokenTTL:           DefaultTokenTTL,
		GoogleClientID:     getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  getenv("GOOGLE_CALLBACK_URL"),
		FrontendURL:        getenv("FRONTEND_URL"),
		StaticDir:          getenv("STATIC_DIR"),
		RedisAddr:          getenv("REDIS_ADDR"),
		StorageTimeout:     DefaultStorageTimeout,
		LogLevel:           slog.LevelInfo,
	}

	var errs []error

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT must be a port number, got %q", v))
		}
		cfg.Port = port
	}
	if v := getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("TOKEN_TTL"); v != "" {
		cfg.TokenTTL = parsePositiveDuration("TOKEN_TTL", v, &errs)
	}
	if v := getenv("STORAGE_TIMEOUT"); v != "" {
		cfg.StorageTimeout = parsePositiveDuration("STORAGE_TIMEOUT", v, &errs)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", v))
		}
	}

	if len(cfg.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if (cfg.GoogleClientID == "") != (cfg.GoogleClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}
	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port)
	} else if err := checkURL(cfg.GoogleCallbackURL); err != nil {
		errs = append(errs, fmt.Errorf("GOOGLE_CALLBACK_URL: %w", err))
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "/"
	} else if cfg.FrontendURL != "/" {
		if err := checkURL(cfg.FrontendURL); err != nil {
			errs = append(errs, fmt.Errorf("FRONTEND_URL: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func parsePositiveDuration(name, v string, errs *[]error) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive duration such as 5s, got %q", name, v))
		return 0
	}
	return d
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
