// Package config reads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	applog "github.com/janisto/hello-world/internal/platform/logging"
)

const (
	DefaultPort            = 8080
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the runtime settings of the server.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	LogLevel        zapcore.Level
}

// Addr returns the listen address for Port on all interfaces.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Load seeds the environment from the given .env files (missing files are
// ignored, existing variables are never overwritten) and then parses it.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset variables.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{
		Port:            DefaultPort,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        zapcore.InfoLevel,
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("PORT: invalid port %q", v)
		}
		cfg.Port = port
	}

	if v, ok := lookup("SHUTDOWN_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: must be positive, got %s", d)
		}
		cfg.ShutdownTimeout = d
	}

	if v, ok := lookup("LOG_LEVEL"); ok {
		lvl, err := applog.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = lvl
	}

	return cfg, nil
}
