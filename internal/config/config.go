// Package config resolves process settings from defaults, an optional TOML
// file named by IPC_CONFIG, and IPC_* environment variables, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Addr            string
	BasePath        string
	MCP             bool
	DatabaseURL     string
	HostURL         string
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		BasePath:        "/rpc",
		HostURL:         "http://localhost:8080/rpc",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        slog.LevelInfo,
	}
}

type fileConfig struct {
	Addr            string `toml:"addr"`
	BasePath        string `toml:"base_path"`
	MCP             bool   `toml:"mcp"`
	DatabaseURL     string `toml:"database_url"`
	HostURL         string `toml:"host_url"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	LogLevel        string `toml:"log_level"`
}

// Load builds the configuration for this process.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("IPC_CONFIG")); path != "" {
		var err error
		if cfg, err = LoadFile(cfg, path); err != nil {
			return Config{}, err
		}
	}
	return applyEnv(cfg)
}

// LoadFile overlays the keys defined in the TOML file at path onto cfg.
func LoadFile(cfg Config, path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		slog.Warn("config: unknown keys ignored", "path", path, "keys", fmt.Sprint(undecoded))
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("base_path") {
		cfg.BasePath = strings.TrimSpace(raw.BasePath)
	}
	if meta.IsDefined("mcp") {
		cfg.MCP = raw.MCP
	}
	if meta.IsDefined("database_url") {
		cfg.DatabaseURL = strings.TrimSpace(raw.DatabaseURL)
	}
	if meta.IsDefined("host_url") {
		cfg.HostURL = strings.TrimSpace(raw.HostURL)
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if meta.IsDefined("log_level") {
		lvl, err := parseLevel(raw.LogLevel)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := os.Getenv("IPC_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("IPC_BASE_PATH"); v != "" {
		cfg.BasePath = v
	}
	cfg.MCP = envBool("IPC_MCP", cfg.MCP)
	if v := os.Getenv("IPC_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("IPC_HOST_URL"); v != "" {
		cfg.HostURL = v
	}
	cfg.ShutdownTimeout = envDuration("IPC_SHUTDOWN_SECONDS", cfg.ShutdownTimeout)
	if v := os.Getenv("IPC_LOG_LEVEL"); v != "" {
		lvl, err := parseLevel(v)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return lvl, nil
}

// envDuration reads an integer-seconds env var and returns a Duration.
// Falls back to defaultVal if the var is unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
