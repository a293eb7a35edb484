package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr   = ":3000"
	defaultDBPath       = "ripq.db"
	defaultWorkDir      = "temp"
	defaultEngineBin    = "lua5.1"
	defaultEngineScript = "lua.rip.lua"
	defaultConcurrency  = 1
	defaultRetention    = time.Hour
	defaultMaxBodyMB    = 50
	defaultWriteTimeout = 2 * time.Minute

	envListenAddr   = "RIPQ_LISTEN_ADDR"
	envDBPath       = "RIPQ_DB_PATH"
	envLogLevel     = "RIPQ_LOG_LEVEL"
	envMasterKey    = "RIPQ_MASTER_KEY"
	envConcurrency  = "RIPQ_CONCURRENCY"
	envRetention    = "RIPQ_RETENTION"
	envWorkDir      = "RIPQ_WORK_DIR"
	envEngineBin    = "RIPQ_ENGINE_BIN"
	envEngineScript = "RIPQ_ENGINE_SCRIPT"
	envEngineDir    = "RIPQ_ENGINE_DIR"
	envMaxBodyMB    = "RIPQ_MAX_BODY_MB"
	envWriteTimeout = "RIPQ_WRITE_TIMEOUT"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// MasterKey is the shared secret expected in the Authorization header.
	// Submissions are rejected while it is empty.
	MasterKey string

	// Concurrency is the maximum number of engine processes running at once.
	Concurrency int

	// Retention is how long a finished job and its output stay retrievable.
	Retention time.Duration

	WorkDir      string
	EngineBin    string
	EngineScript string
	EngineDir    string

	MaxBodyBytes int64
	WriteTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:   defaultListenAddr,
		DBPath:       defaultDBPath,
		LogLevel:     slog.LevelInfo,
		Concurrency:  defaultConcurrency,
		Retention:    defaultRetention,
		WorkDir:      defaultWorkDir,
		EngineBin:    defaultEngineBin,
		EngineScript: defaultEngineScript,
		MaxBodyBytes: defaultMaxBodyMB << 20,
		WriteTimeout: defaultWriteTimeout,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.MasterKey = os.Getenv(envMasterKey)
	if v := os.Getenv(envConcurrency); v != "" {
		cfg.Concurrency = parsePositiveInt(v, defaultConcurrency)
	}
	if v := os.Getenv(envRetention); v != "" {
		cfg.Retention = parseDuration(v, defaultRetention)
	}
	if v := os.Getenv(envWorkDir); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv(envEngineBin); v != "" {
		cfg.EngineBin = v
	}
	if v, ok := os.LookupEnv(envEngineScript); ok {
		// An explicitly empty script runs the binary directly.
		cfg.EngineScript = v
	}
	if v := os.Getenv(envEngineDir); v != "" {
		cfg.EngineDir = v
	}
	if v := os.Getenv(envMaxBodyMB); v != "" {
		cfg.MaxBodyBytes = int64(parsePositiveInt(v, defaultMaxBodyMB)) << 20
	}
	if v := os.Getenv(envWriteTimeout); v != "" {
		cfg.WriteTimeout = parseDuration(v, defaultWriteTimeout)
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parsePositiveInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
