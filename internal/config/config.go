package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const (
	ContractPanic = "panic"
	ContractLog   = "log"
)

type AppConfig struct {
	StateBackend string
	StateDir     string

	PrefsBackend        string
	PrefsPath           string
	DefaultsOverrideDir string

	RedisURL    string
	DatabaseURL string

	ControlAddr string
	MessagesDir string

	SupervisorURL   string
	SupervisorWSURL string
	BackgroundGrace time.Duration

	ContractMode string

	DefaultBoardSize int
	DefaultKomi      float64
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		StateBackend:     BackendFile,
		StateDir:         "data",
		PrefsBackend:     BackendFile,
		PrefsPath:        filepath.Join("data", "preferences.yaml"),
		ControlAddr:      "127.0.0.1:8383",
		BackgroundGrace:  30 * time.Second,
		ContractMode:     ContractPanic,
		DefaultBoardSize: 19,
		DefaultKomi:      6.5,
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("STATE_BACKEND"))); v != "" {
		cfg.StateBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("STATE_DIR")); v != "" {
		cfg.StateDir = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("PREFS_BACKEND"))); v != "" {
		cfg.PrefsBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("PREFS_PATH")); v != "" {
		cfg.PrefsPath = v
	}
	cfg.DefaultsOverrideDir = strings.TrimSpace(os.Getenv("DEFAULTS_OVERRIDE_DIR"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("CONTROL_ADDR")); v != "" {
		cfg.ControlAddr = v
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	cfg.SupervisorURL = strings.TrimSpace(os.Getenv("SUPERVISOR_URL"))
	cfg.SupervisorWSURL = strings.TrimSpace(os.Getenv("SUPERVISOR_WS_URL"))

	if v := strings.TrimSpace(os.Getenv("BACKGROUND_GRACE")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BackgroundGrace = time.Duration(n) * time.Second
		}
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("CONTRACT_MODE"))); v != "" {
		cfg.ContractMode = v
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_BOARD_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DEFAULT_BOARD_SIZE: %w", err)
		}
		cfg.DefaultBoardSize = n
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_KOMI")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("DEFAULT_KOMI: %w", err)
		}
		cfg.DefaultKomi = f
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend selections against the connection settings they need.
func (c *AppConfig) Validate() error {
	switch c.StateBackend {
	case BackendFile, BackendSQLite:
		if c.StateDir == "" {
			return errors.New("STATE_DIR is required for file and sqlite backends")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for STATE_BACKEND=redis")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for STATE_BACKEND=postgres")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported STATE_BACKEND %q", c.StateBackend)
	}

	switch c.PrefsBackend {
	case BackendFile:
		if c.PrefsPath == "" {
			return errors.New("PREFS_PATH is required for PREFS_BACKEND=file")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for PREFS_BACKEND=redis")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported PREFS_BACKEND %q", c.PrefsBackend)
	}

	if c.ContractMode != ContractPanic && c.ContractMode != ContractLog {
		return fmt.Errorf("unsupported CONTRACT_MODE %q", c.ContractMode)
	}
	if c.DefaultBoardSize < 7 || c.DefaultBoardSize > 19 || c.DefaultBoardSize%2 == 0 {
		return fmt.Errorf("DEFAULT_BOARD_SIZE must be odd and within 7..19, got %d", c.DefaultBoardSize)
	}
	if c.SupervisorWSURL != "" && c.SupervisorURL == "" {
		return errors.New("SUPERVISOR_URL is required when SUPERVISOR_WS_URL is set")
	}
	return nil
}
