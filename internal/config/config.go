package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"planner/internal/db"
	"planner/internal/logger"
)

// Queue storage backends.
const (
	QueueSQLite = "sqlite"
	QueueRedis  = "redis"
)

// Config keeps runtime settings for the planner service.
type Config struct {
	Addr     string
	UserID   string
	Timezone *time.Location

	DBDriver string
	DBDSN    string

	QueueBackend   string
	QueuePath      string
	RedisAddr      string
	QueueRetention time.Duration

	ProbeInterval time.Duration
	UndoGrace     time.Duration
	WriteTimeout  time.Duration

	Log logger.Config
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Addr:           env("PLANNER_ADDR", ":8080"),
		UserID:         env("PLANNER_USER_ID", "local"),
		DBDriver:       env("PLANNER_DB_DRIVER", db.DriverSQLite),
		DBDSN:          env("PLANNER_DB_DSN", "./data/planner.db"),
		QueueBackend:   env("PLANNER_QUEUE_BACKEND", QueueSQLite),
		QueuePath:      env("PLANNER_QUEUE_PATH", "./data/offline-queue.db"),
		RedisAddr:      env("PLANNER_REDIS_ADDR", "localhost:6379"),
		QueueRetention: parseDuration(os.Getenv("PLANNER_QUEUE_RETENTION"), 24*time.Hour),
		ProbeInterval:  parseDuration(os.Getenv("PLANNER_PROBE_INTERVAL"), 15*time.Second),
		UndoGrace:      parseDuration(os.Getenv("PLANNER_UNDO_GRACE"), 5*time.Second),
		WriteTimeout:   parseDuration(os.Getenv("PLANNER_WRITE_TIMEOUT"), 10*time.Second),
		Log:            logger.DefaultConfig(),
	}

	cfg.Log.UserID = cfg.UserID
	cfg.Log.LogDir = env("PLANNER_LOG_DIR", cfg.Log.LogDir)
	cfg.Log.DevMode = parseBool(os.Getenv("PLANNER_LOG_DEV"), cfg.Log.DevMode)
	level, err := logger.ParseLevel(env("PLANNER_LOG_LEVEL", "info"))
	if err != nil {
		return cfg, err
	}
	cfg.Log.Level = level

	tz := env("PLANNER_TZ", "Local")
	cfg.Timezone, err = time.LoadLocation(tz)
	if err != nil {
		return cfg, fmt.Errorf("PLANNER_TZ: %w", err)
	}

	switch cfg.DBDriver {
	case db.DriverSQLite, db.DriverPostgres:
	default:
		return cfg, fmt.Errorf("PLANNER_DB_DRIVER must be %q or %q", db.DriverSQLite, db.DriverPostgres)
	}
	switch cfg.QueueBackend {
	case QueueSQLite, QueueRedis:
	default:
		return cfg, fmt.Errorf("PLANNER_QUEUE_BACKEND must be %q or %q", QueueSQLite, QueueRedis)
	}
	if cfg.UserID == "" {
		return cfg, fmt.Errorf("PLANNER_USER_ID is required")
	}

	return cfg, nil
}

// LogValue keeps the DSN out of the logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.Addr),
		slog.String("user_id", c.UserID),
		slog.String("db_driver", c.DBDriver),
		slog.String("queue_backend", c.QueueBackend),
		slog.Duration("probe_interval", c.ProbeInterval),
		slog.Duration("undo_grace", c.UndoGrace),
		slog.Duration("write_timeout", c.WriteTimeout),
		slog.String("timezone", c.Timezone.String()),
	)
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseBool(raw string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return b
}
