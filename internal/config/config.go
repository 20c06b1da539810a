package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var phasesYAML []byte

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Detector  DetectorConfig
	Session   SessionConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type DetectorConfig struct {
	URL string // face detection server, defaults to http://localhost:8000
	Dim int    // embedding dimension, defaults to 128
}

type SessionConfig struct {
	OnTimeLimitMinutes   int // check-ins after start + limit are marked late (default 30)
	DefaultDurationHours int // session length when the API caller does not specify one (default 2)
}

type SchedulerConfig struct {
	QueueSize  int // bounded frame queue capacity (default 256)
	MaxWorkers int // global cap on concurrent verification jobs (default 4)
	Phases     []PhaseConfig
}

// PhaseConfig is one time bucket of the adaptive capture schedule.
// Buckets are sorted by FromMinutes; a session's elapsed time selects the
// last bucket whose FromMinutes has been reached.
type PhaseConfig struct {
	FromMinutes   int     `yaml:"from_minutes"`
	Rank          int     `yaml:"rank"`
	Threshold     float64 `yaml:"threshold"`
	BudgetSeconds int     `yaml:"budget_seconds"`
	Workers       int     `yaml:"workers"`
	Persist       string  `yaml:"persist"` // always | within_budget | match_only
}

type phasesFile struct {
	Phases []PhaseConfig `yaml:"phases"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var phases phasesFile
	if err := yaml.Unmarshal(phasesYAML, &phases); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded phases.yaml: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Host: envString("HOST", "0.0.0.0"),
			Port: envInt("PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Detector: DetectorConfig{
			URL: envString("DETECTOR_URL", "http://localhost:8000"),
			Dim: envInt("DETECTOR_DIM", 128),
		},
		Session: SessionConfig{
			OnTimeLimitMinutes:   envInt("SESSION_ON_TIME_LIMIT_MINUTES", 30),
			DefaultDurationHours: envInt("SESSION_DEFAULT_DURATION_HOURS", 2),
		},
		Scheduler: SchedulerConfig{
			QueueSize:  envInt("SCHEDULER_QUEUE_SIZE", 256),
			MaxWorkers: envInt("SCHEDULER_MAX_WORKERS", 4),
			Phases:     phases.Phases,
		},
	}
}
