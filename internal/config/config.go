package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Engine
	EngineCommand  string            `yaml:"engine_command" validate:"required"`
	EngineScript   string            `yaml:"engine_script"`
	AnalysisScript map[string]string `yaml:"analysis_scripts" validate:"dive,keys,oneof=bootnet nct lasso,endkeys"`
	EngineTimeout  time.Duration     `yaml:"engine_timeout" validate:"gt=0"`
	WorkRoot       string            `yaml:"work_root"`
	KeepWorkdir    bool              `yaml:"keep_workdir"`
	MaxOutputBytes int               `yaml:"max_output_bytes" validate:"gte=0"`

	// Derived metrics
	CacheCapacity     int     `yaml:"cache_capacity" validate:"gt=0"`
	BridgeMinGroups   int     `yaml:"bridge_min_groups" validate:"gte=1"`
	BridgeMinCoverage float64 `yaml:"bridge_min_coverage" validate:"gte=0,lte=1"`
	AdvancedUnlock    bool    `yaml:"advanced_unlock"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
	// LogLevelName is the YAML form of LogLevel.
	LogLevelName string `yaml:"log_level"`

	// Observability
	MetricsAddr   string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=none stdout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		EngineCommand: "Rscript",
		EngineScript:  "r/run_mgm.R",
		AnalysisScript: map[string]string{
			"bootnet": "r/run_bootnet.R",
			"nct":     "r/run_nct.R",
			"lasso":   "r/run_lasso.R",
		},
		EngineTimeout:     10 * time.Minute,
		MaxOutputBytes:    1 << 20,
		CacheCapacity:     256,
		BridgeMinGroups:   2,
		BridgeMinCoverage: 0.8,
		LogFile:           "/tmp/hygeia.log",
		LogLevel:          slog.LevelInfo,
		LogLevelName:      "INFO",
		TraceExporter:     "none",
	}
}

// Load builds the configuration from defaults, the YAML file named by
// HYGEIA_CONFIG (if any) and environment variables, in that order of
// precedence, and validates the result.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("HYGEIA_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.EngineCommand = getEnv("HYGEIA_ENGINE_CMD", cfg.EngineCommand)
	cfg.EngineScript = getEnv("HYGEIA_ENGINE_SCRIPT", cfg.EngineScript)
	cfg.WorkRoot = getEnv("HYGEIA_WORK_ROOT", cfg.WorkRoot)
	cfg.LogFile = getEnv("HYGEIA_LOG_FILE", cfg.LogFile)
	cfg.LogLevelName = getEnv("HYGEIA_LOG_LEVEL", cfg.LogLevelName)
	cfg.MetricsAddr = getEnv("HYGEIA_METRICS_ADDR", cfg.MetricsAddr)
	cfg.TraceExporter = getEnv("HYGEIA_TRACE_EXPORTER", cfg.TraceExporter)
	cfg.KeepWorkdir = getEnv("HYGEIA_KEEP_WORKDIR", strconv.FormatBool(cfg.KeepWorkdir)) == "true"
	cfg.AdvancedUnlock = getEnv("HYGEIA_ADVANCED_UNLOCK", strconv.FormatBool(cfg.AdvancedUnlock)) == "true"

	if v := os.Getenv("HYGEIA_ENGINE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("HYGEIA_ENGINE_TIMEOUT: %w", err)
		}
		cfg.EngineTimeout = d
	}
	if v := os.Getenv("HYGEIA_CACHE_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("HYGEIA_CACHE_CAPACITY: %w", err)
		}
		cfg.CacheCapacity = n
	}

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
