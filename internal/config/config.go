package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	ListenAddr       string
	TickInterval     time.Duration
	TimingsEnabled   bool
	HistorySize      int
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
	Log              LogConfig
	WS               WebsocketConfig
	Engine           EngineConfig
}

// LogConfig controls where logs go. An empty File keeps logs on stderr.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// EngineConfig tunes the synthetic frame loop that feeds the pipeline.
type EngineConfig struct {
	Enable             bool
	FrameInterval      time.Duration
	GPULatency         time.Duration
	InputsPerFrame     int
	SkipRenderCallback bool
	AdapterPCIID       string
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		TickInterval:     16 * time.Millisecond,
		TimingsEnabled:   true,
		HistorySize:      128,
		AllowedOrigins:   []string{"*"},
		EnablePrometheus: false,
		EnablePprof:      false,
		LogLevel:         slog.LevelInfo,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		WS: WebsocketConfig{
			MaxClients:   1024,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
		Engine: EngineConfig{
			Enable:         true,
			FrameInterval:  16 * time.Millisecond,
			GPULatency:     24 * time.Millisecond,
			InputsPerFrame: 2,
			AdapterPCIID:   "1002:73df",
		},
	}
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Default()

	if value := env("APP_LISTEN_ADDR"); value != "" {
		cfg.ListenAddr = value
	}

	if value := env("APP_TICK_INTERVAL"); value != "" {
		interval, err := parsePositiveDuration("APP_TICK_INTERVAL", value)
		if err != nil {
			return Config{}, err
		}
		cfg.TickInterval = interval
		cfg.Engine.FrameInterval = interval
	}

	if value := env("APP_TIMINGS_ENABLED"); value != "" {
		enabled, err := parseBool("APP_TIMINGS_ENABLED", value)
		if err != nil {
			return Config{}, err
		}
		cfg.TimingsEnabled = enabled
	}

	if value := env("APP_HISTORY_SIZE"); value != "" {
		size, err := parsePositiveInt("APP_HISTORY_SIZE", value)
		if err != nil {
			return Config{}, err
		}
		cfg.HistorySize = size
	}

	if value := env("APP_ALLOWED_ORIGINS"); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if value := env("APP_ENABLE_PROMETHEUS"); value != "" {
		enabled, err := parseBool("APP_ENABLE_PROMETHEUS", value)
		if err != nil {
			return Config{}, err
		}
		cfg.EnablePrometheus = enabled
	}

	if value := env("APP_ENABLE_PPROF"); value != "" {
		enabled, err := parseBool("APP_ENABLE_PPROF", value)
		if err != nil {
			return Config{}, err
		}
		cfg.EnablePprof = enabled
	}

	if value := env("APP_LOG_LEVEL"); value != "" {
		level, err := ParseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := env("APP_LOG_FILE"); value != "" {
		cfg.Log.File = value
	}

	if value := env("APP_LOG_MAX_SIZE_MB"); value != "" {
		size, err := parsePositiveInt("APP_LOG_MAX_SIZE_MB", value)
		if err != nil {
			return Config{}, err
		}
		cfg.Log.MaxSizeMB = size
	}

	if value := env("APP_LOG_MAX_BACKUPS"); value != "" {
		backups, err := parseNonNegativeInt("APP_LOG_MAX_BACKUPS", value)
		if err != nil {
			return Config{}, err
		}
		cfg.Log.MaxBackups = backups
	}

	if value := env("APP_LOG_MAX_AGE_DAYS"); value != "" {
		days, err := parseNonNegativeInt("APP_LOG_MAX_AGE_DAYS", value)
		if err != nil {
			return Config{}, err
		}
		cfg.Log.MaxAgeDays = days
	}

	if value := env("APP_LOG_COMPRESS"); value != "" {
		compress, err := parseBool("APP_LOG_COMPRESS", value)
		if err != nil {
			return Config{}, err
		}
		cfg.Log.Compress = compress
	}

	if value := env("APP_WS_MAX_CLIENTS"); value != "" {
		maxClients, err := parsePositiveInt("APP_WS_MAX_CLIENTS", value)
		if err != nil {
			return Config{}, err
		}
		cfg.WS.MaxClients = maxClients
	}

	if value := env("APP_WS_WRITE_TIMEOUT"); value != "" {
		timeout, err := parsePositiveDuration("APP_WS_WRITE_TIMEOUT", value)
		if err != nil {
			return Config{}, err
		}
		cfg.WS.WriteTimeout = timeout
	}

	if value := env("APP_WS_READ_TIMEOUT"); value != "" {
		timeout, err := parsePositiveDuration("APP_WS_READ_TIMEOUT", value)
		if err != nil {
			return Config{}, err
		}
		cfg.WS.ReadTimeout = timeout
	}

	if value := env("APP_ENGINE_ENABLE"); value != "" {
		enabled, err := parseBool("APP_ENGINE_ENABLE", value)
		if err != nil {
			return Config{}, err
		}
		cfg.Engine.Enable = enabled
	}

	if value := env("APP_ENGINE_GPU_LATENCY"); value != "" {
		latency, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENGINE_GPU_LATENCY: %w", err)
		}
		if latency < 0 {
			return Config{}, fmt.Errorf("APP_ENGINE_GPU_LATENCY must be >= 0")
		}
		cfg.Engine.GPULatency = latency
	}

	if value := env("APP_ENGINE_INPUTS_PER_FRAME"); value != "" {
		inputs, err := parseNonNegativeInt("APP_ENGINE_INPUTS_PER_FRAME", value)
		if err != nil {
			return Config{}, err
		}
		cfg.Engine.InputsPerFrame = inputs
	}

	if value := env("APP_ENGINE_SKIP_RENDER_CALLBACK"); value != "" {
		skip, err := parseBool("APP_ENGINE_SKIP_RENDER_CALLBACK", value)
		if err != nil {
			return Config{}, err
		}
		cfg.Engine.SkipRenderCallback = skip
	}

	if value := env("APP_ENGINE_ADAPTER_PCI_ID"); value != "" {
		cfg.Engine.AdapterPCIID = value
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseBool(key, value string) (bool, error) {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func parsePositiveDuration(key, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return duration, nil
}

func parsePositiveInt(key, value string) (int, error) {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return parsed, nil
}

func parseNonNegativeInt(key, value string) (int, error) {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return parsed, nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
