package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected ListenAddr %q", cfg.ListenAddr)
	}
	if cfg.TickInterval != 16*time.Millisecond {
		t.Fatalf("unexpected TickInterval %s", cfg.TickInterval)
	}
	if !cfg.TimingsEnabled {
		t.Fatalf("expected timings enabled by default")
	}
	if cfg.HistorySize != 128 {
		t.Fatalf("unexpected HistorySize %d", cfg.HistorySize)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.Log.File != "" {
		t.Fatalf("expected stderr logging by default, got %q", cfg.Log.File)
	}
	if !cfg.Engine.Enable {
		t.Fatalf("expected engine enabled by default")
	}
	if cfg.Engine.FrameInterval != cfg.TickInterval {
		t.Fatalf("engine frame interval %s differs from tick interval", cfg.Engine.FrameInterval)
	}
	if cfg.Engine.GPULatency != 24*time.Millisecond {
		t.Fatalf("unexpected GPULatency %s", cfg.Engine.GPULatency)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("APP_TICK_INTERVAL", "8ms")
	t.Setenv("APP_TIMINGS_ENABLED", "false")
	t.Setenv("APP_HISTORY_SIZE", "64")
	t.Setenv("APP_ALLOWED_ORIGINS", "https://example.com, https://other.test")
	t.Setenv("APP_ENABLE_PROMETHEUS", "true")
	t.Setenv("APP_ENABLE_PPROF", "true")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_LOG_FILE", "/tmp/frametimings.log")
	t.Setenv("APP_LOG_MAX_SIZE_MB", "50")
	t.Setenv("APP_LOG_MAX_BACKUPS", "0")
	t.Setenv("APP_LOG_MAX_AGE_DAYS", "7")
	t.Setenv("APP_LOG_COMPRESS", "true")
	t.Setenv("APP_WS_MAX_CLIENTS", "2048")
	t.Setenv("APP_WS_WRITE_TIMEOUT", "10s")
	t.Setenv("APP_WS_READ_TIMEOUT", "45s")
	t.Setenv("APP_ENGINE_ENABLE", "false")
	t.Setenv("APP_ENGINE_GPU_LATENCY", "0s")
	t.Setenv("APP_ENGINE_INPUTS_PER_FRAME", "5")
	t.Setenv("APP_ENGINE_SKIP_RENDER_CALLBACK", "true")
	t.Setenv("APP_ENGINE_ADAPTER_PCI_ID", "10de:2684")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr override failed, got %q", cfg.ListenAddr)
	}
	if cfg.TickInterval != 8*time.Millisecond || cfg.Engine.FrameInterval != 8*time.Millisecond {
		t.Fatalf("TickInterval override failed, got %s / %s", cfg.TickInterval, cfg.Engine.FrameInterval)
	}
	if cfg.TimingsEnabled {
		t.Fatalf("TimingsEnabled override failed")
	}
	if cfg.HistorySize != 64 {
		t.Fatalf("HistorySize override failed, got %d", cfg.HistorySize)
	}
	wantOrigins := []string{"https://example.com", "https://other.test"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, wantOrigins) {
		t.Fatalf("AllowedOrigins mismatch: %+v", cfg.AllowedOrigins)
	}
	if !cfg.EnablePrometheus || !cfg.EnablePprof {
		t.Fatalf("feature toggles override failed")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	wantLog := LogConfig{File: "/tmp/frametimings.log", MaxSizeMB: 50, MaxBackups: 0, MaxAgeDays: 7, Compress: true}
	if cfg.Log != wantLog {
		t.Fatalf("Log override failed, got %+v", cfg.Log)
	}
	if cfg.WS.MaxClients != 2048 || cfg.WS.WriteTimeout != 10*time.Second || cfg.WS.ReadTimeout != 45*time.Second {
		t.Fatalf("WS override failed, got %+v", cfg.WS)
	}
	wantEngine := EngineConfig{
		Enable:             false,
		FrameInterval:      8 * time.Millisecond,
		GPULatency:         0,
		InputsPerFrame:     5,
		SkipRenderCallback: true,
		AdapterPCIID:       "10de:2684",
	}
	if cfg.Engine != wantEngine {
		t.Fatalf("Engine override failed, got %+v", cfg.Engine)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"InvalidTickInterval", "APP_TICK_INTERVAL", "fast"},
		{"NonPositiveTickInterval", "APP_TICK_INTERVAL", "0"},
		{"InvalidTimingsEnabled", "APP_TIMINGS_ENABLED", "maybe"},
		{"InvalidHistorySize", "APP_HISTORY_SIZE", "lots"},
		{"NonPositiveHistorySize", "APP_HISTORY_SIZE", "0"},
		{"InvalidOrigins", "APP_ALLOWED_ORIGINS", ","},
		{"InvalidPrometheusBool", "APP_ENABLE_PROMETHEUS", "maybe"},
		{"InvalidLogLevel", "APP_LOG_LEVEL", "loud"},
		{"NonPositiveLogSize", "APP_LOG_MAX_SIZE_MB", "0"},
		{"NegativeLogBackups", "APP_LOG_MAX_BACKUPS", "-1"},
		{"InvalidLogCompress", "APP_LOG_COMPRESS", "zip"},
		{"InvalidWSMaxClients", "APP_WS_MAX_CLIENTS", "zero"},
		{"NonPositiveWSMaxClients", "APP_WS_MAX_CLIENTS", "0"},
		{"InvalidWSWriteTimeout", "APP_WS_WRITE_TIMEOUT", "nope"},
		{"NegativeWSReadTimeout", "APP_WS_READ_TIMEOUT", "-1s"},
		{"InvalidEngineEnable", "APP_ENGINE_ENABLE", "maybe"},
		{"NegativeGPULatency", "APP_ENGINE_GPU_LATENCY", "-5ms"},
		{"InvalidGPULatency", "APP_ENGINE_GPU_LATENCY", "slow"},
		{"NegativeInputsPerFrame", "APP_ENGINE_INPUTS_PER_FRAME", "-2"},
		{"InvalidSkipRenderCallback", "APP_ENGINE_SKIP_RENDER_CALLBACK", "sometimes"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
