package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/skobkin/frametimings-web/internal/config"
	"github.com/skobkin/frametimings-web/internal/timings"
)

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cmd := newRootCmd()
	args := []string{
		"--" + FlagLogLevel, "debug",
		"--" + FlagListen, "127.0.0.1:9999",
		"--" + FlagTickInterval, "8ms",
		"--" + FlagTimingsEnabled + "=false",
		"--" + FlagHistorySize, "32",
		"--" + FlagPrometheus,
		"--" + FlagGPULatency, "0s",
		"--" + FlagInputsPerFrame, "4",
		"--" + FlagSkipRenderCallback,
		"--" + FlagAdapter, "10de:2684",
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default()
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		t.Fatalf("applyFlags returned error: %v", err)
	}

	if cfg.LogLevel != slog.LevelDebug || cfg.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("unexpected log level or listen addr: %+v", cfg)
	}
	if cfg.TickInterval != 8*time.Millisecond || cfg.Engine.FrameInterval != 8*time.Millisecond {
		t.Fatalf("tick interval not applied: %s / %s", cfg.TickInterval, cfg.Engine.FrameInterval)
	}
	if cfg.TimingsEnabled || cfg.HistorySize != 32 || !cfg.EnablePrometheus || cfg.EnablePprof {
		t.Fatalf("unexpected toggles: %+v", cfg)
	}
	if cfg.Engine.GPULatency != 0 || cfg.Engine.InputsPerFrame != 4 || !cfg.Engine.SkipRenderCallback || cfg.Engine.AdapterPCIID != "10de:2684" {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
}

func TestApplyFlagsKeepsUnsetValues(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default()
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		t.Fatalf("applyFlags returned error: %v", err)
	}
	want := config.Default()
	if cfg.ListenAddr != want.ListenAddr || cfg.Engine != want.Engine || cfg.HistorySize != want.HistorySize {
		t.Fatalf("unset flags changed config: %+v", cfg)
	}
}

func TestApplyFlagsRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"ZeroTickInterval", []string{"--" + FlagTickInterval, "0s"}},
		{"ZeroHistorySize", []string{"--" + FlagHistorySize, "0"}},
		{"NegativeGPULatency", []string{"--" + FlagGPULatency, "-1ms"}},
		{"NegativeInputs", []string{"--" + FlagInputsPerFrame, "-1"}},
		{"UnknownLogLevel", []string{"--" + FlagLogLevel, "loud"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newRootCmd()
			if err := cmd.ParseFlags(tc.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			cfg := config.Default()
			if err := applyFlags(cmd.Flags(), &cfg); err == nil {
				t.Fatalf("expected error for %v", tc.args)
			}
		})
	}
}

func TestSimulateCommandPrintsJSONFrames(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"simulate",
		"--" + FlagFrames, "3",
		"--" + FlagJSON,
		"--" + FlagTickInterval, "2ms",
		"--" + FlagGPULatency, "1ms",
		"--" + FlagLogLevel, "error",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 frames, got %d: %q", len(lines), out.String())
	}
	for _, line := range lines {
		var sample timings.FrameTimings
		if err := json.Unmarshal([]byte(line), &sample); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		if _, ok := sample.At(timings.RenderingFinished); !ok {
			t.Fatalf("frame without render completion: %s", line)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "frametimings-web ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
