package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/skobkin/frametimings-web/internal/config"
)

// Flag names. Every flag overrides the matching APP_* variable when set.
const (
	FlagLogLevel = "log-level"
	FlagLogFile  = "log-file"

	FlagListen         = "listen"
	FlagTickInterval   = "tick-interval"
	FlagTimingsEnabled = "timings-enabled"
	FlagHistorySize    = "history-size"
	FlagPrometheus     = "prometheus"
	FlagPprof          = "pprof"

	FlagEngine             = "engine"
	FlagGPULatency         = "gpu-latency"
	FlagInputsPerFrame     = "inputs-per-frame"
	FlagSkipRenderCallback = "skip-render-callback"
	FlagAdapter            = "adapter"

	FlagFrames = "frames"
	FlagJSON   = "json"
)

func registerLogFlags(fs *pflag.FlagSet) {
	fs.String(FlagLogLevel, "", "Log level (debug, info, warn, error)")
	fs.String(FlagLogFile, "", "Write JSON logs to a rotated file instead of stderr")
}

func registerServeFlags(fs *pflag.FlagSet) {
	fs.String(FlagListen, "", "HTTP listen address")
	fs.Bool(FlagTimingsEnabled, true, "Collect frame timings from startup")
	fs.Int(FlagHistorySize, 0, "Number of finished frames to retain")
	fs.Bool(FlagPrometheus, false, "Expose Prometheus metrics on /metrics")
	fs.Bool(FlagPprof, false, "Expose pprof handlers on /debug/pprof/")
	fs.Bool(FlagEngine, true, "Run the synthetic frame engine")
	fs.String(FlagAdapter, "", "PCI id (vendor:device) of the simulated render adapter")
	registerEngineFlags(fs)
}

func registerEngineFlags(fs *pflag.FlagSet) {
	fs.Duration(FlagTickInterval, 0, "Frame interval")
	fs.Duration(FlagGPULatency, 0, "Delay between GPU submission and render completion")
	fs.Int(FlagInputsPerFrame, 0, "User input events reported per frame")
	fs.Bool(FlagSkipRenderCallback, false, "Report render completion right after submission")
}

// applyFlags copies explicitly set flags over cfg. Flags missing from fs are
// ignored so commands can register subsets.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	changed := func(name string) bool {
		return fs.Lookup(name) != nil && fs.Changed(name)
	}

	if changed(FlagLogLevel) {
		value, _ := fs.GetString(FlagLogLevel)
		level, err := config.ParseLogLevel(value)
		if err != nil {
			return fmt.Errorf("--%s: %w", FlagLogLevel, err)
		}
		cfg.LogLevel = level
	}
	if changed(FlagLogFile) {
		cfg.Log.File, _ = fs.GetString(FlagLogFile)
	}
	if changed(FlagListen) {
		cfg.ListenAddr, _ = fs.GetString(FlagListen)
	}
	if changed(FlagTickInterval) {
		interval, _ := fs.GetDuration(FlagTickInterval)
		if interval <= 0 {
			return fmt.Errorf("--%s must be > 0", FlagTickInterval)
		}
		cfg.TickInterval = interval
		cfg.Engine.FrameInterval = interval
	}
	if changed(FlagTimingsEnabled) {
		cfg.TimingsEnabled, _ = fs.GetBool(FlagTimingsEnabled)
	}
	if changed(FlagHistorySize) {
		size, _ := fs.GetInt(FlagHistorySize)
		if size <= 0 {
			return fmt.Errorf("--%s must be > 0", FlagHistorySize)
		}
		cfg.HistorySize = size
	}
	if changed(FlagPrometheus) {
		cfg.EnablePrometheus, _ = fs.GetBool(FlagPrometheus)
	}
	if changed(FlagPprof) {
		cfg.EnablePprof, _ = fs.GetBool(FlagPprof)
	}
	if changed(FlagEngine) {
		cfg.Engine.Enable, _ = fs.GetBool(FlagEngine)
	}
	if changed(FlagGPULatency) {
		latency, _ := fs.GetDuration(FlagGPULatency)
		if latency < 0 {
			return fmt.Errorf("--%s must be >= 0", FlagGPULatency)
		}
		cfg.Engine.GPULatency = latency
	}
	if changed(FlagInputsPerFrame) {
		inputs, _ := fs.GetInt(FlagInputsPerFrame)
		if inputs < 0 {
			return fmt.Errorf("--%s must be >= 0", FlagInputsPerFrame)
		}
		cfg.Engine.InputsPerFrame = inputs
	}
	if changed(FlagSkipRenderCallback) {
		cfg.Engine.SkipRenderCallback, _ = fs.GetBool(FlagSkipRenderCallback)
	}
	if changed(FlagAdapter) {
		cfg.Engine.AdapterPCIID, _ = fs.GetString(FlagAdapter)
	}
	return nil
}
