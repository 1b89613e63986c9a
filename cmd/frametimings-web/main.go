package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/frametimings-web/internal/app"
	"github.com/skobkin/frametimings-web/internal/config"
	"github.com/skobkin/frametimings-web/internal/timings"
	"github.com/skobkin/frametimings-web/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

func main() {
	version.Set(version.Info{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "frametimings-web",
		Short: "Per-frame stage timing telemetry for a pipelined frame loop",
		Long: `frametimings-web reconstructs per-frame stage timings from the untagged
stage events of a pipelined frame loop and serves them over HTTP, WebSocket
and Prometheus. Running without a subcommand is the same as "serve".`,
		SilenceUsage: true,
	}
	registerLogFlags(rootCmd.PersistentFlags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the frame engine and the HTTP surface",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	registerServeFlags(serveCmd.Flags())

	// root runs serve with the same flags
	rootCmd.RunE = runServe
	registerServeFlags(rootCmd.Flags())

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the frame engine headless and print finished frames",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}
	registerEngineFlags(simulateCmd.Flags())
	simulateCmd.Flags().Int(FlagFrames, 10, "Number of finished frames to print")
	simulateCmd.Flags().Bool(FlagJSON, false, "Print frames as JSON lines")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "frametimings-web %s\n", version.Current())
		},
	}

	rootCmd.AddCommand(serveCmd, simulateCmd, versionCmd)
	return rootCmd
}

// loadConfig reads APP_* variables and applies the command's flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logs := setupLogger(cfg.LogLevel, cfg.Log)
	defer func() { _ = logs.Close() }()
	logger := logs.Logger

	logger.Info("starting", "version", version.Current().Version, "go_version", version.Current().GoVersion)

	if err := app.Run(cmd.Context(), logger, cfg); err != nil {
		logger.Error("application error", "err", err)
		return err
	}
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	frames, _ := cmd.Flags().GetInt(FlagFrames)
	asJSON, _ := cmd.Flags().GetBool(FlagJSON)
	if frames <= 0 {
		return fmt.Errorf("--%s must be > 0", FlagFrames)
	}

	logs := setupLogger(cfg.LogLevel, cfg.Log)
	defer func() { _ = logs.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), frameLimit(cfg, frames))
	defer cancel()

	out := cmd.OutOrStdout()
	encoder := json.NewEncoder(out)
	var writeErr error
	emit := func(sample timings.FrameTimings) {
		if writeErr != nil {
			return
		}
		if asJSON {
			writeErr = encoder.Encode(sample)
			return
		}
		latency, _ := sample.InputToRendered()
		_, writeErr = fmt.Fprintf(out, "%-10s %s\n", latency, sample)
	}

	if err := app.Simulate(ctx, logs.Logger.With("command", "simulate"), cfg, frames, emit); err != nil {
		logs.Logger.Error("simulation failed", "err", err)
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("write output: %w", writeErr)
	}
	return nil
}

// frameLimit bounds how long simulate may run for the requested frames.
func frameLimit(cfg config.Config, frames int) time.Duration {
	perFrame := cfg.Engine.FrameInterval + cfg.Engine.GPULatency
	return time.Duration(frames+2)*perFrame + 5*time.Second
}
