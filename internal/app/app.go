// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skobkin/frametimings-web/internal/adapter"
	"github.com/skobkin/frametimings-web/internal/config"
	"github.com/skobkin/frametimings-web/internal/engine"
	"github.com/skobkin/frametimings-web/internal/httpserver"
	"github.com/skobkin/frametimings-web/internal/sampler"
	"github.com/skobkin/frametimings-web/internal/timings"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	samplerManager := newManager(cfg, baseLogger)
	defer func() {
		if err := samplerManager.Close(); err != nil {
			appLogger.Warn("sampler manager close", "err", err)
		}
	}()
	appLogger.Info("timing pipeline ready",
		"enabled", samplerManager.Enabled(),
		"history_size", samplerManager.Capacity(),
	)

	var (
		adapterInfo *adapter.Info
		eng         *engine.Engine
		engineErrCh chan error
	)

	engineCtx, engineCancel := context.WithCancel(ctx)
	defer engineCancel()

	if cfg.Engine.Enable {
		if cfg.Engine.AdapterPCIID != "" {
			info := adapter.Describe(cfg.Engine.AdapterPCIID)
			adapterInfo = &info
			appLogger.Info("render adapter", "pci_id", info.PCIID, "vendor", info.Vendor, "name", info.Name)
		}

		var err error
		eng, err = engine.New(cfg.Engine, samplerManager.Reporter(), samplerManager.Tick, baseLogger)
		if err != nil {
			return fmt.Errorf("init engine: %w", err)
		}

		engineErrCh = make(chan error, 1)
		go func() {
			engineErrCh <- eng.Run(engineCtx)
		}()
	} else {
		appLogger.Warn("frame engine disabled", "reason", "APP_ENGINE_ENABLE=false")
	}

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), samplerManager, adapterInfo)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	for {
		select {
		case err := <-errCh:
			engineCancel()
			if err != nil {
				return err
			}
			if engineErrCh != nil {
				if engineErr := <-engineErrCh; engineErr != nil && !errors.Is(engineErr, context.Canceled) {
					return engineErr
				}
			}
			return nil
		case err := <-engineErrCh:
			engineErrCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case <-ctx.Done():
			appLogger.Info("shutdown initiated", "reason", ctx.Err())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("http shutdown: %w", err)
			}

			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			engineCancel()
			if engineErrCh != nil {
				if engineErr := <-engineErrCh; engineErr != nil && !errors.Is(engineErr, context.Canceled) {
					return engineErr
				}
			}

			appLogger.Info("shutdown complete")
			return nil
		}
	}
}

// Simulate drives the engine without the HTTP surface until frames finished
// frames have been handed to emit, or ctx is cancelled. emit runs on the
// engine goroutine.
func Simulate(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, frames int, emit func(timings.FrameTimings)) error {
	if frames <= 0 {
		return fmt.Errorf("frames must be > 0")
	}
	if emit == nil {
		emit = func(timings.FrameTimings) {}
	}

	cfg.TimingsEnabled = true
	samplerManager := newManager(cfg, baseLogger)
	defer func() { _ = samplerManager.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	emitted := 0
	tick := func(scope timings.Scope) timings.TickResult {
		result := samplerManager.Tick(scope)
		for _, sample := range result.Finished {
			if emitted >= frames {
				break
			}
			emit(sample)
			emitted++
		}
		if emitted >= frames {
			cancel()
		}
		return result
	}

	eng, err := engine.New(cfg.Engine, samplerManager.Reporter(), tick, baseLogger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	err = eng.Run(runCtx)
	if emitted >= frames {
		return nil
	}
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	return nil
}

func newManager(cfg config.Config, baseLogger *slog.Logger) *sampler.Manager {
	pipeline := timings.New(
		timings.WithEnabled(cfg.TimingsEnabled),
		timings.WithHistorySize(cfg.HistorySize),
	)
	return sampler.NewManager(pipeline, baseLogger)
}
