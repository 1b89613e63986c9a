package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/skobkin/frametimings-web/internal/config"
)

// loggerResult carries the logger and the writer that must be closed on exit.
type loggerResult struct {
	Logger  *slog.Logger
	LogFile io.WriteCloser
}

// Close closes the log file if one was opened.
func (r *loggerResult) Close() error {
	if r.LogFile != nil {
		return r.LogFile.Close()
	}
	return nil
}

// setupLogger builds the process logger. With a log file configured, JSON
// records go to a lumberjack rotated file. Otherwise stderr gets a text
// handler when attached to a terminal and JSON when not.
func setupLogger(level slog.Leveler, cfg config.LogConfig) *loggerResult {
	opts := &slog.HandlerOptions{Level: level}

	if cfg.File != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		return &loggerResult{
			Logger:  slog.New(slog.NewJSONHandler(writer, opts)),
			LogFile: writer,
		}
	}

	return &loggerResult{Logger: newStreamLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)}
}

func newStreamLogger(w io.Writer, interactive bool, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if interactive {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
