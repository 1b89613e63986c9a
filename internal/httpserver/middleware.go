package httpserver

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

type contextKey string

const requestLoggerKey contextKey = "httpserver.request.logger"

// quietPaths are polled by probes and scrapers; their requests log at Debug.
var quietPaths = map[string]struct{}{
	"/healthz":     {},
	"/api/healthz": {},
	"/readyz":      {},
	"/api/readyz":  {},
	"/metrics":     {},
}

// statusRecorder captures what a handler wrote. It must keep Hijack working
// for the WebSocket upgrade.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	bytes    int64
	hijacked bool
}

func (rec *statusRecorder) WriteHeader(status int) {
	if rec.status == 0 {
		rec.status = status
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

func (rec *statusRecorder) code() int {
	switch {
	case rec.hijacked:
		return http.StatusSwitchingProtocols
	case rec.status == 0:
		return http.StatusOK
	}
	return rec.status
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("httpserver: response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		rec.hijacked = true
	}
	return conn, rw, err
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := s.requestIDs.Add(1)
		logger := s.logger.With(
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		if remote := r.RemoteAddr; remote != "" {
			logger = logger.With("remote_addr", remote)
		}

		w.Header().Set("X-Request-Id", strconv.FormatUint(reqID, 10))

		ctx := context.WithValue(r.Context(), requestLoggerKey, logger)
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		level := slog.LevelInfo
		if _, quiet := quietPaths[r.URL.Path]; quiet && rec.code() < http.StatusBadRequest {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "request complete",
			"status", rec.code(),
			"duration", time.Since(start),
			"bytes", rec.bytes,
		)
	})
}

func (s *Server) loggerFromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return s.logger
}
