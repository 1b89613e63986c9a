package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"github.com/skobkin/frametimings-web/internal/adapter"
	"github.com/skobkin/frametimings-web/internal/api"
	"github.com/skobkin/frametimings-web/internal/config"
	"github.com/skobkin/frametimings-web/internal/sampler"
	"github.com/skobkin/frametimings-web/internal/timings"
	"github.com/skobkin/frametimings-web/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	wsSendQueueSize   = 16
	maxRequestBody    = 1 << 10
)

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	sampler    *sampler.Manager
	adapter    *adapter.Info

	maxWSClients int64
	wsActive     atomic.Int64
	wsTotal      atomic.Uint64
	wsRejected   atomic.Uint64
	wsSent       atomic.Uint64
	wsDropped    atomic.Uint64
	wsConnIDs    atomic.Uint64
	requestIDs   atomic.Uint64
}

// New assembles a Server with its handlers. samplerManager may be nil, in
// which case timing endpoints report the sampler as unavailable.
func New(cfg config.Config, logger *slog.Logger, samplerManager *sampler.Manager, adapterInfo *adapter.Info) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		sampler: samplerManager,
		adapter: adapterInfo,
	}

	if cfg.WS.MaxClients > 0 {
		s.maxWSClients = int64(cfg.WS.MaxClients)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/api/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api", s.handleAPIDocs)
	mux.HandleFunc("/api/", s.handleAPIDocs)
	mux.HandleFunc("/api/timings", s.handleTimings)
	mux.HandleFunc("/api/timings/latest", s.handleTimingsLatest)
	mux.HandleFunc("/api/timings/stats", s.handleTimingsStats)
	mux.HandleFunc("/api/timings/enabled", s.handleTimingsEnabled)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", s.staticHandler())

	if cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if cfg.EnablePprof {
		registerPprof(mux)
	}

	handler := s.withRequestLogging(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	info := s.readiness()
	statusCode := http.StatusOK
	if info.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, statusCode, info)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, version.Current())
}

func (s *Server) handleAPIDocs(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	if r.URL.Path != "/api" && r.URL.Path != "/api/" {
		http.NotFound(w, r)
		return
	}

	logger := s.loggerFromContext(r.Context())
	data, err := embeddedAssets.ReadFile("assets/api.html")
	if err != nil {
		logger.Error("failed to read api docs asset", "err", err)
		http.Error(w, "missing api docs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		logger.Warn("failed to write api docs response", "err", err)
	}
}

func (s *Server) handleTimings(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if !s.requireSampler(w) {
		return
	}

	samples := s.sampler.Samples()
	if samples == nil {
		samples = []timings.FrameTimings{}
	}
	s.writeJSON(w, r, http.StatusOK, samples)
}

func (s *Server) handleTimingsLatest(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if !s.requireSampler(w) {
		return
	}

	sample, ok := s.sampler.Latest()
	if !ok {
		http.Error(w, "no sample available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sample)
}

func (s *Server) handleTimingsStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if !s.requireSampler(w) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.sampler.Stats())
}

func (s *Server) handleTimingsEnabled(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	if !s.requireSampler(w) {
		return
	}

	if r.Method == http.MethodPut {
		var body api.EnabledState
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err := decoder.Decode(&body); err != nil || body.Enabled == nil {
			http.Error(w, `expected body {"enabled": true|false}`, http.StatusBadRequest)
			return
		}
		s.sampler.SetEnabled(*body.Enabled)
	}

	enabled := s.sampler.Enabled()
	s.writeJSON(w, r, http.StatusOK, api.EnabledState{Enabled: &enabled})
}

func (s *Server) requireSampler(w http.ResponseWriter) bool {
	if s.sampler == nil {
		http.Error(w, "timing sampler unavailable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	logger := s.loggerFromContext(r.Context())
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to encode response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		logger.Warn("failed to write response", "err", err)
	}
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, method := range methods {
		if r.Method == method {
			return true
		}
	}
	allow := methods[0]
	for _, method := range methods[1:] {
		allow += ", " + method
	}
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	reqLogger := s.loggerFromContext(r.Context())
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if !s.requireSampler(w) {
		return
	}

	if !s.reserveWS() {
		reqLogger.Warn("websocket rejected", "reason", "capacity")
		http.Error(w, "websocket capacity reached", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseWS()

	opts := &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		reqLogger.Warn("websocket accept failed", "err", err)
		return
	}
	closeStatus, closeReason := websocket.StatusNormalClosure, ""
	defer func() {
		closeWebsocket(reqLogger, conn, closeStatus, closeReason)
	}()

	connID := s.wsConnIDs.Add(1)
	s.wsTotal.Add(1)
	logger := reqLogger.With("ws_id", connID)

	outbound := newWSOutbound(wsSendQueueSize, &s.wsDropped)

	ctx, cancel := context.WithCancel(r.Context())

	writerDone := make(chan struct{})
	go s.wsWriter(ctx, conn, outbound, cancel, logger, writerDone)

	keepaliveDone := make(chan struct{})
	go s.wsKeepalive(ctx, conn, cancel, logger, keepaliveDone)

	subCh, unsubscribe, err := s.sampler.Subscribe()

	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
		outbound.close()
		cancel()
		<-writerDone
		<-keepaliveDone
	}()

	hello := api.NewHelloMessage(
		int(s.cfg.TickInterval/time.Millisecond),
		s.sampler.Capacity(),
		s.sampler.Enabled(),
		s.adapter,
	)
	if !s.enqueueMessage(outbound, hello, logger) {
		return
	}
	if err != nil {
		logger.Warn("failed to subscribe to timings", "err", err)
		_ = s.enqueueError(outbound, fmt.Sprintf("failed to subscribe: %v", err), logger)
		return
	}
	if !s.enqueueMessage(outbound, api.NewHistoryMessage(s.sampler.Samples()), logger) {
		return
	}

	messageCh := make(chan []byte, 8)
	readErrCh := make(chan error, 1)
	go s.readMessages(ctx, conn, messageCh, readErrCh)

	for {
		select {
		case sample, ok := <-subCh:
			if !ok {
				_ = s.enqueueError(outbound, "timing feed closed", logger)
				closeStatus, closeReason = websocket.StatusGoingAway, "timing feed closed"
				return
			}
			if !s.enqueueMessage(outbound, api.NewSampleMessage(sample), logger) {
				return
			}
		case data, ok := <-messageCh:
			if !ok {
				messageCh = nil
				continue
			}
			if err := s.handleClientMessage(outbound, data, logger); err != nil {
				logger.Warn("client message handling error", "err", err)
				return
			}
		case err := <-readErrCh:
			if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Warn("websocket read error", "err", err)
			}
			return
		case <-ctx.Done():
			closeStatus = websocket.StatusGoingAway
			return
		}
	}
}

// readMessages reads until the connection fails. Reads carry no deadline:
// an expired read context closes the connection, so liveness of silent
// clients is checked by wsKeepalive instead.
func (s *Server) readMessages(ctx context.Context, conn *websocket.Conn, out chan<- []byte, errCh chan<- error) {
	defer close(out)
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

// wsKeepalive pings the client every half read timeout and drops it when a
// pong does not arrive within the read timeout.
func (s *Server) wsKeepalive(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	timeout := s.cfg.WS.ReadTimeout
	if timeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, timeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if ctx.Err() == nil {
					logger.Info("websocket client unresponsive", "err", err)
				}
				cancel()
				return
			}
		}
	}
}

func (s *Server) handleClientMessage(outbound *wsOutbound, data []byte, logger *slog.Logger) error {
	var envelope api.ClientMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Debug("invalid client message", "err", err)
		return nil
	}

	switch envelope.Type {
	case "set_enabled":
		var msg api.SetEnabledMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Enabled == nil {
			if !s.enqueueError(outbound, "invalid set_enabled payload", logger) {
				return fmt.Errorf("failed to enqueue set_enabled error")
			}
			return nil
		}
		s.sampler.SetEnabled(*msg.Enabled)
		reply := api.EnabledMessage{Type: "enabled", Enabled: s.sampler.Enabled()}
		if !s.enqueueMessage(outbound, reply, logger) {
			return fmt.Errorf("failed to enqueue enabled response")
		}
	case "ping":
		if !s.enqueueMessage(outbound, api.PongMessage{Type: "pong"}, logger) {
			return fmt.Errorf("failed to enqueue pong response")
		}
	default:
		logger.Debug("unknown message type", "type", envelope.Type)
	}
	return nil
}

func (s *Server) wsWriter(ctx context.Context, conn *websocket.Conn, outbound *wsOutbound, cancel context.CancelFunc, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-outbound.channel():
			if !ok {
				return
			}
			if err := s.writeRaw(ctx, conn, msg); err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					logger.Warn("websocket write failed", "err", err)
				}
				cancel()
				return
			}
			s.wsSent.Add(1)
		}
	}
}

func (s *Server) writeRaw(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.WS.WriteTimeout > 0 {
		writeCtx, cancel = context.WithTimeout(ctx, s.cfg.WS.WriteTimeout)
	}
	if cancel != nil {
		defer cancel()
	}
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Server) enqueueMessage(outbound *wsOutbound, payload any, logger *slog.Logger) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal websocket payload", "err", err)
		return false
	}
	if !outbound.enqueue(data) {
		logger.Warn("websocket outbound queue unavailable")
		return false
	}
	return true
}

func (s *Server) enqueueError(outbound *wsOutbound, msg string, logger *slog.Logger) bool {
	return s.enqueueMessage(outbound, api.ErrorMessage{Type: "error", Message: msg}, logger)
}

func (s *Server) reserveWS() bool {
	if s.maxWSClients <= 0 {
		s.wsActive.Add(1)
		return true
	}

	for {
		current := s.wsActive.Load()
		if current >= s.maxWSClients {
			s.wsRejected.Add(1)
			return false
		}
		if s.wsActive.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (s *Server) releaseWS() {
	s.wsActive.Add(-1)
}

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "frametimings",
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "frametimings",
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted since start.",
		}, func() float64 {
			return float64(s.wsTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "frametimings",
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Total WebSocket connection attempts rejected due to capacity.",
		}, func() float64 {
			return float64(s.wsRejected.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "frametimings",
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Total WebSocket messages sent to clients.",
		}, func() float64 {
			return float64(s.wsSent.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "frametimings",
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Total WebSocket messages dropped due to backpressure.",
		}, func() float64 {
			return float64(s.wsDropped.Load())
		}),
	}

	if s.sampler != nil {
		collectors = append(collectors, newPipelineCollector(s.sampler), s.sampler.LatencyHistogram())
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func originPatterns(origins []string) []string {
	for _, origin := range origins {
		if origin == "*" {
			return nil
		}
	}
	dst := make([]string, len(origins))
	copy(dst, origins)
	return dst
}

func (s *Server) readiness() readyResponse {
	if s.sampler == nil {
		return readyResponse{Status: "degraded", Reason: "sampler_not_configured"}
	}

	stats := s.sampler.Stats()
	resp := readyResponse{
		Enabled: stats.Enabled,
		Samples: stats.HistoryLen,
	}
	if s.sampler.Ready() {
		resp.Status = "ok"
		return resp
	}

	resp.Status = "initializing"
	resp.Reason = "waiting_for_samples"
	return resp
}

type readyResponse struct {
	Status  string `json:"status"`
	Enabled bool   `json:"enabled"`
	Samples int    `json:"samples"`
	Reason  string `json:"reason,omitempty"`
}

type wsOutbound struct {
	ch     chan []byte
	closed atomic.Bool
	drops  *atomic.Uint64
}

func newWSOutbound(size int, dropCounter *atomic.Uint64) *wsOutbound {
	if size <= 0 {
		size = 1
	}
	return &wsOutbound{
		ch:    make(chan []byte, size),
		drops: dropCounter,
	}
}

func (o *wsOutbound) enqueue(msg []byte) bool {
	if o.closed.Load() {
		o.countDrop()
		return false
	}

	select {
	case o.ch <- msg:
		return true
	default:
	}

	droppedOld := false
	select {
	case <-o.ch:
		droppedOld = true
	default:
	}
	if droppedOld {
		o.countDrop()
	}

	if o.closed.Load() {
		o.countDrop()
		return false
	}

	select {
	case o.ch <- msg:
		return true
	default:
		o.countDrop()
		return false
	}
}

func (o *wsOutbound) close() {
	if o.closed.CompareAndSwap(false, true) {
		close(o.ch)
	}
}

func (o *wsOutbound) channel() <-chan []byte {
	return o.ch
}

func (o *wsOutbound) countDrop() {
	if o.drops != nil {
		o.drops.Add(1)
	}
}
