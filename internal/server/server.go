// Package server serves a rendered clips page with live reload.
//
// Every request to / renders the page afresh through the page renderer.
// When watched resources change, connected browsers are told to reload over
// a websocket. Prometheus metrics are exposed on /metrics and a health
// report on /healthz.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/clips/internal/config"
	"github.com/conneroisu/clips/internal/logging"
	"github.com/conneroisu/clips/internal/renderer"
	"github.com/conneroisu/clips/internal/version"
	"github.com/conneroisu/clips/internal/watcher"
)

// PageRenderer renders the served page.
type PageRenderer interface {
	Render(ctx context.Context, req renderer.Request) (*renderer.Result, error)
}

// Metrics receives server instrumentation.
type Metrics interface {
	Reloaded()
	ClientConnected()
	ClientDisconnected()
}

type nopMetrics struct{}

func (nopMetrics) Reloaded()           {}
func (nopMetrics) ClientConnected()    {}
func (nopMetrics) ClientDisconnected() {}

// PreviewServer serves the page with live reload capability
type PreviewServer struct {
	config      *config.Config
	renderer    PageRenderer
	logger      logging.Logger
	metrics     Metrics
	gatherer    prometheus.Gatherer
	hub         *Hub
	watcher     *watcher.FileWatcher
	httpServer  *http.Server
	serverMutex sync.RWMutex

	stateMutex sync.RWMutex
	lastRender time.Time
	lastError  error

	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Client    string    `json:"client,omitempty"`
	Paths     []string  `json:"paths,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message types.
const (
	MessageConnected = "connected"
	MessageReload    = "reload"
)

// Option configures a PreviewServer.
type Option func(*PreviewServer)

// WithLogger sets the server logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *PreviewServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *PreviewServer) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *PreviewServer) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// New creates a new preview server
func New(cfg *config.Config, pages PageRenderer, opts ...Option) (*PreviewServer, error) {
	if pages == nil {
		return nil, fmt.Errorf("page renderer is required")
	}
	s := &PreviewServer{
		config:   cfg,
		renderer: pages,
		logger:   logging.Nop(),
		metrics:  nopMetrics{},
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	s.hub = newHub(s.logger, s.metrics)
	return s, nil
}

// Handler returns the HTTP routes.
func (s *PreviewServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handlePage)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Start watches the configured resources and serves until the server is
// shut down or ctx is cancelled.
func (s *PreviewServer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.setupFileWatcher(ctx); err != nil {
		return err
	}
	go s.hub.run(ctx)

	addr := s.config.Address()
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, err, "Shutdown failed")
		}
	}()

	s.logger.Info(ctx, "Serving page", "address", "http://"+addr, "clip", s.config.Page.Clip)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// WatchPaths returns the local paths whose changes trigger a reload.
func (s *PreviewServer) WatchPaths() []string {
	return s.config.WatchPaths()
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) error {
	paths := s.WatchPaths()
	if len(paths) == 0 {
		return nil
	}

	fw, err := watcher.NewFileWatcher(watcher.DefaultDelay, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoBackupFilter)
	fw.AddHandler(s.handleFileChange)

	for _, path := range paths {
		if err := fw.Watch(path); err != nil {
			s.logger.Warn(ctx, err, "Failed to watch path", "path", path)
		}
	}

	s.watcher = fw
	return fw.Start(ctx)
}

// handleFileChange tells every connected browser to reload.
func (s *PreviewServer) handleFileChange(ctx context.Context, events []watcher.ChangeEvent) error {
	paths := make([]string, 0, len(events))
	for _, event := range events {
		s.logger.Debug(ctx, "File changed", "path", event.Path, "type", event.Type.String())
		paths = append(paths, event.Path)
	}

	s.broadcastMessage(UpdateMessage{
		Type:      MessageReload,
		Paths:     paths,
		Timestamp: time.Now(),
	})
	s.metrics.Reloaded()
	s.logger.Info(ctx, "Reloading clients", "changes", len(events), "clients", s.hub.count())
	return nil
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to marshal message")
		data = []byte(`{"type":"reload"}`)
	}
	s.hub.broadcast(data)
}

func (s *PreviewServer) handlePage(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.renderer.Render(r.Context(), req)

	s.stateMutex.Lock()
	s.lastRender = time.Now()
	s.lastError = err
	s.stateMutex.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to render page", "clip", req.Clip)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(errorPage(err)))
		return
	}
	_, _ = w.Write([]byte(injectReload(result.HTML)))
}

// pageRequest reads render overrides from the query: "clip", "target" and
// "position" select the page, every other parameter becomes an option.
func pageRequest(r *http.Request) (renderer.Request, error) {
	query := r.URL.Query()
	req := renderer.Request{
		Clip:     query.Get("clip"),
		Target:   query.Get("target"),
		Position: query.Get("position"),
	}

	var pairs []string
	for key, values := range query {
		switch key {
		case "clip", "target", "position":
			continue
		}
		pairs = append(pairs, key+"="+values[len(values)-1])
	}
	if len(pairs) > 0 {
		opts, err := renderer.ParseSet(pairs)
		if err != nil {
			return req, err
		}
		req.Options = opts
	}
	return req, nil
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.stateMutex.RLock()
	lastRender, lastError := s.lastRender, s.lastError
	s.stateMutex.RUnlock()

	status := "healthy"
	renderCheck := map[string]interface{}{"status": "healthy"}
	if !lastRender.IsZero() {
		renderCheck["last_render"] = lastRender.UTC()
	}
	if lastError != nil {
		status = "degraded"
		renderCheck["status"] = "error"
		renderCheck["error"] = lastError.Error()
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"checks": map[string]interface{}{
			"render":    renderCheck,
			"websocket": map[string]interface{}{"status": "healthy", "clients": s.hub.count()},
			"watcher":   map[string]interface{}{"status": "healthy", "paths": len(s.WatchPaths())},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}

func (s *PreviewServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Shutdown closes client connections, stops the watcher and the HTTP server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Failed to stop watcher")
			}
		}
		s.hub.closeAll()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

const reloadScript = `<script data-clips-reload>
(function () {
  var scheme = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(scheme + "//" + location.host + "/ws");
  ws.onmessage = function (e) {
    var msg = JSON.parse(e.data);
    if (msg.type === "reload") { location.reload(); }
  };
  ws.onclose = function () { setTimeout(function () { location.reload(); }, 1000); };
})();
</script>`

// injectReload inserts the live reload script before the closing body tag.
func injectReload(page string) string {
	i := strings.LastIndex(strings.ToLower(page), "</body>")
	if i < 0 {
		return page + reloadScript
	}
	return page[:i] + reloadScript + page[i:]
}

func errorPage(err error) string {
	return `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Render failed</title></head>` +
		`<body><h1>Render failed</h1><pre class="clips-error">` + html.EscapeString(err.Error()) +
		`</pre>` + reloadScript + `</body></html>`
}
