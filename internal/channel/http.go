package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"atproto-mcp/internal/activity"
	"atproto-mcp/internal/dispatch"
	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultLogsLimit = 100
	requestTimeout   = 5 * time.Minute
)

type HTTPConfig struct {
	Host       string
	Port       int
	Token      string
	Version    string
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Collector
	Activity   *activity.Log
	Logger     *slog.Logger
}

// HTTP exposes the dispatcher as a small JSON API.
type HTTP struct {
	cfg    HTTPConfig
	router *chi.Mux
	logger *slog.Logger
}

var _ domain.Channel = (*HTTP)(nil)

// CallRequest is the body of POST /mcp/call.
type CallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &HTTP{cfg: cfg, router: chi.NewRouter(), logger: cfg.Logger.With("component", "http")}

	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.RealIP)
	h.router.Use(h.requestLogger)
	h.router.Use(middleware.Recoverer)

	h.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/health", h.handleHealth)
		if cfg.Metrics != nil {
			r.Get("/metrics", cfg.Metrics.Handler())
		}
	})

	h.router.Route("/mcp", func(r chi.Router) {
		r.Use(h.auth)
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/tools", h.handleListTools)
		r.Post("/call", h.handleCall)
	})
	h.router.Route("/debug", func(r chi.Router) {
		r.Use(h.auth)
		r.With(middleware.Timeout(requestTimeout)).Get("/logs", h.handleLogs)
		// Long-lived, so outside the request timeout.
		r.Get("/logs/stream", h.handleLogStream)
	})
	return h
}

func (h *HTTP) Name() string { return "http" }

// Router exposes the root handler.
func (h *HTTP) Router() http.Handler { return h.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (h *HTTP) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", h.cfg.Host, h.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	h.logger.Info("HTTP server started", "addr", "http://"+addr, "auth", h.cfg.Token != "")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *HTTP) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		want := []byte("Bearer " + h.cfg.Token)
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTP) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
		)
	})
}

func (h *HTTP) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.cfg.Version,
		"tools":   h.cfg.Dispatcher.Catalog().Len(),
	})
}

func (h *HTTP) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.cfg.Dispatcher.Catalog().Definitions()})
}

func (h *HTTP) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing tool name"})
		return
	}

	res, err := h.cfg.Dispatcher.CallTool(r.Context(), req.Name, req.Arguments)
	if err != nil {
		status := http.StatusInternalServerError
		if domain.CodeOf(err) == domain.CodeUnknownTool {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTP) handleLogs(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Activity == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []activity.Entry{}})
		return
	}
	limit := defaultLogsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.cfg.Activity.Recent(limit)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
