// Package status serves read-only quiz statistics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
)

// Stats reports live engine state.
type Stats interface {
	ActiveSessions() int
}

type pinger interface {
	Ping(ctx context.Context) error
}

type handler struct {
	stats   Stats
	results service.ResultRecorder
	logger  *slog.Logger
}

// NewRouter wires the status routes.
func NewRouter(stats Stats, results service.ResultRecorder, logger *slog.Logger) http.Handler {
	h := &handler{stats: stats, results: results, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	r.Get("/census", h.handleCensus)
	r.Get("/results/{userID}", h.handleLatest)
	return r
}

// Serve runs the server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Status server stopped")
	return nil
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.results.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":          "degraded",
				"active_sessions": h.stats.ActiveSessions(),
				"error":           "results database unavailable",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": h.stats.ActiveSessions(),
	})
}

func (h *handler) handleCensus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.results.Census(r.Context())
	if err != nil {
		h.logger.Error("Failed to load census", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load census")
		return
	}
	if counts == nil {
		counts = []service.TypeCount{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"census": counts})
}

func (h *handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "user id must be an integer")
		return
	}

	result, err := h.results.Latest(r.Context(), userID)
	if errors.Is(err, service.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no result for user")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load result", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
