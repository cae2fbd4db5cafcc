package app

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"casetimer/internal/adapter/api"
	"casetimer/internal/domain"
	"casetimer/internal/ports"
	"casetimer/internal/usecase"
)

// HTTPServer returns a configured http.Server exposing the time tracking API.
// Call ListenAndServe on the returned server in a goroutine and Shutdown it on exit.
func (a *App) HTTPServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.log.Info("http server configured", slog.String("addr", addr))
	return srv
}

// Handler returns the routed, authenticated and logged API handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	routes := http.NewServeMux()
	routes.HandleFunc("GET /api/cases/{caseID}/time-tracking", a.getTimeTracking)
	routes.HandleFunc("PUT /api/cases/{caseID}/time-tracking/stages/{stage}", a.updateStageTime)
	mux.Handle("/api/", authMiddleware(a.cfg.Server.AuthTokens, routes))

	return loggingMiddleware(a.log, mux)
}

func (a *App) getTimeTracking(w http.ResponseWriter, r *http.Request) {
	rec, err := a.uc.Get(r.Context(), r.PathValue("caseID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Envelope[api.TimeTracking]{Success: true, Data: ptr(api.FromDomain(rec))})
}

func (a *App) updateStageTime(w http.ResponseWriter, r *http.Request) {
	stage, err := domain.ParseStage(r.PathValue("stage"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body api.StageUpdateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, api.Envelope[api.TimeTracking]{Error: "invalid json: " + err.Error()})
		return
	}
	rec, err := a.uc.UpdateStage(r.Context(), body.ToDomain(r.PathValue("caseID"), stage))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Envelope[api.TimeTracking]{Success: true, Data: ptr(api.FromDomain(rec))})
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrInvalidUpdate), errors.Is(err, domain.ErrUnknownStage):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		a.log.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, api.Envelope[api.TimeTracking]{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// authMiddleware requires one of tokens as a bearer credential. No tokens disables the check.
func authMiddleware(tokens []string, next http.Handler) http.Handler {
	if len(tokens) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok {
			for _, t := range tokens {
				if subtle.ConstantTimeCompare([]byte(got), []byte(t)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		writeJSON(w, http.StatusUnauthorized, api.Envelope[api.TimeTracking]{Error: "unauthorized"})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request with a request id, taken from
// X-Request-ID when the caller sent one.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("http request",
			slog.String("id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("dur", time.Since(start)),
		)
	})
}

func ptr[T any](v T) *T { return &v }
