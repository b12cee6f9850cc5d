// Package httpapi exposes the worker's thin operational surface: health,
// tick state, manual advance/reset, invariant scans, and the event stream.
// It is reference glue over the core engines, not a product API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/corpsim/corpsim/internal/invariant"
	"github.com/corpsim/corpsim/internal/lease"
	"github.com/corpsim/corpsim/internal/store"
	"github.com/corpsim/corpsim/internal/stream"
	"github.com/corpsim/corpsim/internal/tick"
)

// Server bundles the handler dependencies.
type Server struct {
	store   store.Store
	engine  *tick.Engine
	scanner *invariant.Scanner
	streamH *stream.Handler
	hub     *stream.Hub
	retry   tick.RetryConfig
	logger  *slog.Logger
}

// New creates the handler bundle. streamH and hub may be nil.
func New(st store.Store, engine *tick.Engine, scanner *invariant.Scanner,
	hub *stream.Hub, streamH *stream.Handler, retry tick.RetryConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   st,
		engine:  engine,
		scanner: scanner,
		hub:     hub,
		streamH: streamH,
		retry:   retry,
		logger:  logger,
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/tick", s.handleTickState)
	mux.HandleFunc("POST /v1/tick/advance", s.handleAdvance)
	mux.HandleFunc("POST /v1/tick/reset", s.handleReset)
	mux.HandleFunc("GET /v1/invariants", s.handleInvariants)
	if s.streamH != nil {
		mux.Handle("GET /ws", s.streamH)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	clock, err := s.store.ReadClock(ctx)
	if err != nil {
		health.Status = "unhealthy"
		health.Components["database"] = map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		}
	} else {
		health.Components["database"] = "connected"
		health.Components["current_tick"] = clock.CurrentTick
	}

	for _, name := range []string{lease.Scheduler, lease.Processor} {
		l, err := s.store.GetLease(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			health.Components["lease_"+name] = "unheld"
			continue
		}
		if err != nil {
			continue
		}
		health.Components["lease_"+name] = map[string]any{
			"owner_id":   l.OwnerID,
			"expires_at": l.ExpiresAt,
		}
	}

	if s.hub != nil {
		health.Components["stream_subscribers"] = s.hub.Subscribers()
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

type tickStateResponse struct {
	CurrentTick    int64      `json:"current_tick"`
	LockVersion    int64      `json:"lock_version"`
	LastAdvancedAt *time.Time `json:"last_advanced_at"`
}

func (s *Server) handleTickState(w http.ResponseWriter, r *http.Request) {
	clock, err := s.store.ReadClock(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tickStateResponse{
		CurrentTick:    clock.CurrentTick,
		LockVersion:    clock.LockVersion,
		LastAdvancedAt: clock.LastAdvancedAt,
	})
}

type advanceRequest struct {
	Ticks               int    `json:"ticks"`
	ExpectedLockVersion *int64 `json:"expected_lock_version"`
}

type advanceResponse struct {
	TicksAdvanced int   `json:"ticks_advanced"`
	CurrentTick   int64 `json:"current_tick"`
	LockVersion   int64 `json:"lock_version"`
	Trades        int   `json:"trades"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Ticks < 1 {
		req.Ticks = 1
	}

	result, err := s.engine.AdvanceWithRetry(r.Context(), req.Ticks, tick.Options{
		ExpectedLockVersion: req.ExpectedLockVersion,
	}, s.retry)
	if err != nil {
		var conflict *tick.VersionConflictError
		switch {
		case errors.As(err, &conflict):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, lease.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{
		TicksAdvanced: result.TicksAdvanced,
		CurrentTick:   result.CurrentTick,
		LockVersion:   result.LockVersion,
		Trades:        result.TradeCount,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		if errors.Is(err, lease.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	clock, err := s.store.ReadClock(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tickStateResponse{
		CurrentTick:    clock.CurrentTick,
		LockVersion:    clock.LockVersion,
		LastAdvancedAt: clock.LastAdvancedAt,
	})
}

func (s *Server) handleInvariants(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	report, err := s.scanner.Scan(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
