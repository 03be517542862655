package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/store"
)

const (
	defaultCycleLimit   = 50
	maxCycleLimit       = 500
	defaultSourcesLimit = 100
	maxSourcesLimit     = 1000
	historyTimeout      = 3 * time.Second
)

// CycleHandler exposes read-only cycle history endpoints.
type CycleHandler struct {
	repo    store.CycleRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewCycleHandler wires the repository and logger.
func NewCycleHandler(repo store.CycleRepository, logger *zap.Logger) *CycleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CycleHandler{repo: repo, timeout: historyTimeout, logger: logger}
}

// ListCycles handles GET /v1/cycles?status=&user_id=&limit=&offset=. It
// returns {"cycles": [...]}, 400 for invalid filters and 503 without a
// repository.
func (h *CycleHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "cycle history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCycleLimit, maxCycleLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var filter store.ListFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		filter.Status = &status
	}
	if user := strings.TrimSpace(r.URL.Query().Get("user_id")); user != "" {
		filter.UserID = &user
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cycles, err := h.repo.ListCycles(ctx, filter, limit, offset)
	if err != nil {
		h.logger.Error("list cycles failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	if cycles == nil {
		cycles = []store.CycleRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles})
}

// GetCycle handles GET /v1/cycles/{cycle_id}.
func (h *CycleHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "cycle history unavailable")
		return
	}
	cycleID, err := parseCycleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cycle, err := h.repo.GetCycle(ctx, cycleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cycle not found")
			return
		}
		h.logger.Error("get cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load cycle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycle": cycle})
}

// ListCycleSources handles GET /v1/cycles/{cycle_id}/sources?limit=&offset=.
func (h *CycleHandler) ListCycleSources(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "cycle history unavailable")
		return
	}
	cycleID, err := parseCycleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSourcesLimit, maxSourcesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sources, err := h.repo.ListCycleSources(ctx, cycleID, limit, offset)
	if err != nil {
		h.logger.Error("list cycle sources failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list cycle sources")
		return
	}
	if sources == nil {
		sources = []store.SourceStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func parseCycleID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "cycle_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("cycle_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid cycle_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.RunRunning, nil
	case "success":
		return store.RunSuccess, nil
	case "timed_out", "timeout":
		return store.RunTimedOut, nil
	case "error", "failed", "failure":
		return store.RunError, nil
	default:
		return "", errors.New("invalid status")
	}
}
