package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
	"github.com/tejaschuahan/job-scraper-bot/internal/session"
)

// SessionService is the Session Manager surface the API drives.
type SessionService interface {
	Start(userID, role string, filter scraper.FilterSpec) (session.Snapshot, error)
	Confirm(userID string) (session.Snapshot, error)
	Decline(userID string) (session.Snapshot, error)
	Stop(userID string) (session.Snapshot, error)
	Status(userID string) (session.Snapshot, error)
	List() []session.Snapshot
}

type startSessionRequest struct {
	UserID string             `json:"user_id"`
	Role   string             `json:"role"`
	Filter scraper.FilterSpec `json:"filter"`
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	snap, err := s.sessions.Start(req.UserID, req.Role, req.Filter)
	if err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": snap})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.sessionCall(w, r, s.sessions.Status)
}

func (s *Server) confirmSession(w http.ResponseWriter, r *http.Request) {
	s.sessionCall(w, r, s.sessions.Confirm)
}

func (s *Server) declineSession(w http.ResponseWriter, r *http.Request) {
	s.sessionCall(w, r, s.sessions.Decline)
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	s.sessionCall(w, r, s.sessions.Stop)
}

func (s *Server) sessionCall(w http.ResponseWriter, r *http.Request, op func(string) (session.Snapshot, error)) {
	snap, err := op(chi.URLParam(r, "user_id"))
	if err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": snap})
}

func (s *Server) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		s.logger.Error("session operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session operation failed")
	}
}
