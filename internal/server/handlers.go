package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/claude/repcoach/internal/coach"
	coachmcp "github.com/claude/repcoach/internal/mcp"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "version": s.version}
	if s.providers != nil {
		resp["providers"] = s.providers.Names()
		if p, err := s.providers.Active(); err == nil {
			resp["active_provider"] = p.Name()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	size := queryInt(r, "page_size", 10)
	routines, err := s.sessions.ListRoutines(r.Context(), loginFromContext(r), page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routines)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.For(loginFromContext(r)).Status())
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoutineID string `json:"routine_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	st, err := s.sessions.For(loginFromContext(r)).StartWorkout(r.Context(), req.RoutineID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleSessionInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	reply, err := s.sessions.For(loginFromContext(r)).Respond(req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.For(loginFromContext(r))
	sum, err := sess.Complete(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coachmcp.Completion{Summary: sum, RemoteID: sess.RemoteID()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	rows, err := s.db.ListWorkouts(r.Context(), loginFromContext(r), queryInt(r, "limit", 20))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []models.WorkoutHistoryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// withMCPLogin hands the caller's login to MCP tool handlers.
func (s *Server) withMCPLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := coachmcp.WithLogin(r.Context(), loginFromContext(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
		return false
	}
	return true
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoRoutine):
		status = http.StatusBadRequest
	case errors.Is(err, coach.ErrNoActiveSession), errors.Is(err, coach.ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, coach.ErrEmptyRoutine):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, provider.ErrUnknownProvider):
		status = http.StatusNotFound
	case errors.Is(err, provider.ErrNotConnected), errors.Is(err, provider.ErrNoActiveProvider):
		status = http.StatusPreconditionFailed
	case errors.Is(err, provider.ErrUnauthorized):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
