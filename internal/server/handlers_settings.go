package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/normalize"
	"github.com/claude/repcoach/internal/vault"
)

func (s *Server) requireVault(w http.ResponseWriter) bool {
	if s.vault == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "credential vault not configured"})
		return false
	}
	return true
}

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	p, err := s.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := vault.WithScope(r.Context(), loginFromContext(r))
	resp := map[string]any{"provider": p.Name(), "connected": true}
	if err := p.TestConnection(ctx); err != nil {
		resp["connected"] = false
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	p, err := s.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.APIKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "api_key is required"})
		return
	}

	ctx := vault.WithScope(r.Context(), loginFromContext(r))
	if err := s.vault.Save(ctx, p.Name(), req.APIKey); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	resp := map[string]any{"provider": p.Name(), "connected": true}
	if err := p.TestConnection(ctx); err != nil {
		s.log.Warn("stored key failed connection test", "provider", p.Name(), "error", err)
		resp["connected"] = false
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	p, err := s.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := vault.WithScope(r.Context(), loginFromContext(r))
	if err := s.vault.Delete(ctx, p.Name()); err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPhonetics(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	mappings, err := s.db.ListPhonetics(r.Context(), loginFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if mappings == nil {
		mappings = []models.PhoneticMapping{}
	}
	writeJSON(w, http.StatusOK, mappings)
}

func (s *Server) handleUpsertPhonetic(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	var m models.PhoneticMapping
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if strings.TrimSpace(m.Canonical) == "" || strings.TrimSpace(m.Alternative) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "canonical and alternative are required"})
		return
	}
	if !models.ValidCategory(m.Category) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "category must be number or command"})
		return
	}

	login := loginFromContext(r)
	m.UserLogin = login
	saved, err := s.db.UpsertPhonetic(r.Context(), m)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.refreshPhonetics(r, login)
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeletePhonetic(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mapping id"})
		return
	}
	login := loginFromContext(r)
	found, err := s.db.DeletePhonetic(r.Context(), login, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "mapping not found"})
		return
	}
	s.refreshPhonetics(r, login)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetPhonetics(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	login := loginFromContext(r)
	if err := s.db.ResetPhonetics(r.Context(), login, normalize.DefaultMappings()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.refreshPhonetics(r, login)
	s.handleListPhonetics(w, r)
}

// refreshPhonetics reloads the normalizer of the user's live session.
func (s *Server) refreshPhonetics(r *http.Request, login string) {
	if err := s.sessions.For(login).RefreshPhonetics(r.Context()); err != nil {
		s.log.Warn("reloading phonetic mappings", "login", login, "error", err)
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	settings, err := s.db.GetSettings(r.Context(), loginFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := make(map[string]string, len(settings))
	for _, st := range settings {
		out[st.Key] = st.Value
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	st, err := s.db.PutSetting(r.Context(), loginFromContext(r), chi.URLParam(r, "key"), req.Value)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
