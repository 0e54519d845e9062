package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"tailscale.com/client/tailscale/apitype"
)

type ctxKey int

const (
	userInfoKey ctxKey = iota
)

// UserInfo identifies the caller.
type UserInfo struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

var devUser = UserInfo{Login: "local", DisplayName: "Local Dev User"}

// WhoIser resolves tailnet peers by remote address.
type WhoIser interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// DevIdentity marks every request as the local dev user, for running
// without Tailscale.
func DevIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), userInfoKey, devUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TailscaleIdentity looks up the tailnet user behind each request.
func TailscaleIdentity(who WhoIser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := who.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil || res == nil || res.UserProfile == nil {
				log.Warn("tailscale whois failed", "remote", r.RemoteAddr, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			info := UserInfo{Login: res.UserProfile.LoginName, DisplayName: res.UserProfile.DisplayName}
			ctx := context.WithValue(r.Context(), userInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userInfoFromContext returns the caller, defaulting to the dev user.
func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return devUser
}

func loginFromContext(r *http.Request) string {
	return userInfoFromContext(r).Login
}

// identity picks Tailscale or dev identity and records first-seen users.
func (s *Server) identity(next http.Handler) http.Handler {
	touched := s.touchUser(next)
	dev := DevIdentity(touched)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		who := s.whois
		s.mu.RUnlock()
		if who == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(who, s.log)(touched).ServeHTTP(w, r)
	})
}

func (s *Server) touchUser(next http.Handler) http.Handler {
	var seen sync.Map
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.db != nil {
			info := userInfoFromContext(r)
			if _, ok := seen.Load(info.Login); !ok {
				if _, err := s.db.TouchUser(r.Context(), info.Login, info.DisplayName); err != nil {
					s.log.Warn("recording user", "login", info.Login, "error", err)
				} else {
					seen.Store(info.Login, struct{}{})
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
