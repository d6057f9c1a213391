package handlers

import (
	"context"
	"net/http"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/lehigh-university-libraries/imageeditor/internal/session"
)

const sessionCookieName = "imageeditor_session"

type sessionKey struct{}

// withSession resolves the browser session from its cookie, starting a
// new one when the cookie is missing or stale, and restores a login
// from the re-login cookie.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookieName); err == nil {
			id = c.Value
		}

		s, created := h.sessions.GetOrCreate(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.secureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		h.gate.Restore(r, s)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	s, _ := r.Context().Value(sessionKey{}).(*session.Session)
	return s
}

func requireLogin(s *session.Session, op string) error {
	if s.Status() != session.Authenticated {
		return apperr.Auth(op, "please login to use the app")
	}
	return nil
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.controller.View(sessionFrom(r)))
}
