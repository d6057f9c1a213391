package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/imageeditor/internal/credentials"
	"github.com/lehigh-university-libraries/imageeditor/internal/session"
)

type authStatus struct {
	Status   string `json:"status"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

func statusOf(s *session.Session) authStatus {
	username, name := s.User()
	return authStatus{
		Status:   s.Status().String(),
		Username: username,
		Name:     name,
	}
}

func (h *Handler) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, statusOf(sessionFrom(r)))
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)

	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := h.decodeJSON(r, &request, "login"); err != nil {
		h.writeError(w, err)
		return
	}

	if _, err := h.gate.Login(w, s, request.Username, request.Password); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, statusOf(s))
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if err := h.gate.Logout(w, s); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, statusOf(s))
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var request credentials.Registration
	if err := h.decodeJSON(r, &request, "register user"); err != nil {
		h.writeError(w, err)
		return
	}

	account, err := h.gate.Register(request)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSONStatus(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    account,
	})
}
