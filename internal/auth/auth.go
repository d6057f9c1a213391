// Package auth gates the editor behind a login and keeps users signed
// in across browser sessions with a signed re-login cookie.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/lehigh-university-libraries/imageeditor/internal/credentials"
	"github.com/lehigh-university-libraries/imageeditor/internal/metrics"
	"github.com/lehigh-university-libraries/imageeditor/internal/session"
)

// Claims carried by the re-login cookie.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Resetter clears a session's editor state on logout.
type Resetter interface {
	Reset(s *session.Session) error
}

type Gate struct {
	creds    *credentials.Store
	resetter Resetter
	secure   bool
	now      func() time.Time
}

func NewGate(creds *credentials.Store, resetter Resetter, secureCookies bool) *Gate {
	return &Gate{
		creds:    creds,
		resetter: resetter,
		secure:   secureCookies,
		now:      time.Now,
	}
}

// Status reports the tri-state authentication status of s.
func (g *Gate) Status(s *session.Session) session.Status {
	return s.Status()
}

// Login authenticates s and, on success, sets the re-login cookie.
func (g *Gate) Login(w http.ResponseWriter, s *session.Session, username, password string) (credentials.Account, error) {
	account, err := g.creds.Authenticate(username, password)
	if err != nil {
		s.SetAuthFailed()
		metrics.LoginsTotal.WithLabelValues("failed").Inc()
		slog.Warn("Login failed", "session_id", s.ID, "username", username)
		return credentials.Account{}, err
	}

	s.SetAuthenticated(account.Username, account.Name)
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	slog.Info("User logged in", "session_id", s.ID, "username", account.Username)

	if err := g.setCookie(w, account); err != nil {
		slog.Error("Failed to set login cookie", "username", account.Username, "error", err)
	}
	return account, nil
}

// Register creates a new account. The caller must log in afterwards.
func (g *Gate) Register(r credentials.Registration) (credentials.Account, error) {
	account, err := g.creds.Register(r)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("failed").Inc()
		return credentials.Account{}, err
	}
	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	return account, nil
}

// Restore authenticates an unauthenticated session from a valid
// re-login cookie. It reports whether s is authenticated afterwards.
func (g *Gate) Restore(r *http.Request, s *session.Session) bool {
	if s.Status() == session.Authenticated {
		return true
	}

	cookie, err := r.Cookie(g.creds.Cookie().Name)
	if err != nil || cookie.Value == "" {
		return false
	}

	claims, err := g.parse(cookie.Value)
	if err != nil {
		slog.Debug("Ignoring invalid login cookie", "session_id", s.ID, "error", err)
		return false
	}

	account, ok := g.creds.Lookup(claims.Username)
	if !ok {
		return false
	}

	s.SetAuthenticated(account.Username, account.Name)
	slog.Info("User restored from cookie", "session_id", s.ID, "username", account.Username)
	return true
}

// Logout expires the re-login cookie and resets s.
func (g *Gate) Logout(w http.ResponseWriter, s *session.Session) error {
	username, _ := s.User()

	http.SetCookie(w, &http.Cookie{
		Name:     g.creds.Cookie().Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})

	slog.Info("User logged out", "session_id", s.ID, "username", username)
	return g.resetter.Reset(s)
}

func (g *Gate) setCookie(w http.ResponseWriter, account credentials.Account) error {
	c := g.creds.Cookie()
	if c.Key == "" {
		return errors.New("cookie key is not configured")
	}

	expires := g.now().Add(time.Duration(c.ExpiryDays) * 24 * time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(g.now()),
		},
		Username: account.Username,
		Name:     account.Name,
	})

	signed, err := token.SignedString([]byte(c.Key))
	if err != nil {
		return fmt.Errorf("failed to sign login cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    signed,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (g *Gate) parse(value string) (*Claims, error) {
	key := g.creds.Cookie().Key
	if key == "" {
		return nil, errors.New("cookie key is not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Username == "" {
		return nil, apperr.Auth("restore login", "invalid login cookie")
	}
	return claims, nil
}
