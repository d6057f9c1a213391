package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/lehigh-university-libraries/imageeditor/internal/auth"
	"github.com/lehigh-university-libraries/imageeditor/internal/metrics"
	"github.com/lehigh-university-libraries/imageeditor/internal/session"
	"github.com/lehigh-university-libraries/imageeditor/internal/suggest"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMaxUploadBytes = 10 * 1024 * 1024

type Handler struct {
	sessions       *session.Store
	controller     *session.Controller
	gate           *auth.Gate
	suggester      *suggest.Service
	maxUploadBytes int64
	secureCookies  bool
}

// Options configures a Handler.
type Options struct {
	Sessions       *session.Store
	Controller     *session.Controller
	Gate           *auth.Gate
	Suggester      *suggest.Service
	MaxUploadBytes int64
	SecureCookies  bool
}

func New(opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		sessions:       opts.Sessions,
		controller:     opts.Controller,
		gate:           opts.Gate,
		suggester:      opts.Suggester,
		maxUploadBytes: opts.MaxUploadBytes,
		secureCookies:  opts.SecureCookies,
	}
}

// Router wires every route behind the metrics, logging and recovery
// middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/workflows", h.HandleWorkflows)

		r.Group(func(r chi.Router) {
			r.Use(h.withSession)

			r.Get("/session", h.HandleSession)

			r.Get("/auth/status", h.HandleAuthStatus)
			r.Post("/auth/login", h.HandleLogin)
			r.Post("/auth/logout", h.HandleLogout)
			r.Post("/auth/register", h.HandleRegister)

			r.Get("/workflow", h.HandleCurrentWorkflow)
			r.Put("/workflow", h.HandleSelectWorkflow)

			r.Post("/upload", h.HandleUpload)
			r.Delete("/upload", h.HandleClearUpload)
			r.Get("/upload/image", h.HandleUploadImage)

			r.Post("/transform", h.HandleTransform)
			r.Post("/transform/ack", h.HandleAcknowledge)
			r.Get("/result/{side}", h.HandleResultImage)

			r.Post("/suggest", h.HandleSuggest)
		})
	})

	r.Get("/*", h.HandleStatic)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		slog.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

type errorBody struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError reports err inline to the UI with the status its kind maps to.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSuperseded) {
		h.writeJSONStatus(w, http.StatusConflict, errorResponse{Error: errorBody{
			Kind:    "Superseded",
			Message: err.Error(),
		}})
		return
	}

	status := apperr.HTTPStatus(err)
	body := errorBody{
		Kind:       string(apperr.KindOf(err)),
		Message:    err.Error(),
		StatusCode: apperr.StatusCodeOf(err),
	}
	if body.Kind == "" {
		body.Kind = string(apperr.KindIO)
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		body.Message = appErr.Message
		if appErr.StatusCode != 0 {
			body.Message = appErr.Error()
		}
	}

	if status >= 500 {
		slog.Error("Request failed", "kind", body.Kind, "err", err)
	}
	h.writeJSONStatus(w, status, errorResponse{Error: body})
}

func (h *Handler) writeNotFound(w http.ResponseWriter, message string) {
	h.writeJSONStatus(w, http.StatusNotFound, errorResponse{Error: errorBody{
		Kind:    "NotFound",
		Message: message,
	}})
}

func (h *Handler) decodeJSON(r *http.Request, v interface{}, op string) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation(op, "invalid JSON: %v", err)
	}
	return nil
}
