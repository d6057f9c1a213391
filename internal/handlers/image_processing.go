package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/imageeditor/internal/session"
	"github.com/lehigh-university-libraries/imageeditor/internal/workflow"
)

func (h *Handler) HandleTransform(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)

	var params workflow.Params
	if err := h.decodeJSON(r, &params, "submit transform"); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.controller.Submit(r.Context(), s, params)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]any{
		"message": "Image transformed successfully",
		"result":  session.NewResultView(result),
	})
}

func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if err := requireLogin(s, "acknowledge transform"); err != nil {
		h.writeError(w, err)
		return
	}
	h.controller.Acknowledge(s)
	h.writeJSON(w, h.controller.View(s))
}

// HandleResultImage serves one side of the before/after comparison.
func (h *Handler) HandleResultImage(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if err := requireLogin(s, "view result"); err != nil {
		h.writeError(w, err)
		return
	}

	result := s.Result()
	if result == nil {
		h.writeNotFound(w, "no transformed image yet")
		return
	}

	switch chi.URLParam(r, "side") {
	case "original":
		writeImage(w, result.Original.ContentType, result.Original.Data)
	case "transformed":
		writeImage(w, result.Transformed.ContentType, result.Transformed.Data)
	default:
		h.writeNotFound(w, "unknown result image")
	}
}

func (h *Handler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if err := requireLogin(s, "suggest objects"); err != nil {
		h.writeError(w, err)
		return
	}

	upload, _ := h.controller.StagedUpload(s)
	items, err := h.suggester.Suggest(r.Context(), upload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	h.writeJSON(w, map[string]any{"suggestions": items})
}
