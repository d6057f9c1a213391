package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/imageeditor/internal/workflow"
)

type workflowInfo struct {
	Name     workflow.Kind   `json:"name"`
	Title    string          `json:"title"`
	Defaults workflow.Params `json:"defaults"`
}

type workflowOptions struct {
	AspectRatios   []string `json:"aspect_ratios"`
	Gravities      []string `json:"gravities"`
	MinSizePixels  int      `json:"min_size_pixels"`
	MaxSizePixels  int      `json:"max_size_pixels"`
	MinScaleFactor int      `json:"min_scale_factor"`
	MaxScaleFactor int      `json:"max_scale_factor"`
}

func (h *Handler) HandleWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows := make([]workflowInfo, 0, len(workflow.All))
	for _, k := range workflow.All {
		workflows = append(workflows, workflowInfo{
			Name:     k,
			Title:    k.Title(),
			Defaults: workflow.Defaults(k),
		})
	}

	h.writeJSON(w, map[string]any{
		"workflows": workflows,
		"options": workflowOptions{
			AspectRatios:   workflow.AspectRatios,
			Gravities:      workflow.Gravities,
			MinSizePixels:  workflow.MinSizePixels,
			MaxSizePixels:  workflow.MaxSizePixels,
			MinScaleFactor: workflow.MinScaleFactor,
			MaxScaleFactor: workflow.MaxScaleFactor,
		},
		"suggestions": h.suggester.Enabled(),
	})
}

func (h *Handler) HandleCurrentWorkflow(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	kind, ok := h.controller.Current(s)
	if !ok {
		h.writeJSON(w, map[string]any{"workflow": nil})
		return
	}
	h.writeJSON(w, workflowInfo{Name: kind, Title: kind.Title(), Defaults: workflow.Defaults(kind)})
}

func (h *Handler) HandleSelectWorkflow(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)

	var request struct {
		Workflow string `json:"workflow"`
	}
	if err := h.decodeJSON(r, &request, "select workflow"); err != nil {
		h.writeError(w, err)
		return
	}

	kind, err := workflow.Parse(request.Workflow)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.controller.Select(s, kind); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, h.controller.View(s))
}
