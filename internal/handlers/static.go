package handlers

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed static/index.html static/app.js static/style.css
var staticFiles embed.FS

// HandleStatic serves the embedded single-page UI. Unknown paths fall
// back to index.html.
func (h *Handler) HandleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	name = strings.TrimPrefix(name, "static/")
	if name == "" {
		name = "index.html"
	}

	data, err := fs.ReadFile(staticFiles, "static/"+name)
	if err != nil {
		name = "index.html"
		data, err = fs.ReadFile(staticFiles, "static/index.html")
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
	}

	// Set appropriate content type based on file extension
	switch {
	case strings.HasSuffix(name, ".css"):
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
	case strings.HasSuffix(name, ".js"):
		w.Header().Set("Content-Type", "application/javascript")
	case strings.HasSuffix(name, ".html"):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	_, _ = w.Write(data)
}
