package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
)

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "upload image"
	s := sessionFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024*1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, apperr.Validation(op, "file too large (max %d bytes)", h.maxUploadBytes))
			return
		}
		h.writeError(w, apperr.Validation(op, "failed to read file: %v", err))
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.writeError(w, apperr.IO(op, err))
		return
	}
	if int64(len(fileData)) > h.maxUploadBytes {
		h.writeError(w, apperr.Validation(op, "file too large (max %d bytes)", h.maxUploadBytes))
		return
	}

	upload, err := h.controller.Upload(s, fileData, header.Filename)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]any{
		"message": "Image uploaded successfully",
		"upload":  upload,
	})
}

func (h *Handler) HandleClearUpload(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if err := h.controller.ClearUpload(s); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, h.controller.View(s))
}

// HandleUploadImage serves the staged image for preview.
func (h *Handler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if err := requireLogin(s, "preview upload"); err != nil {
		h.writeError(w, err)
		return
	}

	upload, ok := h.controller.StagedUpload(s)
	if !ok {
		h.writeNotFound(w, "no image uploaded")
		return
	}

	data, err := upload.ReadAll()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeImage(w, upload.ContentType, data)
}

func writeImage(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
