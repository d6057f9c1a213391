// Package staging keeps one temporary copy of an uploaded image per
// session. Every successful Stage is matched by exactly one removal:
// Clear, a replacing Stage, or ClearAll at shutdown.
package staging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/lehigh-university-libraries/imageeditor/internal/metrics"
)

// AllowedExtensions are the file types the upload control accepts.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png"}

// Upload is a staged image on disk.
type Upload struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"-"`
	Filename     string    `json:"filename"`
	Path         string    `json:"-"`
	OriginalName string    `json:"original_name,omitempty"`
	Extension    string    `json:"extension"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReadAll returns the staged bytes.
func (u *Upload) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, apperr.IO("read staged upload", err)
	}
	return data, nil
}

type Stager struct {
	dir     string
	mu      sync.Mutex
	uploads map[string]*Upload
}

// New returns a Stager writing into dir, creating it if needed.
func New(dir string) (*Stager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperr.IO("create staging dir", err)
	}
	return &Stager{
		dir:     dir,
		uploads: make(map[string]*Upload),
	}, nil
}

func (s *Stager) Dir() string {
	return s.dir
}

// NormalizeExtension lower-cases ext, adds the leading dot and checks it
// against AllowedExtensions.
func NormalizeExtension(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !slices.Contains(AllowedExtensions, ext) {
		return "", apperr.Validation("stage upload", "unsupported file type %q (allowed: %s)", ext, strings.Join(AllowedExtensions, ", "))
	}
	return ext, nil
}

// Stage writes data to a fresh uniquely named file for sessionID. Any
// upload previously staged for the session is removed once the new one
// is on disk.
func (s *Stager) Stage(sessionID string, data []byte, ext string) (*Upload, error) {
	ext, err := NormalizeExtension(ext)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperr.Validation("stage upload", "uploaded file is empty")
	}

	contentType := http.DetectContentType(data)
	if contentType != "image/jpeg" && contentType != "image/png" {
		return nil, apperr.Validation("stage upload", "uploaded file is not a JPEG or PNG image (detected %s)", contentType)
	}

	id := uuid.New()
	filename := fmt.Sprintf("temp_image_%x%s", id[:], ext)
	path := filepath.Join(s.dir, filename)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, apperr.IO("stage upload", err)
	}

	upload := &Upload{
		ID:          id.String(),
		SessionID:   sessionID,
		Filename:    filename,
		Path:        path,
		Extension:   ext,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   time.Now(),
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		upload.Width, upload.Height = cfg.Width, cfg.Height
	} else {
		slog.Warn("Failed to get image dimensions", "filename", filename, "error", err)
	}

	s.mu.Lock()
	previous := s.uploads[sessionID]
	s.uploads[sessionID] = upload
	count := len(s.uploads)
	s.mu.Unlock()

	metrics.StagedUploads.Set(float64(count))

	if previous != nil {
		if err := removeFile(previous.Path); err != nil {
			slog.Error("Failed to remove replaced upload", "session_id", sessionID, "path", previous.Path, "error", err)
		}
	}

	slog.Info("Upload staged", "session_id", sessionID, "filename", filename, "size", upload.Size)
	return upload, nil
}

// Get returns the upload currently staged for sessionID.
func (s *Stager) Get(sessionID string) (*Upload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[sessionID]
	return u, ok
}

// Clear removes the staged file for sessionID. Clearing a session with
// nothing staged is a no-op.
func (s *Stager) Clear(sessionID string) error {
	s.mu.Lock()
	upload, ok := s.uploads[sessionID]
	delete(s.uploads, sessionID)
	count := len(s.uploads)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	metrics.StagedUploads.Set(float64(count))

	if err := removeFile(upload.Path); err != nil {
		return apperr.IO("clear staged upload", err)
	}
	slog.Debug("Staged upload cleared", "session_id", sessionID, "filename", upload.Filename)
	return nil
}

// Discard removes u if it is still the session's staged upload. A newer
// upload staged for the same session is left alone.
func (s *Stager) Discard(u *Upload) error {
	s.mu.Lock()
	if current, ok := s.uploads[u.SessionID]; ok && current.ID == u.ID {
		delete(s.uploads, u.SessionID)
	}
	count := len(s.uploads)
	s.mu.Unlock()

	metrics.StagedUploads.Set(float64(count))

	if err := removeFile(u.Path); err != nil {
		return apperr.IO("discard staged upload", err)
	}
	return nil
}

// ClearAll removes every staged file. Used on shutdown.
func (s *Stager) ClearAll() error {
	s.mu.Lock()
	uploads := s.uploads
	s.uploads = make(map[string]*Upload)
	s.mu.Unlock()

	metrics.StagedUploads.Set(0)

	var errs []error
	for _, u := range uploads {
		if err := removeFile(u.Path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperr.IO("clear all staged uploads", fmt.Errorf("%d files could not be removed: %w", len(errs), errs[0]))
	}
	return nil
}

// Count returns the number of sessions with a staged upload.
func (s *Stager) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
