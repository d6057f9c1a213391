// Package transform builds and executes remote image transformations.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/lehigh-university-libraries/imageeditor/internal/cloudinary"
	"github.com/lehigh-university-libraries/imageeditor/internal/staging"
	"github.com/lehigh-university-libraries/imageeditor/internal/workflow"
)

// ImageService is the remote generative-image API.
type ImageService interface {
	Upload(ctx context.Context, data []byte, filename, publicID string) (*cloudinary.UploadResult, error)
	URL(publicID, transformation, format string) string
	Fetch(ctx context.Context, url string) (*cloudinary.Image, error)
}

// Request is one validated remote edit. Data is the staged image read
// at build time, so the staged file may be removed while the request
// is in flight.
type Request struct {
	Kind           workflow.Kind
	Params         workflow.Params
	Upload         *staging.Upload
	Data           []byte
	PublicID       string
	Transformation string
}

// Image is one side of the before/after comparison.
type Image struct {
	Data        []byte
	ContentType string
}

type Result struct {
	Kind           workflow.Kind
	PublicID       string
	Transformation string
	URL            string
	Original       Image
	Transformed    Image
	CreatedAt      time.Time
}

// Build validates params against kind and snapshots the staged bytes.
func Build(kind workflow.Kind, upload *staging.Upload, params workflow.Params) (*Request, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("build transform", "no workflow selected")
	}
	if upload == nil {
		return nil, apperr.Validation("build transform", "upload an image first")
	}

	params = params.Normalize()
	if err := params.Validate(kind); err != nil {
		return nil, err
	}

	data, err := upload.ReadAll()
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	return &Request{
		Kind:           kind,
		Params:         params,
		Upload:         upload,
		Data:           data,
		PublicID:       fmt.Sprintf("%s%x", kind.PublicIDPrefix(), id[:]),
		Transformation: workflow.Transformation(kind, params),
	}, nil
}

type Service struct {
	images ImageService
}

func NewService(images ImageService) *Service {
	return &Service{images: images}
}

// Execute uploads the request's image, then fetches the derived image.
// Failures are returned as-is; nothing is retried.
func (s *Service) Execute(ctx context.Context, req *Request) (*Result, error) {
	slog.Info("Submitting transform", "workflow", req.Kind, "public_id", req.PublicID, "transformation", req.Transformation)

	uploaded, err := s.images.Upload(ctx, req.Data, req.Upload.Filename, req.PublicID)
	if err != nil {
		return nil, err
	}

	url := s.images.URL(uploaded.PublicID, req.Transformation, deliveryFormat(req.Upload.Extension))
	slog.Debug("Fetching derived image", "public_id", uploaded.PublicID, "url", url)

	derived, err := s.images.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	slog.Info("Transform rendered", "workflow", req.Kind, "public_id", uploaded.PublicID, "bytes", len(derived.Data))
	return &Result{
		Kind:           req.Kind,
		PublicID:       uploaded.PublicID,
		Transformation: req.Transformation,
		URL:            url,
		Original: Image{
			Data:        req.Data,
			ContentType: req.Upload.ContentType,
		},
		Transformed: Image{
			Data:        derived.Data,
			ContentType: derived.ContentType,
		},
		CreatedAt: time.Now(),
	}, nil
}

func deliveryFormat(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}
