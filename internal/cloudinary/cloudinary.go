// Package cloudinary is a minimal client for the two Cloudinary
// operations the editor needs: a signed image upload and the delivery
// URL of a transformed (derived) image.
package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
)

const (
	DefaultAPIBaseURL      = "https://api.cloudinary.com"
	DefaultDeliveryBaseURL = "https://res.cloudinary.com"
	DefaultTimeout         = 60 * time.Second
	maxErrorBody           = 512
	maxImageBytes          = 50 << 20
)

type Config struct {
	CloudName       string
	APIKey          string
	APISecret       string
	APIBaseURL      string
	DeliveryBaseURL string
	Timeout         time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
	maxImage   int64
}

// UploadResult is the subset of the upload response the editor uses.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	Version   int64  `json:"version"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int64  `json:"bytes"`
	SecureURL string `json:"secure_url"`
}

// Image is a fetched derived image.
type Image struct {
	Data        []byte
	ContentType string
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Client, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary cloud name, API key and API secret are required")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.DeliveryBaseURL == "" {
		cfg.DeliveryBaseURL = DefaultDeliveryBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.DeliveryBaseURL = strings.TrimRight(cfg.DeliveryBaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now:      time.Now,
		maxImage: maxImageBytes,
	}, nil
}

// Upload sends data as a signed upload under publicID.
func (c *Client) Upload(ctx context.Context, data []byte, filename, publicID string) (*UploadResult, error) {
	const op = "upload image"

	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	if publicID != "" {
		params["public_id"] = publicID
	}
	signature := Sign(params, c.cfg.APISecret)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range params {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := mw.WriteField("api_key", c.cfg.APIKey); err != nil {
		return nil, fmt.Errorf("failed to write form field api_key: %w", err)
	}
	if err := mw.WriteField("signature", signature); err != nil {
		return nil, fmt.Errorf("failed to write form field signature: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/v1_1/%s/image/upload", c.cfg.APIBaseURL, c.cfg.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.RemoteWrap(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Remote(op, resp.StatusCode, errorMessage(resp.Body))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.RemoteWrap(op, fmt.Errorf("failed to decode upload response: %w", err))
	}
	if result.PublicID == "" {
		return nil, apperr.Remote(op, resp.StatusCode, "upload response has no public_id")
	}
	return &result, nil
}

// URL builds the delivery URL of publicID with transformation applied.
// format, if set, is appended as the file extension.
func (c *Client) URL(publicID, transformation, format string) string {
	var b strings.Builder
	b.WriteString(c.cfg.DeliveryBaseURL)
	b.WriteString("/")
	b.WriteString(c.cfg.CloudName)
	b.WriteString("/image/upload/")
	if transformation != "" {
		b.WriteString(escape(transformation, false))
		b.WriteString("/")
	}
	b.WriteString(escape(publicID, true))
	if format = strings.TrimPrefix(format, "."); format != "" {
		b.WriteString(".")
		b.WriteString(escape(format, false))
	}
	return b.String()
}

// Fetch downloads url. Any non-200 status is a RemoteFailure carrying it.
func (c *Client) Fetch(ctx context.Context, url string) (*Image, error) {
	const op = "fetch derived image"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.RemoteWrap(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := resp.Header.Get("X-Cld-Error")
		if msg == "" {
			msg = errorMessage(resp.Body)
		}
		return nil, apperr.Remote(op, resp.StatusCode, msg)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImage+1))
	if err != nil {
		return nil, apperr.RemoteWrap(op, fmt.Errorf("failed to read image data: %w", err))
	}
	if int64(len(data)) > c.maxImage {
		return nil, apperr.RemoteWrap(op, fmt.Errorf("derived image is larger than %d bytes", c.maxImage))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &Image{Data: data, ContentType: contentType}, nil
}

// Sign computes the Cloudinary API signature: the sorted key=value pairs
// joined by '&', followed by the secret, hashed with SHA-1.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func errorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return "remote image service returned an error"
}

// escape percent-encodes every byte outside the characters Cloudinary
// URLs use structurally. Slashes survive only in public ids.
func escape(s string, keepSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
			b.WriteByte(ch)
		case ch == '_' || ch == '-' || ch == '.' || ch == ':' || ch == ';' || ch == ',':
			b.WriteByte(ch)
		case ch == '/' && keepSlash:
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}
