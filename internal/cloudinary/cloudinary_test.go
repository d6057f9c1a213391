package cloudinary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, apiURL string) *Client {
	t.Helper()
	c, err := New(Config{
		CloudName:       "demo",
		APIKey:          "key",
		APISecret:       "secret",
		APIBaseURL:      apiURL,
		DeliveryBaseURL: "https://res.example.com/",
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"})
	assert.Error(t, err)
}

func TestSign(t *testing.T) {
	// Example from the Cloudinary signature documentation.
	params := map[string]string{
		"eager":     "w_400,h_300,c_pad|w_260,h_200,c_crop",
		"public_id": "sample_image",
		"timestamp": "1315060510",
	}
	assert.Equal(t, "bfd09f95f331f558cbd1320e67aa8d488770583e", Sign(params, "abcd"))
}

func TestSignSkipsEmptyValues(t *testing.T) {
	a := Sign(map[string]string{"timestamp": "1", "public_id": ""}, "s")
	b := Sign(map[string]string{"timestamp": "1"}, "s")
	assert.Equal(t, a, b)
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1_1/demo/image/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		assert.Equal(t, "me/rm-abc", r.FormValue("public_id"))
		expected := Sign(map[string]string{"timestamp": "1700000000", "public_id": "me/rm-abc"}, "secret")
		assert.Equal(t, expected, r.FormValue("signature"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "photo.png", hdr.Filename)
		assert.Equal(t, "pixels", string(data))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"public_id":  "me/rm-abc",
			"format":     "png",
			"secure_url": "https://res.example.com/demo/image/upload/v1/me/rm-abc.png",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Upload(context.Background(), []byte("pixels"), "photo.png", "me/rm-abc")
	require.NoError(t, err)
	assert.Equal(t, "me/rm-abc", res.PublicID)
	assert.Equal(t, "png", res.Format)
}

func TestUploadNonSuccessIsRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid Signature"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Upload(context.Background(), []byte("pixels"), "photo.png", "x")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Equal(t, http.StatusUnauthorized, apperr.StatusCodeOf(err))
	assert.Contains(t, err.Error(), "Invalid Signature")
}

func TestURL(t *testing.T) {
	c := newTestClient(t, "http://unused")

	tests := []struct {
		name           string
		publicID       string
		transformation string
		format         string
		expected       string
	}{
		{
			name:           "expand",
			publicID:       "genfill-image-1",
			transformation: "ar_1:1,b_gen_fill,c_pad,g_center,w_500",
			expected:       "https://res.example.com/demo/image/upload/ar_1:1,b_gen_fill,c_pad,g_center,w_500/genfill-image-1",
		},
		{
			name:           "escapes free text",
			publicID:       "replace-image-1",
			transformation: "e_gen_replace:from_T Shirt;to_Black/Blazer",
			expected:       "https://res.example.com/demo/image/upload/e_gen_replace:from_T%20Shirt;to_Black%2FBlazer/replace-image-1",
		},
		{
			name:           "keeps folder in public id and appends format",
			publicID:       "me/rm-1",
			transformation: "e_gen_restore",
			format:         ".png",
			expected:       "https://res.example.com/demo/image/upload/e_gen_restore/me/rm-1.png",
		},
		{
			name:     "no transformation",
			publicID: "plain",
			expected: "https://res.example.com/demo/image/upload/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.URL(tt.publicID, tt.transformation, tt.format))
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("derived"))
		default:
			w.Header().Set("X-Cld-Error", "Resource not found")
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	img, err := c.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "derived", string(img.Data))
	assert.Equal(t, "image/png", img.ContentType)

	_, err = c.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Equal(t, http.StatusNotFound, apperr.StatusCodeOf(err))
	assert.Contains(t, err.Error(), "Resource not found")
}

func TestFetchRejectsOversizedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("0123456789abcdef"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.maxImage = 8

	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "larger than 8 bytes")

	c.maxImage = 16
	img, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, img.Data, 16)
}

func TestFetchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
}
