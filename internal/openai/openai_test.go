package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/imageeditor/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []contentPart `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 1)
		require.Len(t, body.Messages[0].Content, 2)
		assert.Equal(t, "image_url", body.Messages[0].Content[1].Type)
		assert.True(t, strings.HasPrefix(body.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"mug\nbottle"}}]}`))
	}))
	defer server.Close()

	o := New("sk-test")
	o.URL = server.URL

	text, err := o.Generate(context.Background(), providers.Config{
		Model:    "gpt-4o-mini",
		Prompt:   "list objects",
		Image:    []byte("png"),
		MIMEType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "mug\nbottle", text)
}

func TestGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	o := New("sk-test")
	o.URL = server.URL
	_, err := o.Generate(context.Background(), providers.Config{Model: "gpt-4o-mini"})
	assert.ErrorContains(t, err, "no choices")
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New("").Generate(context.Background(), providers.Config{})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
