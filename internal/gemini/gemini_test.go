package gemini

import (
	"context"
	"testing"

	"github.com/lehigh-university-libraries/imageeditor/internal/providers"
	"github.com/stretchr/testify/assert"
)

func TestImageFormat(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/png", "png"},
		{"image/jpeg", "jpeg"},
		{"", "jpeg"},
		{"application/octet-stream", "jpeg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, imageFormat(tt.mime), tt.mime)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := New("").Generate(context.Background(), providers.Config{Model: "gemini-2.5-flash", Prompt: "hi"})
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}
