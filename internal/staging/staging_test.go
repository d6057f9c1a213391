package staging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStageThenClearLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	u, err := s.Stage("sess-1", pngBytes(t), "png")
	require.NoError(t, err)

	assert.Equal(t, ".png", u.Extension)
	assert.Equal(t, "image/png", u.ContentType)
	assert.Equal(t, 4, u.Width)
	assert.Equal(t, 3, u.Height)
	assert.Regexp(t, `^temp_image_[0-9a-f]{32}\.png$`, u.Filename)
	assert.FileExists(t, u.Path)
	assert.Equal(t, 1, s.Count())

	require.NoError(t, s.Clear("sess-1"))

	assert.NoFileExists(t, u.Path)
	assert.Empty(t, listDir(t, dir))
	assert.Equal(t, 0, s.Count())
}

func TestClearIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, s.Clear("nobody"))

	_, err = s.Stage("sess", pngBytes(t), ".png")
	require.NoError(t, err)
	assert.NoError(t, s.Clear("sess"))
	assert.NoError(t, s.Clear("sess"))
}

func TestStageReplacesPreviousUpload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	first, err := s.Stage("sess", pngBytes(t), ".png")
	require.NoError(t, err)
	second, err := s.Stage("sess", pngBytes(t), ".PNG")
	require.NoError(t, err)

	assert.NotEqual(t, first.Filename, second.Filename)
	assert.NoFileExists(t, first.Path)
	assert.Equal(t, []string{second.Filename}, listDir(t, dir))

	got, ok := s.Get("sess")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestStageIsScopedPerSession(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	a, err := s.Stage("a", pngBytes(t), ".png")
	require.NoError(t, err)
	_, err = s.Stage("b", pngBytes(t), ".png")
	require.NoError(t, err)

	require.NoError(t, s.Clear("b"))
	assert.FileExists(t, a.Path)
	assert.Equal(t, 1, s.Count())
}

func TestStageRejectsInvalidInput(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		ext  string
	}{
		{"gif extension", pngBytes(t), ".gif"},
		{"no extension", pngBytes(t), ""},
		{"empty data", nil, ".png"},
		{"not an image", []byte("hello, world"), ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Stage("sess", tt.data, tt.ext)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
	assert.Equal(t, 0, s.Count())
}

func TestStageFailsWithIOFailureWhenStorageUnavailable(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	_, err = s.Stage("sess", pngBytes(t), ".png")
	require.Error(t, err)
	assert.Equal(t, apperr.KindIO, apperr.KindOf(err))
	assert.Equal(t, 0, s.Count())
}

func TestClearAll(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Stage(id, pngBytes(t), ".png")
		require.NoError(t, err)
	}

	require.NoError(t, s.ClearAll())
	assert.Empty(t, listDir(t, dir))
	assert.Equal(t, 0, s.Count())
}

func TestUploadReadAll(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "nested", "staging"))
	require.NoError(t, err)

	data := pngBytes(t)
	u, err := s.Stage("sess", data, ".png")
	require.NoError(t, err)

	got, err := u.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDiscardLeavesNewerUpload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	old, err := s.Stage("sess", pngBytes(t), ".png")
	require.NoError(t, err)
	newer, err := s.Stage("sess", pngBytes(t), ".png")
	require.NoError(t, err)

	require.NoError(t, s.Discard(old))
	assert.FileExists(t, newer.Path)
	_, ok := s.Get("sess")
	assert.True(t, ok)

	require.NoError(t, s.Discard(newer))
	assert.Empty(t, listDir(t, dir))
	_, ok = s.Get("sess")
	assert.False(t, ok)
}
