package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth", Auth("login", "bad password"), KindAuth},
		{"registration", Registration("register", "taken"), KindRegistration},
		{"validation", Validation("build", "scale %d out of range", 5), KindValidation},
		{"remote", Remote("upload", 500, "boom"), KindRemote},
		{"io", IO("stage", os.ErrPermission), KindIO},
		{"wrapped", fmt.Errorf("outer: %w", IO("stage", os.ErrPermission)), KindIO},
		{"plain", errors.New("plain"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRemoteCarriesStatusCode(t *testing.T) {
	err := fmt.Errorf("submit: %w", Remote("upload", http.StatusServiceUnavailable, "upload failed"))

	require.Equal(t, http.StatusServiceUnavailable, StatusCodeOf(err))
	assert.Contains(t, err.Error(), "status code 503")
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
}

func TestIsMatchesKind(t *testing.T) {
	err := IO("clear", os.ErrNotExist)

	assert.True(t, errors.Is(err, &Error{Kind: KindIO}))
	assert.False(t, errors.Is(err, &Error{Kind: KindRemote}))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Auth("", "x")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Registration("", "x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("", "x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(IO("", os.ErrClosed)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("x")))
}
