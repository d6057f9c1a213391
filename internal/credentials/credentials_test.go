package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, preauthorized ...string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	var b strings.Builder
	b.WriteString("credentials:\n  usernames:\n    jsmith:\n")
	b.WriteString("      email: jsmith@example.com\n")
	b.WriteString("      name: John Smith\n")
	b.WriteString("      password: " + string(hash) + "\n")
	b.WriteString("cookie:\n  expiry_days: 7\n  key: signing-key\n  name: editor_cookie\n")
	b.WriteString("pre-authorized:\n  emails:\n")
	for _, e := range preauthorized {
		b.WriteString("    - " + e + "\n")
	}

	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	s, err := Load(writeFile(t))
	require.NoError(t, err)

	c := s.Cookie()
	assert.Equal(t, "editor_cookie", c.Name)
	assert.Equal(t, 7, c.ExpiryDays)
	assert.Equal(t, "signing-key", c.Key)
	assert.Equal(t, []Account{{Username: "jsmith", Name: "John Smith", Email: "jsmith@example.com"}}, s.Users())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, apperr.KindIO, apperr.KindOf(err))
}

func TestAuthenticate(t *testing.T) {
	s, err := Load(writeFile(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{name: "valid", username: "jsmith", password: "secret123"},
		{name: "username is case-insensitive", username: "JSmith", password: "secret123"},
		{name: "wrong password", username: "jsmith", password: "nope", wantErr: true},
		{name: "unknown user", username: "nobody", password: "secret123", wantErr: true},
		{name: "empty password", username: "jsmith", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := s.Authenticate(tt.username, tt.password)
			if tt.wantErr {
				assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "jsmith", account.Username)
			assert.Equal(t, "John Smith", account.Name)
		})
	}
}

func validRegistration() Registration {
	return Registration{
		Email:          "ada@example.com",
		Username:       "ada",
		Name:           "Ada Lovelace",
		Password:       "engine",
		RepeatPassword: "engine",
	}
}

func TestRegisterRejections(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *Registration)
	}{
		{name: "missing field", modify: func(r *Registration) { r.Name = "" }},
		{name: "bad email", modify: func(r *Registration) { r.Email = "not-an-email" }},
		{name: "bad username", modify: func(r *Registration) { r.Username = "ada lovelace" }},
		{name: "long username", modify: func(r *Registration) { r.Username = strings.Repeat("a", 21) }},
		{name: "long name", modify: func(r *Registration) { r.Name = strings.Repeat("n", 101) }},
		{name: "password mismatch", modify: func(r *Registration) { r.RepeatPassword = "other" }},
		{name: "existing username", modify: func(r *Registration) { r.Username = "JSMITH" }},
		{name: "existing email", modify: func(r *Registration) { r.Email = "jsmith@example.com" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t)
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			s, err := Load(path)
			require.NoError(t, err)

			r := validRegistration()
			tt.modify(&r)
			_, err = s.Register(r)
			assert.Equal(t, apperr.KindRegistration, apperr.KindOf(err))

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Len(t, s.Users(), 1)
		})
	}
}

func TestRegisterPersists(t *testing.T) {
	path := writeFile(t)
	s, err := Load(path)
	require.NoError(t, err)

	account, err := s.Register(validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "ada", account.Username)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Users(), 2)

	_, err = reloaded.Authenticate("ada", "engine")
	assert.NoError(t, err)
	assert.Equal(t, "signing-key", reloaded.Cookie().Key)
}

func TestRegisterPreauthorization(t *testing.T) {
	path := writeFile(t, "ada@example.com")
	s, err := Load(path, WithPreauthorization(true))
	require.NoError(t, err)

	r := validRegistration()
	r.Email = "grace@example.com"
	r.Username = "grace"
	_, err = s.Register(r)
	assert.Equal(t, apperr.KindRegistration, apperr.KindOf(err))

	_, err = s.Register(validRegistration())
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.file.PreAuthorized.Emails)
}

func TestAddUser(t *testing.T) {
	path := writeFile(t)
	s, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, s.AddUser("Admin", "Admin", "admin@example.com", "pw"))
	account, ok := s.Lookup("admin")
	require.True(t, ok)
	assert.Equal(t, "admin@example.com", account.Email)

	assert.Error(t, s.AddUser("bad name", "x", "x@example.com", "pw"))
}

func TestRegisterPreservesUnknownKeys(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	content := "credentials:\n  usernames:\n    jsmith:\n" +
		"      email: jsmith@example.com\n" +
		"      failed_login_attempts: 2\n" +
		"      logged_in: false\n" +
		"      name: John Smith\n" +
		"      password: " + string(hash) + "\n" +
		"      roles:\n        - admin\n" +
		"cookie:\n  expiry_days: 7\n  key: signing-key\n  name: editor_cookie\n" +
		"oauth2:\n  google:\n    client_id: abc\n" +
		"pre-authorized:\n  emails:\n    - ada@example.com\n"
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	_, err = s.Register(validRegistration())
	require.NoError(t, err)
	require.NoError(t, s.AddUser("jsmith", "John Q. Smith", "jsmith@example.com", "newpass"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))

	oauth2, ok := raw["oauth2"].(map[string]any)
	require.True(t, ok, "oauth2 section kept")
	assert.Equal(t, map[string]any{"client_id": "abc"}, oauth2["google"])

	users := raw["credentials"].(map[string]any)["usernames"].(map[string]any)
	jsmith := users["jsmith"].(map[string]any)
	assert.Equal(t, []any{"admin"}, jsmith["roles"])
	assert.Equal(t, false, jsmith["logged_in"])
	assert.Equal(t, 2, jsmith["failed_login_attempts"])
	assert.Equal(t, "John Q. Smith", jsmith["name"])

	ada := users["ada"].(map[string]any)
	assert.Equal(t, "Ada Lovelace", ada["name"])
}
