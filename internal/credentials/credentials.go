// Package credentials reads and writes the YAML user file shared with
// streamlit-authenticator deployments.
package credentials

import (
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCookieName = "imageeditor_auth"
	DefaultExpiryDays = 30

	maxNameLength = 100
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,20}$`)

// Every level of the file keeps the keys it does not model in Extra
// (roles, logged_in, oauth2 and the like) so a rewrite carries them over.

type User struct {
	Email    string         `yaml:"email"`
	Name     string         `yaml:"name"`
	Password string         `yaml:"password"`
	Extra    map[string]any `yaml:",inline"`
}

type Cookie struct {
	ExpiryDays int            `yaml:"expiry_days"`
	Key        string         `yaml:"key"`
	Name       string         `yaml:"name"`
	Extra      map[string]any `yaml:",inline"`
}

type PreAuthorized struct {
	Emails []string       `yaml:"emails"`
	Extra  map[string]any `yaml:",inline"`
}

type Credentials struct {
	Usernames map[string]User `yaml:"usernames"`
	Extra     map[string]any  `yaml:",inline"`
}

// File is the on-disk layout.
type File struct {
	Credentials   Credentials    `yaml:"credentials"`
	Cookie        Cookie         `yaml:"cookie"`
	PreAuthorized PreAuthorized  `yaml:"pre-authorized"`
	Extra         map[string]any `yaml:",inline"`
}

// Registration is the self-service signup form.
type Registration struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Password       string `json:"password"`
	RepeatPassword string `json:"repeat_password"`
}

// Account is a user without its password hash.
type Account struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type Store struct {
	path                    string
	requirePreauthorization bool

	mu   sync.RWMutex
	file File
}

type Option func(*Store)

// WithPreauthorization only lets emails listed under pre-authorized register.
func WithPreauthorization(required bool) Option {
	return func(s *Store) {
		s.requirePreauthorization = required
	}
}

// Load reads the credential file at path.
func Load(path string, opts ...Option) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.IO("load credentials", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperr.IO("load credentials", fmt.Errorf("failed to parse %s: %w", path, err))
	}
	if f.Credentials.Usernames == nil {
		f.Credentials.Usernames = make(map[string]User)
	}
	if f.Cookie.Name == "" {
		f.Cookie.Name = DefaultCookieName
	}
	if f.Cookie.ExpiryDays <= 0 {
		f.Cookie.ExpiryDays = DefaultExpiryDays
	}

	s := &Store{path: path, file: f}
	for _, opt := range opts {
		opt(s)
	}

	slog.Info("Loaded credentials", "path", path, "users", len(f.Credentials.Usernames))
	return s, nil
}

func (s *Store) Cookie() Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Cookie
}

// Authenticate checks password against the stored hash for username.
// Usernames are matched case-insensitively.
func (s *Store) Authenticate(username, password string) (Account, error) {
	const op = "login"
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	user, ok := s.file.Credentials.Usernames[username]
	s.mu.RUnlock()

	if !ok || password == "" {
		return Account{}, apperr.Auth(op, "username/password is incorrect")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return Account{}, apperr.Auth(op, "username/password is incorrect")
	}
	return Account{Username: username, Name: user.Name, Email: user.Email}, nil
}

// Lookup returns the account for username, if it exists.
func (s *Store) Lookup(username string) (Account, bool) {
	username = strings.ToLower(username)

	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.file.Credentials.Usernames[username]
	if !ok {
		return Account{}, false
	}
	return Account{Username: username, Name: user.Name, Email: user.Email}, true
}

// Register validates r and persists the new user. On any failure the
// file on disk is left untouched.
func (s *Store) Register(r Registration) (Account, error) {
	const op = "register user"

	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.ToLower(strings.TrimSpace(r.Username))
	r.Name = strings.TrimSpace(r.Name)

	if err := validate(r); err != nil {
		return Account{}, err
	}

	hash, err := Hash(r.Password)
	if err != nil {
		return Account{}, apperr.IO(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.file.Credentials.Usernames[r.Username]; taken {
		return Account{}, apperr.Registration(op, "username already taken")
	}
	if s.emailTaken(r.Email) {
		return Account{}, apperr.Registration(op, "email already taken")
	}

	next := s.clone()
	if s.requirePreauthorization {
		i := slices.IndexFunc(next.PreAuthorized.Emails, func(e string) bool {
			return strings.EqualFold(e, r.Email)
		})
		if i < 0 {
			return Account{}, apperr.Registration(op, "user not pre-authorized to register")
		}
		next.PreAuthorized.Emails = slices.Delete(next.PreAuthorized.Emails, i, i+1)
	}
	next.Credentials.Usernames[r.Username] = User{Email: r.Email, Name: r.Name, Password: hash}

	if err := write(s.path, next); err != nil {
		return Account{}, err
	}
	s.file = next

	slog.Info("Registered user", "username", r.Username)
	return Account{Username: r.Username, Name: r.Name, Email: r.Email}, nil
}

// AddUser stores a user without the registration checks. Used by the CLI.
func (s *Store) AddUser(username, name, email, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if !usernamePattern.MatchString(username) {
		return apperr.Validation("add user", "username must be 1-20 letters, digits, _ or -")
	}
	hash, err := Hash(password)
	if err != nil {
		return apperr.IO("add user", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	user := next.Credentials.Usernames[username]
	user.Email, user.Name, user.Password = email, name, hash
	next.Credentials.Usernames[username] = user
	if err := write(s.path, next); err != nil {
		return err
	}
	s.file = next
	return nil
}

// Users lists accounts sorted by username.
func (s *Store) Users() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]Account, 0, len(s.file.Credentials.Usernames))
	for username, u := range s.file.Credentials.Usernames {
		accounts = append(accounts, Account{Username: username, Name: u.Name, Email: u.Email})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Username < accounts[j].Username
	})
	return accounts
}

// Hash returns the bcrypt hash of password.
func Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func validate(r Registration) error {
	const op = "register user"
	if r.Email == "" || r.Username == "" || r.Name == "" || r.Password == "" || r.RepeatPassword == "" {
		return apperr.Registration(op, "please enter an email, username, name and password")
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return apperr.Registration(op, "email is not valid")
	}
	if !usernamePattern.MatchString(r.Username) {
		return apperr.Registration(op, "username is not valid")
	}
	if utf8.RuneCountInString(r.Name) > maxNameLength {
		return apperr.Registration(op, "name is not valid")
	}
	if r.Password != r.RepeatPassword {
		return apperr.Registration(op, "passwords do not match")
	}
	return nil
}

func (s *Store) emailTaken(email string) bool {
	for _, u := range s.file.Credentials.Usernames {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (s *Store) clone() File {
	next := s.file
	next.Credentials.Usernames = make(map[string]User, len(s.file.Credentials.Usernames)+1)
	for k, v := range s.file.Credentials.Usernames {
		next.Credentials.Usernames[k] = v
	}
	next.PreAuthorized.Emails = slices.Clone(s.file.PreAuthorized.Emails)
	return next
}

// write replaces path via a temp file and rename.
func write(path string, f File) error {
	data, err := yaml.Marshal(&f)
	if err != nil {
		return apperr.IO("save credentials", fmt.Errorf("failed to encode credentials: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".credentials-*.yaml")
	if err != nil {
		return apperr.IO("save credentials", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.IO("save credentials", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.IO("save credentials", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return apperr.IO("save credentials", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperr.IO("save credentials", err)
	}
	return nil
}
