// Package session holds per-browser-session state: authentication
// status, the selected workflow and the phase of the current workflow
// invocation. Handlers receive a *Session explicitly; there is no
// ambient global state.
package session

import (
	"sync"
	"time"

	"github.com/lehigh-university-libraries/imageeditor/internal/staging"
	"github.com/lehigh-university-libraries/imageeditor/internal/transform"
	"github.com/lehigh-university-libraries/imageeditor/internal/workflow"
)

// Status is the tri-state authentication status.
type Status int

const (
	Unauthenticated Status = iota
	Authenticated
	AuthFailed
)

func (s Status) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case AuthFailed:
		return "failed"
	default:
		return "unauthenticated"
	}
}

// Phase tracks one workflow invocation:
// Idle -> Staged -> Submitted -> {Rendered | Failed} -> Idle.
type Phase int

const (
	Idle Phase = iota
	Staged
	Submitted
	Rendered
	Failed
)

func (p Phase) String() string {
	switch p {
	case Staged:
		return "staged"
	case Submitted:
		return "submitted"
	case Rendered:
		return "rendered"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	lastSeen   time.Time
	status     Status
	username   string
	name       string
	workflow   workflow.Kind
	phase      Phase
	generation uint64
	result     *transform.Result
	failure    error
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		lastSeen:  now,
	}
}

// Touch records activity for idle expiry.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// User returns the username and display name of an authenticated session.
func (s *Session) User() (username, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.name
}

func (s *Session) SetAuthenticated(username, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Authenticated
	s.username = username
	s.name = name
}

func (s *Session) SetAuthFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = AuthFailed
	s.username = ""
	s.name = ""
}

// Result returns the last rendered comparison, if any.
func (s *Session) Result() *transform.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// View is a JSON snapshot of a session for the UI.
type View struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Username string          `json:"username,omitempty"`
	Name     string          `json:"name,omitempty"`
	Workflow *workflow.Kind  `json:"workflow"`
	Phase    string          `json:"phase"`
	Upload   *staging.Upload `json:"upload,omitempty"`
	Result   *ResultView     `json:"result,omitempty"`
	Failure  string          `json:"failure,omitempty"`
}

type ResultView struct {
	Workflow       workflow.Kind `json:"workflow"`
	PublicID       string        `json:"public_id"`
	Transformation string        `json:"transformation"`
	URL            string        `json:"url"`
	OriginalURL    string        `json:"original_url"`
	TransformedURL string        `json:"transformed_url"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NewResultView describes r with the local URLs the UI loads both images from.
func NewResultView(r *transform.Result) *ResultView {
	if r == nil {
		return nil
	}
	return &ResultView{
		Workflow:       r.Kind,
		PublicID:       r.PublicID,
		Transformation: r.Transformation,
		URL:            r.URL,
		OriginalURL:    "/api/result/original",
		TransformedURL: "/api/result/transformed",
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Session) view(upload *staging.Upload) View {
	v := View{
		ID:       s.ID,
		Status:   s.status.String(),
		Username: s.username,
		Name:     s.name,
		Phase:    s.phase.String(),
		Upload:   upload,
		Result:   NewResultView(s.result),
	}
	if s.workflow.Valid() {
		k := s.workflow
		v.Workflow = &k
	}
	if s.failure != nil {
		v.Failure = s.failure.Error()
	}
	return v
}
