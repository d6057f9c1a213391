package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/imageeditor/internal/metrics"
)

type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *Store) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

// Create starts a new unauthenticated session with a random id.
func (s *Store) Create() *Session {
	session := newSession(uuid.NewString(), s.now())

	s.mu.Lock()
	s.sessions[session.ID] = session
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	return session
}

// GetOrCreate returns the session for sessionID, or a new one when the
// id is unknown (expired or forged cookies start fresh).
func (s *Store) GetOrCreate(sessionID string) (*Session, bool) {
	if sessionID != "" {
		if session, ok := s.Get(sessionID); ok {
			session.Touch(s.now())
			return session, false
		}
	}
	return s.Create(), true
}

func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Expiry is the idle lifetime of a session. Sessions that never logged
// in use AnonymousTTL.
type Expiry struct {
	TTL          time.Duration
	AnonymousTTL time.Duration
}

func (e Expiry) ttlFor(s *Session) time.Duration {
	if e.AnonymousTTL > 0 && s.Status() != Authenticated {
		return e.AnonymousTTL
	}
	return e.TTL
}

// Expired removes and returns the sessions idle for longer than their
// expiry allows.
func (s *Store) Expired(expiry Expiry) []*Session {
	now := s.now()

	s.mu.Lock()
	var expired []*Session
	for id, session := range s.sessions {
		if session.LastSeen().Before(now.Add(-expiry.ttlFor(session))) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	return expired
}
