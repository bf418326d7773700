package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/handiism/bandcamp-verificator/internal/model"
)

const (
	sessionCookie = "bcv_session"
	sessionTTL    = 12 * time.Hour
)

type session struct {
	id       string
	csrf     string
	creds    model.Credentials
	lastSeen time.Time
}

// sessionStore keeps one CSRF token per browser session, plus any
// credentials auto-extracted for it.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

func newSessionStore(ttl time.Duration, now func() time.Time) *sessionStore {
	return &sessionStore{sessions: map[string]*session{}, ttl: ttl, now: now}
}

// ensure returns the session for id, creating a new one when id is
// unknown or expired.
func (st *sessionStore) ensure(id string) session {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.expire()

	if s, ok := st.sessions[id]; ok && id != "" {
		s.lastSeen = st.now()
		return *s
	}

	s := &session{id: uuid.New().String(), csrf: newCSRFToken(), lastSeen: st.now()}
	st.sessions[s.id] = s
	return *s
}

// check reports whether token is the CSRF token of session id.
func (st *sessionStore) check(id, token string) (session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok || token == "" || subtle.ConstantTimeCompare([]byte(s.csrf), []byte(token)) != 1 {
		return session{}, false
	}
	s.lastSeen = st.now()
	return *s, true
}

// lookup returns session id without a CSRF check.
func (st *sessionStore) lookup(id string) (session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return session{}, false
	}
	return *s, true
}

func (st *sessionStore) setCredentials(id string, creds model.Credentials) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		s.creds = creds
	}
}

func (st *sessionStore) expire() {
	cutoff := st.now().Add(-st.ttl)
	for id, s := range st.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}

// newCSRFToken returns 32 random bytes as hex.
func newCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
