package aggregator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CCU-Computing/490-project-mycalendar/internal/observability"
)

// Session is the per-caller holder of the Moodle token and the
// bootstrap cache. Identity fields are populated at most once; after
// population they are read-only for the life of the session.
type Session struct {
	ID          string
	DisplayName string
	MoodleToken string
	CreatedAt   time.Time
	ExpiresAt   time.Time

	// mu guards first population against concurrent bootstraps.
	mu       sync.Mutex
	userID   int64
	userName string
	siteName string
	courses  []Course
}

// Identity returns the cached bootstrap result. ok is false until both
// the identity fields and the course list have been populated.
func (s *Session) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == 0 || s.courses == nil {
		return Identity{}, false
	}
	return Identity{
		UserID:   s.userID,
		UserName: s.userName,
		SiteName: s.siteName,
		Courses:  s.courses,
	}, true
}

// Store keeps live sessions in memory, keyed by session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewStore constructs a Store whose sessions expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create registers a new session for the given Moodle token.
func (st *Store) Create(displayName, moodleToken string) *Session {
	now := time.Now().UTC()
	sess := &Session{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		MoodleToken: moodleToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(st.ttl),
	}

	st.mu.Lock()
	st.sessions[sess.ID] = sess
	observability.SetActiveSessions(len(st.sessions))
	st.mu.Unlock()
	return sess
}

// Get resolves a live session by id. Expired sessions resolve as absent.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(sess.ExpiresAt) {
		st.Delete(id)
		return nil, false
	}
	return sess, true
}

// Delete destroys a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	observability.SetActiveSessions(len(st.sessions))
	st.mu.Unlock()
}

// Sweep drops expired sessions. It should be called periodically; the API
// entrypoint runs it on a ticker.
func (st *Store) Sweep() {
	now := time.Now()
	st.mu.Lock()
	for id, sess := range st.sessions {
		if now.After(sess.ExpiresAt) {
			delete(st.sessions, id)
		}
	}
	observability.SetActiveSessions(len(st.sessions))
	st.mu.Unlock()
}
