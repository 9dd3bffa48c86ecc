package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// State is the per-browser-session render state. The page controller reads a
// copy before each render cycle, applies at most one user action to it, and
// puts the updated copy back. There is no hidden shared mutation: the store
// below is the only place state survives between cycles.
type State struct {
	LoggedIn bool
	// Token holds the Google OAuth credentials after a successful callback
	// exchange. Opaque to everything but the gcal adapter.
	Token *oauth2.Token

	// Calendar cursor: the currently displayed month.
	CalYear  int
	CalMonth int

	// SelectedDate is independent of the cursor; navigating months does not
	// touch a selection made in another month.
	SelectedDate time.Time

	// Notice is a one-shot user-facing message shown on the next render.
	Notice string
}

// entry wraps a State with its expiry bookkeeping.
type entry struct {
	state      State
	lastAccess time.Time
}

// Store keeps session state in memory, keyed by the session cookie value.
// Sessions idle longer than the TTL are removed by Sweep, which the cron
// scheduler invokes on the refresh schedule.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
}

// NewStore creates an empty store with the given idle TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
}

// New creates a session initialized to today's date in the given display
// location and returns its ID for the cookie.
func (s *Store) New(loc *time.Location) (string, State, error) {
	id, err := newSessionID()
	if err != nil {
		return "", State{}, err
	}

	now := time.Now().In(loc)
	st := State{
		CalYear:      now.Year(),
		CalMonth:     int(now.Month()),
		SelectedDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}

	s.mu.Lock()
	s.entries[id] = &entry{state: st, lastAccess: time.Now()}
	s.mu.Unlock()

	return id, st, nil
}

// Get returns a copy of the session state. The second result is false if the
// session does not exist or has already idled out.
func (s *Store) Get(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return State{}, false
	}
	if time.Since(e.lastAccess) > s.ttl {
		delete(s.entries, id)
		return State{}, false
	}
	e.lastAccess = time.Now()
	return e.state, true
}

// Put stores the updated state for an existing session. Unknown IDs are
// ignored; the caller will get a fresh session on its next Get miss.
func (s *Store) Put(id string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.state = st
	e.lastAccess = time.Now()
}

// Delete removes a session (e.g., logout).
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Sweep drops sessions idle beyond the TTL and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if time.Since(e.lastAccess) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions (for logging).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
