package service

import (
	"sync"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
)

// SessionState holds the observable in-memory session. Writers replace the whole record;
// readers always see a consistent copy.
type SessionState struct {
	mu          sync.RWMutex
	session     models.Session
	subscribers map[int]chan models.Session
	nextID      int
}

// NewSessionState starts in the loading state with no credentials.
func NewSessionState() *SessionState {
	return &SessionState{
		session:     models.Session{IsLoading: true},
		subscribers: make(map[int]chan models.Session),
	}
}

// Snapshot returns a copy of the current session.
func (s *SessionState) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// SetSession replaces the session atomically. A record carrying only one of token and
// user is normalised to the anonymous state so the pair is always set or cleared together.
func (s *SessionState) SetSession(next models.Session) {
	if next.Token == "" || next.User == nil {
		next.Token = ""
		next.User = nil
	}
	next = next.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = next
	for _, ch := range s.subscribers {
		publishLatest(ch, next.Clone())
	}
}

// Subscribe returns a channel that always holds the most recent session. Slow readers
// skip intermediate values. The returned func stops delivery and closes the channel.
func (s *SessionState) Subscribe() (<-chan models.Session, func()) {
	ch := make(chan models.Session, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	ch <- s.session.Clone()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// publishLatest must be called with the state lock held; it is the only sender.
func publishLatest(ch chan models.Session, value models.Session) {
	select {
	case <-ch:
	default:
	}
	ch <- value
}
