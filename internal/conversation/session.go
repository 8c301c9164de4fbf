// Package conversation holds the in-memory transcript of a chat session.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an append-only list of turns. It is safe for concurrent use.
type Session struct {
	ID string

	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// NewSession creates an empty session with a random ID.
func NewSession() *Session {
	return &Session{
		ID:  uuid.New().String(),
		now: time.Now,
	}
}

// Append adds t to the end of the transcript. A zero CreatedAt is set to
// the current time.
func (s *Session) Append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock()
	}
	s.turns = append(s.turns, t)
}

// AppendUser records a user turn.
func (s *Session) AppendUser(content string) {
	s.Append(Turn{Role: RoleUser, Content: content})
}

// AppendAssistant records an assistant turn.
func (s *Session) AppendAssistant(content string) {
	s.Append(Turn{Role: RoleAssistant, Content: content})
}

// All returns a copy of the transcript in insertion order.
func (s *Session) All() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the most recent turn, or false if the session is empty.
func (s *Session) Last() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

func (s *Session) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
