package session

import (
	"time"

	"github.com/parlohq/parlo/backend/internal/service/ai"
)

// Session is the per-connection conversation state. At most one Session
// exists per connection identity; all mutation happens on the connection's
// own read loop, so the fields need no locking.
type Session struct {
	ConnID    string
	UserID    string
	Dialogue  *ai.Dialogue
	StartedAt time.Time

	turns int
}

// Turns returns the number of user-authored messages sent in this session.
func (s *Session) Turns() int {
	return s.turns
}

// NextTurn increments the turn counter and returns the new count.
func (s *Session) NextTurn() int {
	s.turns++
	return s.turns
}
