package profile

import (
	"github.com/parlohq/parlo/backend/internal/clock"
)

// Profile is the durable per-user record holding streak and quota counters.
// DailyConversations is only meaningful relative to LastConversationDay: a
// stale day means the counter is logically zero until the next reset.
type Profile struct {
	ID                  string      `json:"id"`
	Streak              int         `json:"streak"`
	LastLoginDay        clock.DayID `json:"lastLoginDay,omitempty"`
	LastConversationDay clock.DayID `json:"lastConversationDay,omitempty"`
	DailyConversations  int         `json:"dailyConversations"`
	IsPremium           bool        `json:"isPremium"`
}

// Update carries a partial set of field changes applied atomically to one
// record. Nil fields are left untouched.
type Update struct {
	Streak              *int
	LastLoginDay        *clock.DayID
	LastConversationDay *clock.DayID
	DailyConversations  *int
}

// Empty reports whether the update would change nothing.
func (u Update) Empty() bool {
	return u.Streak == nil && u.LastLoginDay == nil &&
		u.LastConversationDay == nil && u.DailyConversations == nil
}

// Apply returns a copy of p with the update's fields set.
func (u Update) Apply(p Profile) Profile {
	if u.Streak != nil {
		p.Streak = *u.Streak
	}
	if u.LastLoginDay != nil {
		p.LastLoginDay = *u.LastLoginDay
	}
	if u.LastConversationDay != nil {
		p.LastConversationDay = *u.LastConversationDay
	}
	if u.DailyConversations != nil {
		p.DailyConversations = *u.DailyConversations
	}
	return p
}
