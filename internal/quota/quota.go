package quota

import (
	"github.com/parlohq/parlo/backend/internal/clock"
	"github.com/parlohq/parlo/backend/internal/model/profile"
)

// Default thresholds, overridable through configuration.
const (
	DefaultDailyLimit      = 3
	DefaultCompletionTurns = 5
)

// Limits bundles the two tunable quota thresholds.
type Limits struct {
	// DailyLimit is how many completed conversations a non-premium user may
	// bill per day.
	DailyLimit int
	// CompletionTurns is the user-turn count at which a conversation counts
	// against the daily quota.
	CompletionTurns int
}

// DefaultLimits returns the product defaults.
func DefaultLimits() Limits {
	return Limits{DailyLimit: DefaultDailyLimit, CompletionTurns: DefaultCompletionTurns}
}

// Engine computes streak and quota decisions as pure functions over a profile
// snapshot and the current day. It holds no state beyond the limits.
type Engine struct {
	limits Limits
}

// NewEngine creates an engine with the supplied limits, falling back to
// defaults for non-positive values.
func NewEngine(limits Limits) *Engine {
	if limits.DailyLimit <= 0 {
		limits.DailyLimit = DefaultDailyLimit
	}
	if limits.CompletionTurns <= 0 {
		limits.CompletionTurns = DefaultCompletionTurns
	}
	return &Engine{limits: limits}
}

// Limits returns the engine's active thresholds.
func (e *Engine) Limits() Limits {
	return e.limits
}

// ReconcileLogin computes the field updates a login-triggering fetch owes the
// profile: streak advance or reset, login-day stamp, and the daily
// conversation reset. An empty update means the profile is already current
// for today and must be returned unmodified.
func (e *Engine) ReconcileLogin(p profile.Profile, today, yesterday clock.DayID) profile.Update {
	var update profile.Update

	switch {
	case p.LastLoginDay == yesterday:
		streak := p.Streak + 1
		update.Streak = &streak
	case p.LastLoginDay != today:
		// First-ever login or a gap of more than one day.
		streak := 1
		update.Streak = &streak
	}

	if p.LastLoginDay != today {
		day := today
		update.LastLoginDay = &day
	}

	if p.LastConversationDay != today {
		zero := 0
		day := today
		update.DailyConversations = &zero
		update.LastConversationDay = &day
	}

	return update
}

// Check reports whether the profile may start a conversation. Premium
// bypasses the daily limit.
func (e *Engine) Check(p profile.Profile) bool {
	return p.IsPremium || p.DailyConversations < e.limits.DailyLimit
}

// CompletionDue reports whether a session reaching the given turn count has
// just crossed the completion threshold. True only at the threshold itself so
// a session records at most one completion.
func (e *Engine) CompletionDue(turns int) bool {
	return turns == e.limits.CompletionTurns
}

// RecordCompletion computes the increment applied when a non-premium
// conversation completes. Callers must pass a freshly fetched profile when
// their cached snapshot's LastConversationDay is stale.
func (e *Engine) RecordCompletion(p profile.Profile, today clock.DayID) profile.Update {
	count := p.DailyConversations + 1
	day := today
	return profile.Update{
		DailyConversations:  &count,
		LastConversationDay: &day,
	}
}
