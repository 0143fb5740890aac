package clock

import "time"

// DayID identifies a calendar day at day granularity in UTC. Streak and quota
// bookkeeping compares DayIDs by equality only.
type DayID string

const layout = "2006-01-02"

// Today maps a clock reading to its UTC calendar day.
func Today(now time.Time) DayID {
	return DayID(now.UTC().Format(layout))
}

// Yesterday maps a clock reading to the UTC calendar day before it.
func Yesterday(now time.Time) DayID {
	return DayID(now.UTC().AddDate(0, 0, -1).Format(layout))
}
