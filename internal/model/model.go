package model

import "time"

// Event represents a logical calendar event before recurrence expansion.
// Most logic operates on ParsedEvent (internal/ics) and Occurrence, but a
// central Event type is useful for future refactors (e.g. once draft
// submission inserts into the provider).
type Event struct {
	SourceID string // calendar source ID (e.g., config ICS ID)
	UID      string // iCalendar UID

	Summary  string
	Location string

	AllDay bool

	// Original start/end in the event's own timezone.
	Start time.Time
	End   time.Time
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string
	UID      string

	Summary  string
	Location string

	AllDay bool

	Start time.Time
	End   time.Time
}

// StartString renders the occurrence start the way event providers expose
// start boundaries: date-only for all-day events, RFC 3339 otherwise.
func (o Occurrence) StartString() string {
	if o.AllDay {
		return o.Start.Format("2006-01-02")
	}
	return o.Start.Format(time.RFC3339)
}

// DraftEvent is the transient new-event form data tied to the selected date.
// It has no identity and is never persisted; it exists only until submission.
type DraftEvent struct {
	Title     string
	Place     string
	StartTime string // "HH:MM"
	EndTime   string // "HH:MM"
}
