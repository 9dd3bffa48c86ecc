package calgrid

import (
	"fmt"
	"time"

	appLog "barojab/internal/log"
)

// Week is one display row of the month grid. A cell holds a day-of-month
// number, or 0 for the empty padding cells before the 1st and after the
// last day.
type Week [7]int

// Direction selects which way the calendar cursor moves.
type Direction int

const (
	Previous Direction = iota
	Next
)

// EventMarker is the glyph appended to a day label when that day has at
// least one event.
const EventMarker = "●"

// DaysIn returns the number of days in the given month, leap years included.
// Day 0 of the following month is the last day of this one.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ComputeGrid lays out the given month as whole weeks of 7 cells, ordered
// chronologically, with column order starting at firstDay (the UI fixes
// Sunday-first). Leading and trailing cells outside the month are 0.
func ComputeGrid(year, month int, firstDay time.Weekday) []Week {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	lead := (int(first.Weekday()) - int(firstDay) + 7) % 7
	days := DaysIn(year, month)

	weeks := make([]Week, 0, 6)
	var w Week
	col := lead

	for day := 1; day <= days; day++ {
		w[col] = day
		col++
		if col == 7 {
			weeks = append(weeks, w)
			w = Week{}
			col = 0
		}
	}
	// Trailing partial week is padded with zeros; never emit a partial row.
	if col > 0 {
		weeks = append(weeks, w)
	}
	return weeks
}

// Navigate moves the (year, month) cursor one month in the given direction,
// wrapping across year boundaries. Years are unbounded.
func Navigate(year, month int, dir Direction) (int, int) {
	switch dir {
	case Previous:
		month--
		if month == 0 {
			month = 12
			year--
		}
	case Next:
		month++
		if month == 13 {
			month = 1
			year++
		}
	}
	return year, month
}

// MonthBounds returns the half-open interval [first instant of the month,
// first instant of the next month) in UTC.
//
// The provider boundary query is deliberately pinned to UTC so that events
// near midnight land on a consistent side of the month boundary no matter
// what the viewer's local timezone is.
func MonthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// DeriveDayMarkers converts a sequence of event-start strings (date-only
// "2006-01-02" or date-time ISO 8601 values) into the set of day-of-month
// numbers that carry at least one event.
//
// Only the date portion (first 10 characters) is inspected. Malformed
// entries, and entries whose date falls outside the displayed (year, month),
// are skipped; skipping is logged at Warn but never aborts the remaining
// events.
func DeriveDayMarkers(starts []string, year, month int) map[int]bool {
	days := make(map[int]bool)
	for _, s := range starts {
		if len(s) < 10 {
			appLog.Warn("event start too short, skipping", "start", s)
			continue
		}
		d, err := time.Parse("2006-01-02", s[:10])
		if err != nil {
			appLog.Warn("malformed event start, skipping", "start", s[:10])
			continue
		}
		if d.Year() != year || int(d.Month()) != month {
			// Defensive: the provider query is month-bounded in UTC, but a
			// provider replying in local time can leak a neighbor-month date.
			appLog.Warn("event start outside displayed month, skipping",
				"start", s[:10], "year", year, "month", month)
			continue
		}
		days[d.Day()] = true
	}
	return days
}

// RenderLabel formats a single day cell. Selection brackets are applied
// first, then the event marker is appended:
//
//	15  ->  [15]  ->  [15] ●
func RenderLabel(day int, isSelected, hasEvents bool) string {
	label := fmt.Sprintf("%d", day)
	if isSelected {
		label = "[" + label + "]"
	}
	if hasEvents {
		label = label + " " + EventMarker
	}
	return label
}
