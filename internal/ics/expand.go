package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"barojab/internal/calgrid"
	appLog "barojab/internal/log"
	"barojab/internal/model"
)

const defaultMaxOccurrencesPerEvent = 1000

// ExpandResult wraps the expanded occurrences plus truncation info.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedUIDs records events that hit the per-event occurrence cap.
	TruncatedUIDs []string
}

// MonthOccurrences expands parsed events into the concrete occurrences that
// intersect the given month's half-open UTC window. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics
//
// Occurrence times are normalized to UTC so day attribution matches the UTC
// month window the markers are computed against.
func MonthOccurrences(events []ParsedEvent, year, month int) (ExpandResult, error) {
	var result ExpandResult

	if month < 1 || month > 12 {
		return result, errors.New("expand: month out of range")
	}
	rangeStart, rangeEnd := calgrid.MonthBounds(year, month)

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	occurrences := make([]model.Occurrence, 0)
	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseEvents {
			occ, hitCap := expandEvent(ev, ov, rangeStart, rangeEnd)
			if hitCap {
				truncated = true
			}
			occurrences = append(occurrences, occ...)
		}

		if truncated {
			result.TruncatedUIDs = append(result.TruncatedUIDs, uid)
			appLog.Warn("expand: truncated occurrences for UID",
				"uid", uid, "cap", defaultMaxOccurrencesPerEvent)
		}
	}

	result.Occurrences = occurrences
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, rangeStart, rangeEnd time.Time) ([]model.Occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, rangeStart, rangeEnd), false
	}
	return expandRecurringEvent(ev, overrides, rangeStart, rangeEnd)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, rangeStart, rangeEnd time.Time) []model.Occurrence {
	var out []model.Occurrence

	if !overlapsHalfOpen(ev.Start, ev.End, rangeStart, rangeEnd) {
		return out
	}

	start, end := ev.Start, ev.End
	if o, ok := findOverrideForStart(overrides, start); ok {
		start, end = o.Start, o.End
		ev = o
	}

	out = append(out, makeOccurrence(ev, start, end))
	return out
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, rangeStart, rangeEnd time.Time) ([]model.Occurrence, bool) {
	out := make([]model.Occurrence, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("expand: unparseable RRULE, skipping event", "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		// Align EXDATE location with the event's start for exact matching.
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between is inclusive on both ends, the month window is half-open; the
	// end instant itself belongs to the next month and is filtered below.
	occTimes := set.Between(rangeStart.In(ev.Start.Location()), rangeEnd.In(ev.Start.Location()), true)

	if len(occTimes) > defaultMaxOccurrencesPerEvent {
		occTimes = occTimes[:defaultMaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		if !occStart.Before(rangeEnd.In(ev.Start.Location())) {
			continue
		}

		var occEnd time.Time
		if ev.AllDay {
			// All-day: [date 00:00, next day 00:00) in the event's timezone.
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(ev.End.Sub(ev.Start))
		}

		start, end, src := occStart, occEnd, ev
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			start, end, src = o.Start, o.End, o
		}

		out = append(out, makeOccurrence(src, start, end))
	}

	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID matches the
// given instance start with exact time equality.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(start.Location()).Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeOccurrence normalizes one concrete instance into UTC. All-day
// instances keep their civil date (re-anchored at UTC midnight) instead of
// being instant-converted, which would shift the date for zones east of UTC.
func makeOccurrence(ev ParsedEvent, start, end time.Time) model.Occurrence {
	if ev.AllDay {
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		start = start.UTC()
		end = end.UTC()
	}
	return model.Occurrence{
		SourceID: ev.Source.ID,
		UID:      ev.UID,
		Summary:  ev.Summary,
		Location: ev.Location,
		AllDay:   ev.AllDay,
		Start:    start,
		End:      end,
	}
}

// overlapsHalfOpen reports whether [aStart, aEnd] intersects [bStart, bEnd).
func overlapsHalfOpen(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if !aStart.Before(bEnd) {
		return false
	}
	return true
}
