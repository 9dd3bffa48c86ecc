package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"barojab/internal/calgrid"
	"barojab/internal/config"
)

const testFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//barojab test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:single-1\r\n" +
	"SUMMARY:Dentist\r\n" +
	"DTSTART:20240305T090000Z\r\n" +
	"DTEND:20240305T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:allday-1\r\n" +
	"SUMMARY:Trip\r\n" +
	"DTSTART;VALUE=DATE:20240331\r\n" +
	"DTEND;VALUE=DATE:20240401\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:weekly-1\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20240304T100000Z\r\n" +
	"DTEND:20240304T103000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"EXDATE:20240311T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	src := Source{ID: "test", URL: "https://feeds.example.com/cal.ics"}

	events, err := ParseICS(src, []byte(testFeed))
	require.NoError(t, err)
	require.Len(t, events, 3)

	byUID := make(map[string]ParsedEvent)
	for _, ev := range events {
		byUID[ev.UID] = ev
	}

	require.Equal(t, "Dentist", byUID["single-1"].Summary)
	require.False(t, byUID["single-1"].AllDay)

	require.True(t, byUID["allday-1"].AllDay)

	weekly := byUID["weekly-1"]
	require.Equal(t, "FREQ=WEEKLY;COUNT=4", weekly.RawRRule)
	require.Len(t, weekly.ExDates, 1)
}

func TestParseICS_EmptyBody(t *testing.T) {
	_, err := ParseICS(Source{ID: "x"}, nil)
	require.Error(t, err)
}

func TestMonthOccurrences_MarksExpectedDays(t *testing.T) {
	src := Source{ID: "test"}
	events, err := ParseICS(src, []byte(testFeed))
	require.NoError(t, err)

	res, err := MonthOccurrences(events, 2024, 3)
	require.NoError(t, err)
	require.Empty(t, res.TruncatedUIDs)

	starts := make([]string, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		starts = append(starts, occ.StartString())
	}
	days := calgrid.DeriveDayMarkers(starts, 2024, 3)

	// Weekly standup Mar 4/11/18/25 minus the Mar 11 EXDATE, plus the
	// dentist on the 5th and the all-day trip on the 31st.
	require.Equal(t, map[int]bool{4: true, 5: true, 18: true, 25: true, 31: true}, days)
}

func TestMonthOccurrences_OtherMonthIsEmpty(t *testing.T) {
	src := Source{ID: "test"}
	events, err := ParseICS(src, []byte(testFeed))
	require.NoError(t, err)

	res, err := MonthOccurrences(events, 2024, 5)
	require.NoError(t, err)
	require.Empty(t, res.Occurrences)
}

func TestMonthOccurrences_MonthOutOfRange(t *testing.T) {
	_, err := MonthOccurrences(nil, 2024, 13)
	require.Error(t, err)
}

func TestMarkerSource_MonthEventStarts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	ms := NewMarkerSource(t.TempDir(), []config.ICSConfig{
		{URL: srv.URL, ID: "test"},
		{URL: ""}, // dropped
	})
	require.True(t, ms.HasSources())

	starts, err := ms.MonthEventStarts(context.Background(), 2024, 3)
	require.NoError(t, err)
	require.Len(t, starts, 5)
	// Sorted, and the date portion is always the first 10 characters.
	require.Equal(t, "2024-03-04", starts[0][:10])
	require.Equal(t, "2024-03-31", starts[len(starts)-1][:10])
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://feeds.example.com/private/cal.ics?token=abcd")
	require.Equal(t, "https://feeds.example.com/...(redacted)", got)
	require.False(t, strings.Contains(got, "token"))
}
