package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"concertcal/internal/calendar"
	"concertcal/internal/model"
)

const marchFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:single-1
DTSTAMP:20240101T000000Z
DTSTART:20240305T190000Z
DTEND:20240305T210000Z
SUMMARY:Jannabi
URL:https://example.com/p/1
END:VEVENT
BEGIN:VEVENT
UID:weekly-1
DTSTAMP:20240101T000000Z
DTSTART:20240301T200000Z
DTEND:20240301T220000Z
RRULE:FREQ=WEEKLY;COUNT=6
EXDATE:20240308T200000Z
SUMMARY:Hyukoh
DESCRIPTION:https://example.com/p/2
END:VEVENT
BEGIN:VEVENT
UID:weekly-1
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240315T200000Z
DTSTART:20240316T200000Z
DTEND:20240316T220000Z
SUMMARY:Hyukoh moved
END:VEVENT
BEGIN:VEVENT
UID:allday-1
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240320
SUMMARY:Festival
END:VEVENT
BEGIN:VEVENT
UID:nosummary
DTSTAMP:20240101T000000Z
DTSTART:20240310T200000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseICS(t *testing.T) {
	events, err := ParseICS(Source{ID: "feed"}, crlf(marchFeed))
	if err != nil {
		t.Fatalf("ParseICS failed: %v", err)
	}
	// The event without SUMMARY is skipped.
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}

	byUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		byUID[ev.UID] = append(byUID[ev.UID], ev)
	}
	single := byUID["single-1"][0]
	if single.PostingURL() != "https://example.com/p/1" || single.AllDay {
		t.Errorf("Unexpected single event %+v", single)
	}
	if len(byUID["weekly-1"]) != 2 {
		t.Fatalf("Expected base and override for weekly-1, got %d", len(byUID["weekly-1"]))
	}
	allDay := byUID["allday-1"][0]
	if !allDay.AllDay {
		t.Error("Expected VALUE=DATE event to be all-day")
	}
	if allDay.End.Sub(allDay.Start) != 24*time.Hour {
		t.Errorf("Expected one-day all-day event, got %v", allDay.End.Sub(allDay.Start))
	}

	if _, err := ParseICS(Source{ID: "empty"}, nil); err == nil {
		t.Error("Expected error for empty body")
	}
}

func TestExpandOccurrences(t *testing.T) {
	events, err := ParseICS(Source{ID: "feed"}, crlf(marchFeed))
	if err != nil {
		t.Fatal(err)
	}

	res, err := ExpandOccurrences(events, ExpandConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ExpandOccurrences failed: %v", err)
	}

	want := []struct {
		day     int
		summary string
	}{
		{1, "Hyukoh"},
		{5, "Jannabi"},
		{16, "Hyukoh moved"},
		{20, "Festival"},
		{22, "Hyukoh"},
		{29, "Hyukoh"},
	}
	if len(res.Occurrences) != len(want) {
		t.Fatalf("Expected %d occurrences, got %d: %+v", len(want), len(res.Occurrences), res.Occurrences)
	}
	for i, w := range want {
		occ := res.Occurrences[i]
		if occ.Start.Day() != w.day || occ.Summary != w.summary {
			t.Errorf("Occurrence %d: expected %d %q, got %d %q", i, w.day, w.summary, occ.Start.Day(), occ.Summary)
		}
	}
	if res.Occurrences[0].PostingURL != "https://example.com/p/2" {
		t.Errorf("Expected description link as posting URL, got %q", res.Occurrences[0].PostingURL)
	}
}

func TestExpandOccurrencesCap(t *testing.T) {
	ev := ParsedEvent{
		Source:   Source{ID: "feed"},
		UID:      "daily",
		Summary:  "Residency",
		Start:    time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}
	res, err := ExpandOccurrences([]ParsedEvent{ev}, ExpandConfig{
		Location:               time.UTC,
		RangeStart:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Occurrences) != 10 {
		t.Errorf("Expected 10 occurrences, got %d", len(res.Occurrences))
	}
	if len(res.TruncatedEvents) != 1 || res.TruncatedEvents[0] != "daily" {
		t.Errorf("Expected daily to be truncated, got %v", res.TruncatedEvents)
	}

	if _, err := ExpandOccurrences(nil, ExpandConfig{}); err == nil {
		t.Error("Expected error for empty range")
	}
}

func TestFeedFetchConcerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/march.ics":
			w.Header().Set("Content-Type", "text/calendar")
			_, _ = w.Write(crlf(marchFeed))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	feed := NewFeed([]Source{
		{ID: "good", URL: srv.URL + "/march.ics"},
		{ID: "missing", URL: srv.URL + "/missing.ics"},
	}, time.Second, time.UTC)

	got, err := feed.FetchConcerts(context.Background(), 2024, 3)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("Expected error naming the failed feed, got %v", err)
	}
	if got.Count() != 6 {
		t.Fatalf("Expected 6 concerts from the good feed, got %d", got.Count())
	}
	if c := got[5][0]; c.ArtistName != "Jannabi" || c.SourceID != "good" || c.PostingURL != "https://example.com/p/1" {
		t.Errorf("Unexpected concert on day 5: %+v", c)
	}

	april, err := feed.FetchConcerts(context.Background(), 2024, 4)
	if april.Count() != 1 || len(april[5]) != 1 {
		t.Errorf("Expected the last weekly instance on April 5, got %+v (err %v)", april, err)
	}

	if _, err := feed.FetchConcerts(context.Background(), 2024, 0); err == nil {
		t.Error("Expected error for month 0")
	}
}

func TestExport(t *testing.T) {
	key := calendar.MonthKey{Year: 2024, Month: 2}
	concerts := model.ConcertsByDay{
		5: {
			{ConcertIdx: 10, ArtistIdx: 3, ArtistName: "Jannabi", PostingURL: "https://example.com/p/1", SourceID: "backend"},
			{ArtistName: "Hyukoh", SourceID: "feed"},
		},
		31: {{ConcertIdx: 11, ArtistName: "Festival"}},
		32: {{ConcertIdx: 12, ArtistName: "Out of range"}},
	}

	out := Export(key, concerts, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	for _, want := range []string{
		"PRODID:-//concertcal//EN",
		"UID:concert-10@concertcal",
		"UID:feed-20240305-1@concertcal",
		"SUMMARY:Jannabi",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected export to contain %q", want)
		}
	}
	if strings.Contains(out, "Out of range") {
		t.Error("Days outside the month must not be exported")
	}

	events, err := ParseICS(Source{ID: "export"}, []byte(out))
	if err != nil {
		t.Fatalf("Exported calendar does not parse: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 exported events, got %d", len(events))
	}
	for _, ev := range events {
		if !ev.AllDay {
			t.Errorf("Expected all-day event, got %+v", ev)
		}
		if ev.UID == "concert-10@concertcal" {
			if ev.Start.Day() != 5 || ev.PostingURL() != "https://example.com/p/1" {
				t.Errorf("Unexpected exported concert %+v", ev)
			}
		}
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/private/basic.ics?token=abc": "https://example.com/...(redacted)",
		"http://host:8080":                                 "http://host:8080/...(redacted)",
		"not a url":                                        "ics://...(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
