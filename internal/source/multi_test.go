package source

import (
	"context"
	"errors"
	"testing"

	"concertcal/internal/calendar"
	"concertcal/internal/model"
)

func fixed(cs model.ConcertsByDay, err error) calendar.Fetcher {
	return calendar.FetcherFunc(func(ctx context.Context, year, month int) (model.ConcertsByDay, error) {
		return cs, err
	})
}

func TestMultiOrdering(t *testing.T) {
	backend := fixed(model.ConcertsByDay{
		5: {{ConcertIdx: 1, ArtistName: "Jannabi", SourceID: "backend"}},
	}, nil)
	feedA := fixed(model.ConcertsByDay{
		5:  {{ArtistName: "Feed A", SourceID: "a"}},
		12: {{ArtistName: "Feed A late", SourceID: "a"}},
	}, nil)
	feedB := fixed(model.ConcertsByDay{
		5: {{ArtistName: "Feed B", SourceID: "b"}},
	}, nil)

	m, err := NewMulti(backend, feedA, nil, feedB)
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.FetchConcerts(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("FetchConcerts failed: %v", err)
	}

	want := []string{"Jannabi", "Feed A", "Feed B"}
	if len(got[5]) != len(want) {
		t.Fatalf("Expected %d concerts on day 5, got %+v", len(want), got[5])
	}
	for i, name := range want {
		if got[5][i].ArtistName != name {
			t.Errorf("Position %d: expected %s, got %s", i, name, got[5][i].ArtistName)
		}
	}
	if len(got[12]) != 1 {
		t.Errorf("Expected one concert on day 12, got %+v", got[12])
	}
}

func TestMultiErrors(t *testing.T) {
	boom := errors.New("boom")

	m, _ := NewMulti(fixed(nil, boom), fixed(model.ConcertsByDay{1: {{ArtistName: "x"}}}, nil))
	if _, err := m.FetchConcerts(context.Background(), 2024, 3); !errors.Is(err, boom) {
		t.Errorf("Expected primary error, got %v", err)
	}

	partial := model.ConcertsByDay{2: {{ArtistName: "partial"}}}
	m, _ = NewMulti(fixed(model.ConcertsByDay{}, nil), fixed(partial, boom))
	got, err := m.FetchConcerts(context.Background(), 2024, 3)
	if err != nil {
		t.Errorf("Expected extra failures to be tolerated, got %v", err)
	}
	if got.Count() != 1 {
		t.Errorf("Expected partial feed data to be kept, got %+v", got)
	}

	if _, err := NewMulti(nil); err == nil {
		t.Error("Expected error without any source")
	}
}
