package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"concertcal/internal/backend"
	"concertcal/internal/calendar"
	"concertcal/internal/model"
)

type reply struct {
	concerts model.ConcertsByDay
	err      error
}

// gatedFetcher blocks each fetch until the test releases its month.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[int]chan reply
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: make(map[int]chan reply)}
}

func (g *gatedFetcher) gate(month int) chan reply {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[month]
	if !ok {
		ch = make(chan reply, 1)
		g.gates[month] = ch
	}
	return ch
}

func (g *gatedFetcher) FetchConcerts(ctx context.Context, year, month int) (model.ConcertsByDay, error) {
	r := <-g.gate(month)
	return r.concerts, r.err
}

type fakeTokens struct {
	token string
}

func (f *fakeTokens) Set(token string) error {
	f.token = token
	return nil
}

func (f *fakeTokens) Clear() error {
	f.token = ""
	return nil
}

var (
	march = calendar.MonthKey{Year: 2024, Month: 2}
	april = calendar.MonthKey{Year: 2024, Month: 3}
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func cellConcerts(v View, day int) []Tag {
	for _, week := range v.Weeks {
		for _, c := range week {
			if c.Day == day {
				return c.Concerts
			}
		}
	}
	return nil
}

// navigateAwayAndBack moves March -> April -> March, then resolves March
// before the stale April fetch.
func navigateAwayAndBack(t *testing.T, policy calendar.StalePolicy) *Screen {
	t.Helper()
	f := newGatedFetcher()
	s, err := New(context.Background(), march, f, &fakeTokens{}, policy)
	if err != nil {
		t.Fatal(err)
	}

	s.Next()
	s.Prev()
	if s.Current() != march {
		t.Fatalf("Expected March, got %s", s.Current())
	}

	f.gate(3) <- reply{concerts: model.ConcertsByDay{5: {{ArtistName: "March act"}}}}
	waitFor(t, func() bool {
		_, ok := s.Concerts(march)
		return ok
	})
	f.gate(4) <- reply{concerts: model.ConcertsByDay{9: {{ArtistName: "April act"}}}}
	s.Wait()
	return s
}

func TestDiscardStaleResult(t *testing.T) {
	s := navigateAwayAndBack(t, calendar.DiscardStale)

	v, err := s.View()
	if err != nil {
		t.Fatal(err)
	}
	if v.Loading {
		t.Error("Expected view to be ready")
	}
	if got := cellConcerts(v, 5); len(got) != 1 || got[0].ArtistName != "March act" {
		t.Errorf("Expected March concerts on day 5, got %+v", got)
	}
	if got := cellConcerts(v, 9); len(got) != 0 {
		t.Errorf("Stale April concerts must not be shown, got %+v", got)
	}
	if _, ok := s.Concerts(april); ok {
		t.Error("Stale April result must not be stored")
	}
}

func TestLastWriteWinsResult(t *testing.T) {
	s := navigateAwayAndBack(t, calendar.LastWriteWins)

	v, err := s.View()
	if err != nil {
		t.Fatal(err)
	}
	if v.Month != 3 || v.Year != 2024 {
		t.Errorf("Expected March 2024 grid, got %d-%d", v.Year, v.Month)
	}
	if got := cellConcerts(v, 9); len(got) != 1 || got[0].ArtistName != "April act" {
		t.Errorf("Expected the last resolved result to win, got %+v", got)
	}
	if _, ok := s.Concerts(april); !ok {
		t.Error("Expected the slot to hold the April result")
	}
}

func TestViewLayout(t *testing.T) {
	f := newGatedFetcher()
	s, err := New(context.Background(), march, f, nil, "")
	if err != nil {
		t.Fatal(err)
	}

	s.Refresh()
	v, _ := s.View()
	if !v.Loading {
		t.Error("Expected view to be loading while the fetch is pending")
	}
	if v.Title != "March 2024" {
		t.Errorf("Expected title March 2024, got %q", v.Title)
	}
	if len(v.Weeks) != calendar.Weeks {
		t.Fatalf("Expected %d weeks, got %d", calendar.Weeks, len(v.Weeks))
	}
	if v.Weekdays[0].Color != calendar.SundayColor || v.Weekdays[6].Color != calendar.SaturdayColor || v.Weekdays[3].Color != calendar.WeekdayColor {
		t.Errorf("Unexpected header colors %+v", v.Weekdays)
	}
	// March 1st 2024 is a Friday.
	if c := v.Weeks[0][5]; c.Day != 1 || c.Color != calendar.WeekdayColor {
		t.Errorf("Expected day 1 at week 0 col 5, got %+v", c)
	}
	if c := v.Weeks[0][6]; c.Day != 2 || c.Color != calendar.SaturdayColor {
		t.Errorf("Expected Saturday day 2, got %+v", c)
	}
	if !v.Weeks[0][0].Empty() {
		t.Error("Expected leading empty cell")
	}

	f.gate(3) <- reply{concerts: model.ConcertsByDay{
		3: {{ArtistIdx: 7, ArtistName: "Jannabi"}, {ArtistName: "Guest"}},
	}}
	s.Wait()

	v, _ = s.View()
	if v.Loading {
		t.Error("Expected view to be ready")
	}
	tags := cellConcerts(v, 3)
	if len(tags) != 2 {
		t.Fatalf("Expected two tags on day 3, got %+v", tags)
	}
	if tags[0].Color != calendar.TagColor("artist:7") || tags[1].Color != calendar.TagColor("name:Guest") {
		t.Errorf("Unexpected tag colors %+v", tags)
	}
	if v.Weeks[0][0].Concerts != nil {
		t.Error("Empty cells carry no concerts")
	}
}

func TestFailedFetchKeepsMonth(t *testing.T) {
	f := newGatedFetcher()
	tokens := &fakeTokens{}
	s, err := New(context.Background(), march, f, tokens, calendar.DiscardStale)
	if err != nil {
		t.Fatal(err)
	}

	s.Refresh()
	f.gate(3) <- reply{err: fmt.Errorf("wrapped: %w", backend.ErrAuth)}
	s.Wait()

	if !s.NeedsLogin() {
		t.Error("Expected auth failure to require login")
	}
	v, _ := s.View()
	if s.Current() != march || v.Error == "" || !v.NeedsLogin {
		t.Errorf("Expected month kept with error shown, got %s %+v", s.Current(), v)
	}

	if err := s.Login("new-token"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tokens.token != "new-token" || s.NeedsLogin() {
		t.Errorf("Expected token stored and login cleared, got %q %v", tokens.token, s.NeedsLogin())
	}
	f.gate(3) <- reply{concerts: model.ConcertsByDay{}}
	s.Wait()

	v, _ = s.View()
	if v.Error != "" || v.Loading {
		t.Errorf("Expected clean view after successful refresh, got %+v", v)
	}
	if cs, ok := s.Concerts(march); !ok || cs.Count() != 0 {
		t.Errorf("Expected empty result to replace the slot, got %+v %v", cs, ok)
	}

	if err := s.Logout(); err != nil || !s.NeedsLogin() || tokens.token != "" {
		t.Errorf("Expected logout to clear the token, got %v %v %q", err, s.NeedsLogin(), tokens.token)
	}
}

func TestNetworkFailureDoesNotRequireLogin(t *testing.T) {
	f := newGatedFetcher()
	s, _ := New(context.Background(), march, f, nil, calendar.DiscardStale)

	s.Refresh()
	f.gate(3) <- reply{concerts: model.ConcertsByDay{1: {{ArtistName: "Kept"}}}}
	s.Wait()

	s.Refresh()
	f.gate(3) <- reply{err: backend.ErrNetwork}
	s.Wait()

	if s.NeedsLogin() {
		t.Error("Network failures must not require login")
	}
	v, _ := s.View()
	if got := cellConcerts(v, 1); len(got) != 1 {
		t.Errorf("Expected previous concerts to stay on failure, got %+v", got)
	}
	if err := s.Login("x"); err == nil {
		t.Error("Expected error without token store")
	}
}

func TestWaitReady(t *testing.T) {
	f := newGatedFetcher()
	s, err := New(context.Background(), march, f, &fakeTokens{}, calendar.DiscardStale)
	if err != nil {
		t.Fatal(err)
	}

	s.Refresh()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline while the fetch is pending, got %v", err)
	}

	f.gate(3) <- reply{concerts: model.ConcertsByDay{}}
	if err := s.WaitReady(context.Background()); err != nil {
		t.Errorf("Expected screen to be ready, got %v", err)
	}
	if v, _ := s.View(); v.Loading {
		t.Error("Expected view to be ready after WaitReady")
	}

	s.Refresh()
	f.gate(3) <- reply{err: backend.ErrNoToken}
	if err := s.WaitReady(context.Background()); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("Expected ErrLoginRequired, got %v", err)
	}
}
