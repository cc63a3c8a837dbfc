package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"concertcal/internal/backend"
	"concertcal/internal/calendar"
	appLog "concertcal/internal/log"
	"concertcal/internal/model"
)

// ErrLoginRequired is returned by WaitReady when the displayed month could
// not be fetched for lack of a valid token.
var ErrLoginRequired = errors.New("screen: login required")

// Tokens is the part of the token store the screen needs for login.
type Tokens interface {
	Set(token string) error
	Clear() error
}

// Screen is the calendar screen controller. It owns the Navigator and the
// single ConcertsByDay slot, and applies fetch results according to its
// StalePolicy.
type Screen struct {
	nav    *calendar.Navigator
	tokens Tokens
	policy calendar.StalePolicy

	// Lock order: mu before the navigator's lock.
	mu          sync.Mutex
	concerts    model.ConcertsByDay
	concertsKey calendar.MonthKey
	hasConcerts bool
	resolvedGen uint64
	needsLogin  bool
	lastErr     error
}

// New creates a screen showing start. Nothing is fetched until Refresh
// (or a navigation) is called.
func New(ctx context.Context, start calendar.MonthKey, f calendar.Fetcher, tokens Tokens, policy calendar.StalePolicy) (*Screen, error) {
	if policy == "" {
		policy = calendar.DiscardStale
	}
	s := &Screen{tokens: tokens, policy: policy}
	nav, err := calendar.NewNavigator(ctx, start, f, s.apply)
	if err != nil {
		return nil, err
	}
	s.nav = nav
	return s, nil
}

// Current returns the displayed month.
func (s *Screen) Current() calendar.MonthKey {
	return s.nav.Current()
}

// Prev shows the previous month (December of the prior year from January).
// The fetch runs in the background.
func (s *Screen) Prev() calendar.MonthKey {
	return s.nav.GoToPrevMonth()
}

// Next shows the next month (January of the following year from December).
// The fetch runs in the background.
func (s *Screen) Next() calendar.MonthKey {
	return s.nav.GoToNextMonth()
}

// GoTo jumps to k.
func (s *Screen) GoTo(k calendar.MonthKey) (calendar.MonthKey, error) {
	return s.nav.GoTo(k)
}

// Refresh refetches the displayed month.
func (s *Screen) Refresh() calendar.MonthKey {
	return s.nav.Refresh()
}

// Wait blocks until all dispatched fetches have been applied.
func (s *Screen) Wait() {
	s.nav.Wait()
}

// WaitReady waits for the in-flight fetches like Wait, but gives up when ctx
// is done. It returns ErrLoginRequired when the screen would show the login
// page instead of the calendar.
func (s *Screen) WaitReady(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.nav.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.NeedsLogin() {
		return ErrLoginRequired
	}
	return nil
}

// NeedsLogin reports whether the last applied fetch failed with an auth error.
func (s *Screen) NeedsLogin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsLogin
}

// Login stores token and refetches the displayed month.
func (s *Screen) Login(token string) error {
	if s.tokens == nil {
		return errors.New("screen: no token store")
	}
	if err := s.tokens.Set(token); err != nil {
		return err
	}
	s.mu.Lock()
	s.needsLogin = false
	s.mu.Unlock()

	appLog.Info("screen: token stored, refreshing")
	s.nav.Refresh()
	return nil
}

// Logout forgets the token. The next fetch will ask for a login again.
func (s *Screen) Logout() error {
	if s.tokens == nil {
		return errors.New("screen: no token store")
	}
	if err := s.tokens.Clear(); err != nil {
		return err
	}
	s.mu.Lock()
	s.needsLogin = true
	s.mu.Unlock()
	return nil
}

// Concerts returns a copy of the concerts for k if the slot currently holds
// a successfully fetched result for exactly that month.
func (s *Screen) Concerts(k calendar.MonthKey) (model.ConcertsByDay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasConcerts || s.concertsKey != k {
		return nil, false
	}
	return s.concerts.Clone(), true
}

func (s *Screen) apply(r calendar.FetchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.nav.IsLatest(r.Generation)
	if latest {
		s.resolvedGen = r.Generation
	}
	if !latest && s.policy == calendar.DiscardStale {
		appLog.Debug("screen: discarded stale fetch result", "month", r.Key.String(), "generation", r.Generation)
		return
	}

	if r.Err != nil {
		s.lastErr = r.Err
		if errors.Is(r.Err, backend.ErrAuth) {
			s.needsLogin = true
		}
		appLog.Error("screen: concert fetch failed", r.Err, "month", r.Key.String())
		return
	}

	concerts := r.Concerts
	if concerts == nil {
		concerts = make(model.ConcertsByDay)
	}
	s.concerts = concerts
	s.concertsKey = r.Key
	s.hasConcerts = true
	s.lastErr = nil
	s.needsLogin = false
	appLog.Debug("screen: concerts applied", "month", r.Key.String(), "generation", r.Generation, "count", concerts.Count())
}

// Header is one weekday column header.
type Header struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Tag is an artist tag rendered inside a day cell.
type Tag struct {
	model.Concert
	Color string `json:"color"`
}

// Cell is one grid cell. Day is 0 for empty cells.
type Cell struct {
	Day      int    `json:"day"`
	Color    string `json:"color,omitempty"`
	Concerts []Tag  `json:"concerts,omitempty"`
}

// Empty reports whether the cell is padding.
func (c Cell) Empty() bool {
	return c.Day == calendar.Empty
}

// View is a render-ready snapshot of the screen.
type View struct {
	Key   calendar.MonthKey `json:"-"`
	Year  int               `json:"year"`
	Month int               `json:"month"`
	Title string            `json:"title"`

	Weekdays []Header `json:"weekdays"`
	Weeks    [][]Cell `json:"weeks"`

	// Loading is true until the fetch for the displayed month resolved.
	Loading    bool   `json:"loading"`
	NeedsLogin bool   `json:"needs_login"`
	Error      string `json:"error,omitempty"`
}

// View builds the current view. The grid always reflects the displayed
// month; concerts are overlaid per the stale policy.
func (s *Screen) View() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.nav.Current()
	gen := s.nav.Generation()

	grid, err := key.Grid()
	if err != nil {
		return View{}, fmt.Errorf("screen: %w", err)
	}

	var overlay model.ConcertsByDay
	if s.hasConcerts && (s.concertsKey == key || s.policy == calendar.LastWriteWins) {
		overlay = s.concerts
	}

	v := View{
		Key:        key,
		Year:       key.Year,
		Month:      key.APIMonth(),
		Title:      fmt.Sprintf("%s %d", time.Month(key.APIMonth()), key.Year),
		Weekdays:   make([]Header, calendar.DaysPerWeek),
		Weeks:      make([][]Cell, calendar.Weeks),
		Loading:    s.resolvedGen != gen,
		NeedsLogin: s.needsLogin,
	}
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}
	for col := range v.Weekdays {
		v.Weekdays[col] = Header{Name: calendar.WeekdayNames[col], Color: calendar.DayColor(col)}
	}
	for w := range grid {
		row := make([]Cell, calendar.DaysPerWeek)
		for col, day := range grid[w] {
			if day == calendar.Empty {
				continue
			}
			row[col] = Cell{Day: day, Color: calendar.DayColor(col), Concerts: tags(overlay[day])}
		}
		v.Weeks[w] = row
	}
	return v, nil
}

func tags(cs []model.Concert) []Tag {
	if len(cs) == 0 {
		return nil
	}
	out := make([]Tag, len(cs))
	for i, c := range cs {
		out[i] = Tag{Concert: c, Color: calendar.TagColor(calendar.ArtistSeed(c.ArtistIdx, c.ArtistName))}
	}
	return out
}
