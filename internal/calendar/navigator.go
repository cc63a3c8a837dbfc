package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appLog "concertcal/internal/log"
	"concertcal/internal/model"
)

// Fetcher loads the concerts of one month. month is 1-based.
type Fetcher interface {
	FetchConcerts(ctx context.Context, year, month int) (model.ConcertsByDay, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, year, month int) (model.ConcertsByDay, error)

func (f FetcherFunc) FetchConcerts(ctx context.Context, year, month int) (model.ConcertsByDay, error) {
	return f(ctx, year, month)
}

// FetchResult is delivered once per dispatched fetch.
type FetchResult struct {
	Key MonthKey
	// Generation increases with every dispatch of the same Navigator.
	Generation uint64
	Concerts   model.ConcertsByDay
	Err        error
}

// StalePolicy decides what happens to a fetch result that resolves after
// a newer fetch was dispatched.
type StalePolicy string

const (
	// DiscardStale drops results whose generation is not the latest.
	DiscardStale StalePolicy = "discard"
	// LastWriteWins applies every result in completion order, so an older
	// month can overwrite a newer one.
	LastWriteWins StalePolicy = "last_write_wins"
)

// ParseStalePolicy accepts "discard" and "last_write_wins"; empty means DiscardStale.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case "", DiscardStale:
		return DiscardStale, nil
	case LastWriteWins:
		return LastWriteWins, nil
	default:
		return "", fmt.Errorf("%w: stale fetch policy %q", ErrInvalidArgument, s)
	}
}

// Navigator owns the displayed MonthKey. Every transition updates the key
// first and then fetches the new month in the background; the caller
// never waits for the fetch, and a failed fetch leaves the key as is.
type Navigator struct {
	ctx      context.Context
	fetcher  Fetcher
	onResult func(FetchResult)

	mu  sync.Mutex
	key MonthKey
	gen uint64

	inflight sync.WaitGroup
}

// NewNavigator starts at start without fetching; call Refresh for the
// initial load. onResult runs on the fetch goroutine and may be nil.
// ctx bounds every fetch the navigator dispatches.
func NewNavigator(ctx context.Context, start MonthKey, f Fetcher, onResult func(FetchResult)) (*Navigator, error) {
	if f == nil {
		return nil, errors.New("calendar: navigator needs a fetcher")
	}
	if !start.Valid() {
		return nil, fmt.Errorf("%w: month %d out of range 0..11", ErrInvalidArgument, start.Month)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Navigator{
		ctx:      ctx,
		fetcher:  f,
		onResult: onResult,
		key:      start,
	}, nil
}

// Current returns the displayed month.
func (n *Navigator) Current() MonthKey {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.key
}

// Generation returns the generation of the most recent dispatch.
func (n *Navigator) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// IsLatest reports whether gen belongs to the most recent dispatch.
func (n *Navigator) IsLatest(gen uint64) bool {
	return n.Generation() == gen
}

// GoToPrevMonth steps back one month, carrying into the previous year from
// January, and starts the fetch without waiting for it.
func (n *Navigator) GoToPrevMonth() MonthKey {
	return n.move(MonthKey.Prev)
}

// GoToNextMonth steps forward one month, carrying into the next year from
// December, and starts the fetch without waiting for it.
func (n *Navigator) GoToNextMonth() MonthKey {
	return n.move(MonthKey.Next)
}

// GoTo jumps to k and fetches it.
func (n *Navigator) GoTo(k MonthKey) (MonthKey, error) {
	if !k.Valid() {
		return n.Current(), fmt.Errorf("%w: month %d out of range 0..11", ErrInvalidArgument, k.Month)
	}
	return n.move(func(MonthKey) MonthKey { return k }), nil
}

// Refresh fetches the current month again without moving.
func (n *Navigator) Refresh() MonthKey {
	return n.move(func(k MonthKey) MonthKey { return k })
}

// Wait blocks until every dispatched fetch has delivered its result.
func (n *Navigator) Wait() {
	n.inflight.Wait()
}

func (n *Navigator) move(step func(MonthKey) MonthKey) MonthKey {
	n.mu.Lock()
	n.key = step(n.key)
	n.gen++
	key, gen := n.key, n.gen
	n.mu.Unlock()

	n.dispatch(key, gen)
	return key
}

func (n *Navigator) dispatch(key MonthKey, gen uint64) {
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()

		appLog.Debug("calendar fetch dispatched", "month", key.String(), "generation", gen)
		concerts, err := n.fetcher.FetchConcerts(n.ctx, key.Year, key.APIMonth())
		if err != nil {
			err = fmt.Errorf("calendar: fetch %s: %w", key, err)
		}
		if n.onResult != nil {
			n.onResult(FetchResult{
				Key:        key,
				Generation: gen,
				Concerts:   concerts,
				Err:        err,
			})
		}
	}()
}
