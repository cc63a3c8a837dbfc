package source

import (
	"context"
	"errors"

	"concertcal/internal/calendar"
	appLog "concertcal/internal/log"
	"concertcal/internal/model"
)

// Multi merges a primary fetcher (the backend) with supplementary ones
// (ICS feeds). It implements calendar.Fetcher.
type Multi struct {
	primary calendar.Fetcher
	extras  []calendar.Fetcher
}

// NewMulti combines primary with extras. primary may be nil when the
// calendar only shows feeds, but then at least one extra is required.
func NewMulti(primary calendar.Fetcher, extras ...calendar.Fetcher) (*Multi, error) {
	kept := make([]calendar.Fetcher, 0, len(extras))
	for _, e := range extras {
		if e != nil {
			kept = append(kept, e)
		}
	}
	if primary == nil && len(kept) == 0 {
		return nil, errors.New("source: no concert source configured")
	}
	return &Multi{primary: primary, extras: kept}, nil
}

// FetchConcerts fetches the primary source first, then every extra in
// order. A primary failure fails the whole fetch; extra failures are
// logged and whatever they produced is still merged. Within a day the
// primary's concerts come first.
func (m *Multi) FetchConcerts(ctx context.Context, year, month int) (model.ConcertsByDay, error) {
	out := make(model.ConcertsByDay)

	if m.primary != nil {
		got, err := m.primary.FetchConcerts(ctx, year, month)
		if err != nil {
			return nil, err
		}
		merge(out, got)
	}

	for i, extra := range m.extras {
		got, err := extra.FetchConcerts(ctx, year, month)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			appLog.Warn("source: extra concert source failed", "index", i, "year", year, "month", month, "err", err)
		}
		merge(out, got)
	}

	return out, nil
}

func merge(dst, src model.ConcertsByDay) {
	for _, day := range src.Days() {
		for _, c := range src[day] {
			dst.Add(day, c)
		}
	}
}
