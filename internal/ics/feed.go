package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"concertcal/internal/model"

	appLog "concertcal/internal/log"
)

// Feed turns a set of ICS sources into per-day concerts for one month.
type Feed struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
}

// NewFeed creates a Feed. Days are computed in loc (time.Local when nil).
func NewFeed(sources []Source, timeout time.Duration, loc *time.Location) *Feed {
	if loc == nil {
		loc = time.Local
	}
	return &Feed{
		fetcher: NewFetcher(timeout),
		sources: append([]Source(nil), sources...),
		loc:     loc,
	}
}

// Sources returns the configured sources.
func (f *Feed) Sources() []Source {
	return append([]Source(nil), f.sources...)
}

// FetchConcerts downloads every source and returns the concerts starting
// in the given month (1-based). Sources that fail are skipped; their errors
// are joined and returned next to whatever the other sources produced.
func (f *Feed) FetchConcerts(ctx context.Context, year, month int) (model.ConcertsByDay, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("ics: month %d out of range 1..12", month)
	}

	rangeStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, f.loc)
	rangeEnd := rangeStart.AddDate(0, 1, 0)

	results, errs := f.fetcher.FetchAll(ctx, f.sources)

	var events []ParsedEvent
	for _, r := range results {
		evs, err := ParseICS(r.Source, r.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("ics: %s: %w", r.Source.ID, err))
			continue
		}
		events = append(events, evs...)
	}

	out := make(model.ConcertsByDay)
	if len(events) > 0 {
		expanded, err := ExpandOccurrences(events, ExpandConfig{
			Location:   f.loc,
			RangeStart: rangeStart,
			RangeEnd:   rangeEnd,
		})
		if err != nil {
			return nil, err
		}
		for _, occ := range expanded.Occurrences {
			out.Add(occ.Start.Day(), model.Concert{
				ArtistName: occ.Summary,
				PostingURL: occ.PostingURL,
				SourceID:   occ.SourceID,
			})
		}
	}

	appLog.Debug("ics feed month built",
		"year", year,
		"month", month,
		"sources", len(f.sources),
		"concerts", out.Count(),
		"errors", len(errs),
	)
	return out, errors.Join(errs...)
}
