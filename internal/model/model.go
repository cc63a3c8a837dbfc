package model

import "sort"

// Concert is a single concert posting shown as an artist tag on a day cell.
type Concert struct {
	// ConcertIdx / ArtistIdx are backend identifiers used by the follow
	// actions. Concerts coming from ICS feeds leave them at zero.
	ConcertIdx int `json:"concert_idx,omitempty"`
	ArtistIdx  int `json:"artist_idx,omitempty"`

	ArtistName string `json:"artist_name"`
	PostingURL string `json:"posting_url"`

	// SourceID names where the concert came from ("backend" or an ICS feed ID).
	SourceID string `json:"source_id,omitempty"`
}

// ConcertsByDay maps a day of month (1..31) to the concerts on that day,
// in display order. A value is scoped to one month and is replaced as a
// whole on every successful fetch.
type ConcertsByDay map[int][]Concert

// Add appends c to the concerts of day.
func (m ConcertsByDay) Add(day int, c Concert) {
	m[day] = append(m[day], c)
}

// Days returns the days that have at least one concert, ascending.
func (m ConcertsByDay) Days() []int {
	days := make([]int, 0, len(m))
	for d, cs := range m {
		if len(cs) > 0 {
			days = append(days, d)
		}
	}
	sort.Ints(days)
	return days
}

// Count returns the total number of concerts across all days.
func (m ConcertsByDay) Count() int {
	n := 0
	for _, cs := range m {
		n += len(cs)
	}
	return n
}

// Clone returns a copy that shares no slices with m.
func (m ConcertsByDay) Clone() ConcertsByDay {
	if m == nil {
		return nil
	}
	out := make(ConcertsByDay, len(m))
	for d, cs := range m {
		out[d] = append([]Concert(nil), cs...)
	}
	return out
}
