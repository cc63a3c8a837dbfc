package commands

import (
	"fmt"
	"io"
	"time"

	"concertcal/internal/calendar"
	"concertcal/internal/model"
)

// PrintMonth writes the month grid followed by the concerts of each day.
func PrintMonth(w io.Writer, key calendar.MonthKey, concerts model.ConcertsByDay) error {
	grid, err := key.Grid()
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "%s %d\n\n%s\n", time.Month(key.APIMonth()), key.Year, grid); err != nil {
		return err
	}

	days := concerts.Days()
	if len(days) == 0 {
		_, err := fmt.Fprintln(w, "No concerts.")
		return err
	}
	for _, day := range days {
		if day > key.Days() {
			continue
		}
		for _, c := range concerts[day] {
			line := fmt.Sprintf("%2d  %s", day, c.ArtistName)
			if c.PostingURL != "" {
				line += "  " + c.PostingURL
			}
			if c.SourceID != "" {
				line += "  [" + c.SourceID + "]"
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}
