package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Grid geometry. The layout height is fixed: every month gets six weeks,
// even when it only needs four or five.
const (
	Weeks       = 6
	DaysPerWeek = 7
)

// Empty is the cell value for padding before the 1st and after the last day.
const Empty = 0

// ErrInvalidArgument is returned for a month outside 0..11.
var ErrInvalidArgument = errors.New("calendar: invalid argument")

// Grid is a month laid out week by week, Sunday first. Each cell holds a
// day of month or Empty.
type Grid [Weeks][DaysPerWeek]int

// BuildGrid lays out the month (zero-based) of year.
func BuildGrid(year, month int) (Grid, error) {
	var g Grid
	if err := checkMonth(month); err != nil {
		return g, err
	}

	first := FirstWeekday(year, month)
	total := DaysInMonth(year, month)

	day := 1
	for w := 0; w < Weeks; w++ {
		for d := 0; d < DaysPerWeek; d++ {
			if (w == 0 && d < first) || day > total {
				g[w][d] = Empty
				continue
			}
			g[w][d] = day
			day++
		}
	}
	return g, nil
}

// DaysInMonth returns the number of days of the zero-based month, using
// day 0 of the following month. time.Date normalizes the overflow, which
// keeps century and 400-year leap rules exact.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month+2), 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekday returns the weekday index (0 = Sunday) of the 1st of the
// zero-based month.
func FirstWeekday(year, month int) int {
	return int(time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.UTC).Weekday())
}

func checkMonth(month int) error {
	if month < 0 || month > 11 {
		return fmt.Errorf("%w: month %d out of range 0..11", ErrInvalidArgument, month)
	}
	return nil
}

// Days counts the non-empty cells.
func (g Grid) Days() int {
	n := 0
	for _, week := range g {
		for _, day := range week {
			if day != Empty {
				n++
			}
		}
	}
	return n
}

// Locate returns the week and column of day, or ok=false when the day is
// not in the grid.
func (g Grid) Locate(day int) (week, col int, ok bool) {
	if day == Empty {
		return 0, 0, false
	}
	for w, days := range g {
		for d, v := range days {
			if v == day {
				return w, d, true
			}
		}
	}
	return 0, 0, false
}

// String renders the grid as a plain-text month, two characters per cell.
func (g Grid) String() string {
	var b strings.Builder
	b.WriteString("Su Mo Tu We Th Fr Sa\n")
	for _, week := range g {
		for d, day := range week {
			if d > 0 {
				b.WriteByte(' ')
			}
			if day == Empty {
				b.WriteString("  ")
				continue
			}
			fmt.Fprintf(&b, "%2d", day)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
