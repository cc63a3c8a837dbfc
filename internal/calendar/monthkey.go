package calendar

import (
	"fmt"
	"time"
)

// MonthKey identifies a displayed month. Month is zero-based (0 = January)
// and always within 0..11.
type MonthKey struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewMonthKey validates month and returns the key.
func NewMonthKey(year, month int) (MonthKey, error) {
	if err := checkMonth(month); err != nil {
		return MonthKey{}, err
	}
	return MonthKey{Year: year, Month: month}, nil
}

// KeyFromAPIMonth builds a key from a 1-based month, as used by the
// backend and by URLs.
func KeyFromAPIMonth(year, month int) (MonthKey, error) {
	return NewMonthKey(year, month-1)
}

// MonthKeyOf returns the key of the month containing t, in t's location.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month()) - 1}
}

// ParseMonthKey parses "YYYY-MM" with a 1-based month.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("%w: month %q: expected YYYY-MM", ErrInvalidArgument, s)
	}
	return MonthKeyOf(t), nil
}

// Prev returns the previous month, carrying into the year for January.
func (k MonthKey) Prev() MonthKey {
	if k.Month == 0 {
		return MonthKey{Year: k.Year - 1, Month: 11}
	}
	return MonthKey{Year: k.Year, Month: k.Month - 1}
}

// Next returns the following month, carrying into the year for December.
func (k MonthKey) Next() MonthKey {
	if k.Month == 11 {
		return MonthKey{Year: k.Year + 1, Month: 0}
	}
	return MonthKey{Year: k.Year, Month: k.Month + 1}
}

// APIMonth is the 1-based month used at the fetch boundary.
func (k MonthKey) APIMonth() int {
	return k.Month + 1
}

// Grid builds the grid for k.
func (k MonthKey) Grid() (Grid, error) {
	return BuildGrid(k.Year, k.Month)
}

// Days returns the number of days in k.
func (k MonthKey) Days() int {
	return DaysInMonth(k.Year, k.Month)
}

// Start returns midnight of the 1st in loc.
func (k MonthKey) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(k.Year, time.Month(k.Month+1), 1, 0, 0, 0, 0, loc)
}

// Valid reports whether Month is within 0..11.
func (k MonthKey) Valid() bool {
	return k.Month >= 0 && k.Month <= 11
}

// String formats the key as "YYYY-MM" with a 1-based month.
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month+1)
}
