package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"concertcal/internal/calendar"
	"concertcal/internal/model"
)

const productID = "-//concertcal//EN"

// Export renders the concerts of one month as an ICS calendar with one
// all-day VEVENT per concert. Days outside the month are ignored.
func Export(key calendar.MonthKey, concerts model.ConcertsByDay, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	days := key.Days()
	for _, day := range concerts.Days() {
		if day < 1 || day > days {
			continue
		}
		date := time.Date(key.Year, time.Month(key.APIMonth()), day, 0, 0, 0, 0, time.UTC)
		for i, c := range concerts[day] {
			ev := cal.AddEvent(exportUID(date, i, c))
			ev.SetDtStampTime(now.UTC())
			ev.SetSummary(c.ArtistName)
			if c.PostingURL != "" {
				ev.SetURL(c.PostingURL)
			}
			ev.SetAllDayStartAt(date)
			ev.SetAllDayEndAt(date.AddDate(0, 0, 1))
		}
	}

	return cal.Serialize()
}

// exportUID is stable for the same concert at the same position of a day.
func exportUID(date time.Time, i int, c model.Concert) string {
	if c.ConcertIdx != 0 {
		return fmt.Sprintf("concert-%d@concertcal", c.ConcertIdx)
	}
	src := c.SourceID
	if src == "" {
		src = "local"
	}
	return fmt.Sprintf("%s-%s-%d@concertcal", src, date.Format("20060102"), i)
}
