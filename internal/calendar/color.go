package calendar

import (
	"fmt"
	"hash/fnv"
)

// Weekday colors for headers and day numbers.
const (
	SundayColor   = "#ff6666"
	SaturdayColor = "#6666ff"
	WeekdayColor  = "#444444"
)

// Tag color parameters. Hue varies per artist; saturation and lightness
// stay fixed so every tag keeps white text readable.
const (
	tagSaturation = 45
	tagLightness  = 65
)

// WeekdayNames are the column headers, Sunday first.
var WeekdayNames = [DaysPerWeek]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// DayColor returns the text color for a grid column.
func DayColor(col int) string {
	switch col {
	case 0:
		return SundayColor
	case 6:
		return SaturdayColor
	default:
		return WeekdayColor
	}
}

// TagColor derives an hsl() color for an artist tag from seed. The same
// seed always gives the same color.
func TagColor(seed string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	hue := h.Sum32() % 360
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, tagSaturation, tagLightness)
}

// ArtistSeed picks the color seed for an artist: its backend index when
// known, its name otherwise.
func ArtistSeed(artistIdx int, artistName string) string {
	if artistIdx != 0 {
		return fmt.Sprintf("artist:%d", artistIdx)
	}
	return "name:" + artistName
}
