package engine

import (
	"fmt"
	"strings"
	"time"
)

var flexibleDateLayouts = []string{
	"2006-01-02 15:04",
	"2006-1-2 15:04",
	"2006-01-02",
	"2006-1-2",
	"02.01.2006 15:04",
	"2.1.2006 15:04",
	"02.01.2006",
	"2.1.2006",
}

// ParseFlexibleDate tries the date formats people actually type into chat.
// It returns the parsed time in the local timezone and true on success.
func ParseFlexibleDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range flexibleDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LatLon is a geographic point, reserved for location dialog steps.
type LatLon struct {
	Lat float64
	Lon float64
}

func (p LatLon) String() string {
	return fmt.Sprintf("%v,%v", p.Lat, p.Lon)
}

// GoogleLink renders a Google Maps search URL for the point.
func (p LatLon) GoogleLink() string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%v%%2C%v", p.Lat, p.Lon)
}
