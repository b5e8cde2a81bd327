package shifttype

import (
	"fmt"
	"time"
)

// Calendar carries the timezone all windows are anchored in and the set of
// public holidays the holiday policy consults.
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool
}

// NewCalendar builds a calendar for an IANA timezone and a list of ISO
// holiday dates (YYYY-MM-DD).
func NewCalendar(timezone string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", h, err)
		}
		set[h] = true
	}

	return &Calendar{loc: loc, holidays: set}, nil
}

// Location returns the calendar's timezone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsHoliday reports whether the instant falls on a public holiday,
// judged by its date in the calendar's timezone.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[t.In(c.loc).Format("2006-01-02")]
}
