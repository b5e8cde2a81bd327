package shifttype

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
)

func testCalendar(t *testing.T, holidays ...string) *Calendar {
	t.Helper()
	cal, err := NewCalendar("Europe/Amsterdam", holidays)
	require.NoError(t, err)
	return cal
}

func TestNewCalendar(t *testing.T) {
	t.Run("rejects unknown timezone", func(t *testing.T) {
		_, err := NewCalendar("Mars/Olympus", nil)
		assert.Error(t, err)
	})

	t.Run("rejects malformed holiday date", func(t *testing.T) {
		_, err := NewCalendar("Europe/Amsterdam", []string{"01-01-2025"})
		assert.Error(t, err)
	})

	t.Run("holiday lookup uses the calendar zone", func(t *testing.T) {
		cal := testCalendar(t, "2025-01-01")
		loc := cal.Location()

		assert.True(t, cal.IsHoliday(time.Date(2025, 1, 1, 12, 0, 0, 0, loc)))
		// 23:30 UTC on Dec 31 is already Jan 1 in Amsterdam
		assert.True(t, cal.IsHoliday(time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC)))
		assert.False(t, cal.IsHoliday(time.Date(2025, 1, 2, 12, 0, 0, 0, loc)))
	})
}

func TestEnumerateWindows(t *testing.T) {
	cal := testCalendar(t)
	loc := cal.Location()
	registry := Defaults()

	// four full ISO weeks, Mon Jan 6 through Mon Feb 3
	horizonStart := time.Date(2025, 1, 6, 0, 0, 0, 0, loc)
	horizonEnd := time.Date(2025, 2, 3, 0, 0, 0, 0, loc)

	t.Run("incidents yields one window per week", func(t *testing.T) {
		s, ok := registry.Get(domain.ShiftTypeIncidents)
		require.True(t, ok)

		windows, err := s.EnumerateWindows(horizonStart, horizonEnd, cal)
		require.NoError(t, err)
		require.Len(t, windows, 4)

		first := windows[0]
		assert.Equal(t, time.Date(2025, 1, 6, 8, 0, 0, 0, loc), first.Start)
		assert.Equal(t, time.Date(2025, 1, 10, 17, 0, 0, 0, loc), first.End)

		for i, w := range windows {
			assert.Equal(t, time.Monday, w.Start.Weekday(), "window %d", i)
			assert.Equal(t, time.Friday, w.End.Weekday(), "window %d", i)
		}
	})

	t.Run("waakdienst runs wednesday evening to next wednesday morning", func(t *testing.T) {
		s, ok := registry.Get(domain.ShiftTypeWaakdienst)
		require.True(t, ok)

		windows, err := s.EnumerateWindows(horizonStart, horizonEnd, cal)
		require.NoError(t, err)
		require.Len(t, windows, 4)

		first := windows[0]
		assert.Equal(t, time.Date(2025, 1, 8, 17, 0, 0, 0, loc), first.Start)
		assert.Equal(t, time.Date(2025, 1, 15, 8, 0, 0, 0, loc), first.End)
		assert.Equal(t, 7*24*time.Hour-9*time.Hour, first.End.Sub(first.Start))
	})

	t.Run("window starting before the horizon is excluded", func(t *testing.T) {
		s, _ := registry.Get(domain.ShiftTypeWaakdienst)

		// start the horizon on a Thursday; that week's Wednesday window
		// began before the horizon and must not appear
		windows, err := s.EnumerateWindows(
			time.Date(2025, 1, 9, 0, 0, 0, 0, loc),
			horizonEnd,
			cal,
		)
		require.NoError(t, err)
		require.Len(t, windows, 3)
		assert.Equal(t, time.Date(2025, 1, 15, 17, 0, 0, 0, loc), windows[0].Start)
	})

	t.Run("window start on horizon end is excluded", func(t *testing.T) {
		s, _ := registry.Get(domain.ShiftTypeIncidents)

		// horizon ends exactly at Monday 08:00; that Monday's window is out
		windows, err := s.EnumerateWindows(
			horizonStart,
			time.Date(2025, 2, 3, 8, 0, 0, 0, loc),
			cal,
		)
		require.NoError(t, err)
		assert.Len(t, windows, 4)
	})

	t.Run("window may extend past the horizon end", func(t *testing.T) {
		s, _ := registry.Get(domain.ShiftTypeWaakdienst)

		windows, err := s.EnumerateWindows(horizonStart, horizonEnd, cal)
		require.NoError(t, err)
		last := windows[len(windows)-1]
		assert.True(t, last.End.After(horizonEnd))
	})
}

func TestEnumerateWindowsHolidaySkip(t *testing.T) {
	loc := testCalendar(t).Location()
	registry := Defaults()

	horizonStart := time.Date(2025, 1, 6, 0, 0, 0, 0, loc)
	horizonEnd := time.Date(2025, 1, 20, 0, 0, 0, 0, loc)

	t.Run("single holiday keeps the window", func(t *testing.T) {
		cal := testCalendar(t, "2025-01-08")
		s, _ := registry.Get(domain.ShiftTypeIncidents)

		windows, err := s.EnumerateWindows(horizonStart, horizonEnd, cal)
		require.NoError(t, err)
		assert.Len(t, windows, 2)
	})

	t.Run("fully holiday week drops the window", func(t *testing.T) {
		cal := testCalendar(t,
			"2025-01-06", "2025-01-07", "2025-01-08", "2025-01-09", "2025-01-10")
		s, _ := registry.Get(domain.ShiftTypeIncidents)

		windows, err := s.EnumerateWindows(horizonStart, horizonEnd, cal)
		require.NoError(t, err)
		require.Len(t, windows, 1)
		assert.Equal(t, time.Date(2025, 1, 13, 8, 0, 0, 0, loc), windows[0].Start)
	})

	t.Run("include policy ignores holidays", func(t *testing.T) {
		cal := testCalendar(t,
			"2025-01-08", "2025-01-09", "2025-01-10", "2025-01-13", "2025-01-14", "2025-01-15")
		s, _ := registry.Get(domain.ShiftTypeWaakdienst)

		windows, err := s.EnumerateWindows(horizonStart, horizonEnd, cal)
		require.NoError(t, err)
		assert.Len(t, windows, 2)
	})
}

func TestRegistry(t *testing.T) {
	registry := Defaults()

	t.Run("all orders by priority", func(t *testing.T) {
		assert.Equal(t, []domain.ShiftTypeID{
			domain.ShiftTypeWaakdienst,
			domain.ShiftTypeIncidents,
			domain.ShiftTypeIncidentsStandby,
		}, registry.All())
	})

	t.Run("mutex peers exclude self", func(t *testing.T) {
		peers := registry.MutexPeers(domain.ShiftTypeIncidents)
		assert.ElementsMatch(t, []domain.ShiftTypeID{
			domain.ShiftTypeWaakdienst,
			domain.ShiftTypeIncidentsStandby,
		}, peers)
	})

	t.Run("unknown type has no peers", func(t *testing.T) {
		assert.Empty(t, registry.MutexPeers("night_porter"))
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		s, _ := registry.Get(domain.ShiftTypeIncidents)
		_, err := NewRegistry(s, s)
		assert.Error(t, err)
	})

	t.Run("invalid policy fails registration", func(t *testing.T) {
		bad := weekly{policy: domain.ShiftTypePolicy{ID: "bad", AvailabilityFlag: "incidents"}}
		_, err := NewRegistry(bad)
		assert.Error(t, err)
	})
}
