// Package shifttype implements the per-type window rules. Shift types are
// values implementing a small interface; the orchestrator treats them
// uniformly. Window rule, mutex group, fairness weight and holiday policy
// are the only type-specific knowledge.
package shifttype

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
)

// Scheduler enumerates the windows of one shift type inside a horizon
type Scheduler interface {
	Policy() domain.ShiftTypePolicy
	EnumerateWindows(horizonStart, horizonEnd time.Time, cal *Calendar) ([]domain.Window, error)
}

// weekly is a scheduler for shift types recurring once per week: the window
// starts on a fixed weekday at a fixed local clock time and ends a fixed
// number of days later at another clock time.
type weekly struct {
	policy    domain.ShiftTypePolicy
	weekday   rrule.Weekday
	startHour int
	startMin  int
	endOffset int // days from start day to end day
	endHour   int
	endMin    int
}

func (s weekly) Policy() domain.ShiftTypePolicy {
	return s.policy
}

// EnumerateWindows returns, in chronological order, every window whose
// start instant lies in [horizonStart, horizonEnd). A window whose end
// extends past the horizon still belongs to it.
func (s weekly) EnumerateWindows(horizonStart, horizonEnd time.Time, cal *Calendar) ([]domain.Window, error) {
	loc := cal.Location()

	// 2000-01-03 is a Monday; the rule yields occurrences on s.weekday at
	// the anchor clock time in the calendar's zone from there on.
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Wkst:      rrule.MO,
		Byweekday: []rrule.Weekday{s.weekday},
		Dtstart:   time.Date(2000, 1, 3, s.startHour, s.startMin, 0, 0, loc),
	})
	if err != nil {
		return nil, fmt.Errorf("shift type %s: %w", s.policy.ID, err)
	}

	var windows []domain.Window
	for _, start := range rule.Between(horizonStart.In(loc), horizonEnd.In(loc), true) {
		if start.Before(horizonStart) || !start.Before(horizonEnd) {
			continue
		}

		endDay := start.AddDate(0, 0, s.endOffset)
		end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), s.endHour, s.endMin, 0, 0, loc)

		w := domain.Window{ShiftType: s.policy.ID, Start: start, End: end}
		if err := w.Validate(); err != nil {
			return nil, err
		}

		if s.policy.HolidayPolicy == domain.HolidaySkip && allBusinessDaysAreHolidays(w, cal) {
			continue
		}

		windows = append(windows, w)
	}

	return windows, nil
}

// allBusinessDaysAreHolidays reports whether every Mon-Fri day the window
// touches is a public holiday. Only then does the skip policy drop the
// window; a single holiday inside the block leaves the window in place and
// the assignee covers the remaining days.
func allBusinessDaysAreHolidays(w domain.Window, cal *Calendar) bool {
	sawBusinessDay := false

	day := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, w.Start.Location())
	for day.Before(w.End) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			sawBusinessDay = true
			if !cal.IsHoliday(day) {
				return false
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	return sawBusinessDay
}

// Registry holds the known schedulers keyed by shift type
type Registry struct {
	schedulers map[domain.ShiftTypeID]Scheduler
}

// NewRegistry validates and indexes the given schedulers
func NewRegistry(schedulers ...Scheduler) (*Registry, error) {
	r := &Registry{schedulers: make(map[domain.ShiftTypeID]Scheduler, len(schedulers))}
	for _, s := range schedulers {
		p := s.Policy()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.schedulers[p.ID]; dup {
			return nil, fmt.Errorf("duplicate shift type %s", p.ID)
		}
		r.schedulers[p.ID] = s
	}
	return r, nil
}

// Get returns the scheduler for a shift type
func (r *Registry) Get(id domain.ShiftTypeID) (Scheduler, bool) {
	s, ok := r.schedulers[id]
	return s, ok
}

// Policy returns the policy for a shift type
func (r *Registry) Policy(id domain.ShiftTypeID) (domain.ShiftTypePolicy, bool) {
	s, ok := r.schedulers[id]
	if !ok {
		return domain.ShiftTypePolicy{}, false
	}
	return s.Policy(), true
}

// All returns every registered shift type, ordered by priority then ID
func (r *Registry) All() []domain.ShiftTypeID {
	ids := make([]domain.ShiftTypeID, 0, len(r.schedulers))
	for id := range r.schedulers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := r.schedulers[ids[i]].Policy(), r.schedulers[ids[j]].Policy()
		if pi.Priority != pj.Priority {
			return pi.Priority < pj.Priority
		}
		return ids[i] < ids[j]
	})
	return ids
}

// MutexPeers returns the other shift types sharing the given type's mutex
// group. Types with an empty mutex group have no peers.
func (r *Registry) MutexPeers(id domain.ShiftTypeID) []domain.ShiftTypeID {
	self, ok := r.schedulers[id]
	if !ok || self.Policy().MutexGroup == "" {
		return nil
	}

	var peers []domain.ShiftTypeID
	for _, other := range r.All() {
		if other == id {
			continue
		}
		if r.schedulers[other].Policy().MutexGroup == self.Policy().MutexGroup {
			peers = append(peers, other)
		}
	}
	return peers
}

// Defaults returns the registry of the three built-in shift types.
//
//   - Waakdienst: Wednesday 17:00 through next Wednesday 08:00, 7 load days,
//     holidays included. Processed first (longest block).
//   - Incidents: Monday 08:00 through Friday 17:00, 5 load days.
//   - Incidents-Standby: same grid as Incidents, disjoint assignee enforced
//     by the booking overlap check.
//
// All three share the "duty" mutex group: one employee carries at most one
// of them in any ISO week.
func Defaults() *Registry {
	r, err := NewRegistry(
		weekly{
			policy: domain.ShiftTypePolicy{
				ID:               domain.ShiftTypeWaakdienst,
				Label:            "Waakdienst",
				MutexGroup:       "duty",
				FairnessWeight:   7,
				AvailabilityFlag: "waakdienst",
				HolidayPolicy:    domain.HolidayInclude,
				Priority:         0,
			},
			weekday:   rrule.WE,
			startHour: 17,
			endOffset: 7,
			endHour:   8,
		},
		weekly{
			policy: domain.ShiftTypePolicy{
				ID:               domain.ShiftTypeIncidents,
				Label:            "Incidents",
				MutexGroup:       "duty",
				FairnessWeight:   5,
				AvailabilityFlag: "incidents",
				HolidayPolicy:    domain.HolidaySkip,
				Priority:         1,
			},
			weekday:   rrule.MO,
			startHour: 8,
			endOffset: 4,
			endHour:   17,
		},
		weekly{
			policy: domain.ShiftTypePolicy{
				ID:               domain.ShiftTypeIncidentsStandby,
				Label:            "Incidents Standby",
				MutexGroup:       "duty",
				FairnessWeight:   5,
				AvailabilityFlag: "incidents",
				HolidayPolicy:    domain.HolidaySkip,
				Priority:         2,
			},
			weekday:   rrule.MO,
			startHour: 8,
			endOffset: 4,
			endHour:   17,
		},
	)
	if err != nil {
		// Built-in policies are static; a failure here is a programming error.
		panic(err)
	}
	return r
}
