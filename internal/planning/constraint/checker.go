// Package constraint filters the employees that may legally take a window.
// Checks run in a fixed order and short-circuit on the first failure, so a
// rejection always carries the first reason that disqualified the employee.
// Zero candidates is a normal result, never an error; the orchestrator
// decides how to report it.
package constraint

import (
	"sort"
	"time"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
)

// check stages, in evaluation order
const (
	stageActive = iota + 1
	stageAvailability
	stageLeave
	stageBooking
	stageMutex
)

// Booking is an interval an employee already occupies: a persisted
// non-cancelled shift or a tentative assignment from the current run.
type Booking struct {
	ShiftType domain.ShiftTypeID
	Start     time.Time
	End       time.Time
}

// Occupancy records which shift types an employee holds in which ISO weeks,
// counting both persisted shifts and tentative assignments.
type Occupancy map[string]map[domain.ISOWeek]map[domain.ShiftTypeID]bool

// Add records that the employee holds shiftType in every given week
func (o Occupancy) Add(employeeID string, weeks []domain.ISOWeek, shiftType domain.ShiftTypeID) {
	byWeek, ok := o[employeeID]
	if !ok {
		byWeek = make(map[domain.ISOWeek]map[domain.ShiftTypeID]bool)
		o[employeeID] = byWeek
	}
	for _, w := range weeks {
		if byWeek[w] == nil {
			byWeek[w] = make(map[domain.ShiftTypeID]bool)
		}
		byWeek[w][shiftType] = true
	}
}

// Holds reports whether the employee holds shiftType in the given week
func (o Occupancy) Holds(employeeID string, week domain.ISOWeek, shiftType domain.ShiftTypeID) bool {
	return o[employeeID][week][shiftType]
}

// Candidate is an employee that passed every check, annotated with the
// checks it cleared for diagnostics.
type Candidate struct {
	Employee domain.Employee
	Passed   []string
}

// Result is the outcome of checking one window
type Result struct {
	// Eligible is ordered by employee ID so candidate enumeration is
	// deterministic for identical inputs.
	Eligible []Candidate
	// Rejections maps employee ID to the first-failing reason
	Rejections map[string]string

	furthestStage int
}

// WindowReason summarises why a window has no candidates: the reason of
// whichever employee got furthest through the checks.
func (r Result) WindowReason() string {
	switch r.furthestStage {
	case stageAvailability:
		return domain.ReasonNoAvailability
	case stageLeave:
		return domain.ReasonAllOnLeave
	case stageBooking:
		return domain.ReasonAllBooked
	case stageMutex:
		return domain.ReasonAllMutexBlocked
	default:
		return domain.ReasonNoActiveEmployees
	}
}

// Checker applies the eligibility checks for one team
type Checker struct {
	loc *time.Location
}

// New creates a checker; loc is the zone leave dates are expanded in
func New(loc *time.Location) *Checker {
	return &Checker{loc: loc}
}

// Input carries everything one eligibility decision needs
type Input struct {
	Window domain.Window
	Policy domain.ShiftTypePolicy
	// MutexPeers are the other shift types in the window's mutex group
	MutexPeers []domain.ShiftTypeID
	Employees  []domain.Employee
	// Leaves holds each employee's approved leave records
	Leaves map[string][]domain.LeaveRecord
	// Bookings holds each employee's occupied intervals (persisted shifts
	// plus tentative assignments from the current run)
	Bookings map[string][]Booking
	// Occupancy holds mutex-group week occupancy
	Occupancy Occupancy
}

// Check returns the eligible employee set for a window
func (c *Checker) Check(in Input) Result {
	res := Result{Rejections: make(map[string]string)}

	for _, emp := range in.Employees {
		stage, reason := c.checkOne(in, emp)
		if reason == "" {
			res.Eligible = append(res.Eligible, Candidate{
				Employee: emp,
				Passed:   []string{"active", "availability", "leave", "booking", "mutex"},
			})
			continue
		}
		res.Rejections[emp.ID] = reason
		if stage > res.furthestStage {
			res.furthestStage = stage
		}
	}

	sort.Slice(res.Eligible, func(i, j int) bool {
		return res.Eligible[i].Employee.ID < res.Eligible[j].Employee.ID
	})

	return res
}

// checkOne runs the checks for a single employee; an empty reason means
// the employee is eligible.
func (c *Checker) checkOne(in Input, emp domain.Employee) (int, string) {
	if !emp.Active {
		return stageActive, "inactive"
	}

	if !emp.AvailableFor(in.Policy.AvailabilityFlag) {
		return stageAvailability, "not available for " + in.Policy.AvailabilityFlag
	}

	for _, leave := range in.Leaves[emp.ID] {
		if leave.Blocks(in.Window.Start, in.Window.End, c.loc) {
			return stageLeave, "on approved leave"
		}
	}

	for _, b := range in.Bookings[emp.ID] {
		if domain.Overlaps(b.Start, b.End, in.Window.Start, in.Window.End) {
			return stageBooking, "already booked"
		}
	}

	weeks := in.Window.ISOWeeks()
	for _, peer := range in.MutexPeers {
		for _, week := range weeks {
			if in.Occupancy.Holds(emp.ID, week, peer) {
				return stageMutex, "mutex-blocked by " + string(peer)
			}
		}
	}

	return 0, ""
}
