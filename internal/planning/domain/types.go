// Package domain holds the typed records the planning engine operates on.
// All instants are timezone-aware; leave records are date-granular and
// inclusive on both ends.
package domain

import (
	"fmt"
	"time"
)

// ShiftTypeID identifies a class of work with its own window rule
type ShiftTypeID string

// Built-in shift types
const (
	ShiftTypeIncidents        ShiftTypeID = "incidents"
	ShiftTypeIncidentsStandby ShiftTypeID = "incidents_standby"
	ShiftTypeWaakdienst       ShiftTypeID = "waakdienst"
)

// HolidayPolicy controls how a shift type treats public holidays
type HolidayPolicy string

const (
	HolidaySkip    HolidayPolicy = "skip"
	HolidayInclude HolidayPolicy = "include"
)

// ShiftTypePolicy is the per-type knowledge the engine needs: window rule
// (implemented by the matching scheduler), mutex group, fairness weight,
// availability flag and holiday handling. Shift types sharing a mutex group
// cannot coexist for one employee in the same ISO week.
type ShiftTypePolicy struct {
	ID               ShiftTypeID   `json:"id"`
	Label            string        `json:"label"`
	MutexGroup       string        `json:"mutex_group"`
	FairnessWeight   int           `json:"fairness_weight"`
	AvailabilityFlag string        `json:"availability_flag"`
	HolidayPolicy    HolidayPolicy `json:"holiday_policy"`
	// Priority orders window processing for windows sharing a start instant;
	// lower sorts first. Longer-block types get lower values to reduce thrashing.
	Priority int `json:"priority"`
}

// Validate rejects policies that would corrupt fairness accounting
func (p *ShiftTypePolicy) Validate() error {
	if p.FairnessWeight <= 0 {
		return fmt.Errorf("shift type %s: fairness weight must be positive, got %d", p.ID, p.FairnessWeight)
	}
	if p.AvailabilityFlag == "" {
		return fmt.Errorf("shift type %s: availability flag is required", p.ID)
	}
	return nil
}

// Employee is a schedulable team member
type Employee struct {
	ID                     string    `db:"id" json:"id"`
	TeamID                 string    `db:"team_id" json:"team_id"`
	DisplayName            string    `db:"display_name" json:"display_name"`
	FTE                    float64   `db:"fte" json:"fte"`
	AvailableForIncidents  bool      `db:"available_for_incidents" json:"available_for_incidents"`
	AvailableForWaakdienst bool      `db:"available_for_waakdienst" json:"available_for_waakdienst"`
	HireDate               time.Time `db:"hire_date" json:"hire_date"`
	Active                 bool      `db:"active" json:"active"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableFor reports whether the employee opted in to the given
// availability flag. Unknown flags are treated as unavailable.
func (e *Employee) AvailableFor(flag string) bool {
	switch flag {
	case "incidents":
		return e.AvailableForIncidents
	case "waakdienst":
		return e.AvailableForWaakdienst
	default:
		return false
	}
}

// Validate rejects employees that would corrupt fairness accounting
func (e *Employee) Validate() error {
	if e.FTE < 0 {
		return fmt.Errorf("employee %s: negative FTE %v", e.ID, e.FTE)
	}
	return nil
}

// ShiftTemplate is a named preset describing a recurring shift. Every
// generated shift references exactly one template.
type ShiftTemplate struct {
	ID         string      `db:"id" json:"id"`
	ShiftType  ShiftTypeID `db:"shift_type" json:"shift_type"`
	Name       string      `db:"name" json:"name"`
	StartTime  string      `db:"start_time" json:"start_time"` // TIME format HH:MM:SS
	EndTime    string      `db:"end_time" json:"end_time"`     // TIME format HH:MM:SS
	Notes      *string     `db:"notes" json:"notes,omitempty"`
	Favourite  bool        `db:"favourite" json:"favourite"`
	UsageCount int         `db:"usage_count" json:"usage_count"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// ShiftStatus is the lifecycle state of a shift
type ShiftStatus string

const (
	ShiftScheduled ShiftStatus = "scheduled"
	ShiftConfirmed ShiftStatus = "confirmed"
	ShiftCancelled ShiftStatus = "cancelled"
)

// Shift is one assignment instance
type Shift struct {
	ID            string      `db:"id" json:"id"`
	TemplateID    string      `db:"template_id" json:"template_id"`
	ShiftType     ShiftTypeID `db:"shift_type" json:"shift_type"`
	EmployeeID    string      `db:"employee_id" json:"employee_id"`
	TeamID        string      `db:"team_id" json:"team_id"`
	StartAt       time.Time   `db:"start_at" json:"start_at"`
	EndAt         time.Time   `db:"end_at" json:"end_at"`
	Status        ShiftStatus `db:"status" json:"status"`
	AutoGenerated bool        `db:"auto_generated" json:"auto_generated"`
	CreatedBy     *string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// Validate enforces the interval invariant
func (s *Shift) Validate() error {
	if !s.StartAt.Before(s.EndAt) {
		return fmt.Errorf("shift %s: start %s is not before end %s", s.ID, s.StartAt, s.EndAt)
	}
	return nil
}

// LeaveStatus is the review state of a leave record
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// LeaveRecord is an employee leave interval. Dates are inclusive on both
// ends; only approved records block scheduling.
type LeaveRecord struct {
	ID         string      `db:"id" json:"id"`
	EmployeeID string      `db:"employee_id" json:"employee_id"`
	StartDate  time.Time   `db:"start_date" json:"start_date"`
	EndDate    time.Time   `db:"end_date" json:"end_date"`
	Status     LeaveStatus `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// Blocks reports whether this leave blocks an assignment over
// [start, end). The leave interval is expanded to whole days in loc.
func (l *LeaveRecord) Blocks(start, end time.Time, loc *time.Location) bool {
	if l.Status != LeaveApproved {
		return false
	}
	ls := l.StartDate.In(loc)
	leaveStart := time.Date(ls.Year(), ls.Month(), ls.Day(), 0, 0, 0, 0, loc)
	le := l.EndDate.In(loc)
	leaveEnd := time.Date(le.Year(), le.Month(), le.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return Overlaps(leaveStart, leaveEnd, start, end)
}

// Overlaps reports whether two half-open intervals intersect
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ISOWeek identifies one ISO-8601 week
type ISOWeek struct {
	Year int
	Week int
}

// Window is a single schedulable interval of a given shift type
type Window struct {
	ShiftType ShiftTypeID `json:"shift_type"`
	Start     time.Time   `json:"start_instant"`
	End       time.Time   `json:"end_instant"`
}

// Validate enforces the interval invariant
func (w Window) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("window %s: start %s is not before end %s", w.ShiftType, w.Start, w.End)
	}
	return nil
}

// ISOWeeks returns every ISO week the window touches, in order. A window
// spanning a week boundary (Waakdienst does) occupies both weeks for
// mutex purposes.
func (w Window) ISOWeeks() []ISOWeek {
	var weeks []ISOWeek
	seen := make(map[ISOWeek]bool)

	day := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, w.Start.Location())
	for day.Before(w.End) {
		y, wk := day.ISOWeek()
		iw := ISOWeek{Year: y, Week: wk}
		if !seen[iw] {
			seen[iw] = true
			weeks = append(weeks, iw)
		}
		day = day.AddDate(0, 0, 1)
	}
	return weeks
}

// RunMode distinguishes the two planning modes
type RunMode string

const (
	ModePreview RunMode = "preview"
	ModeApply   RunMode = "apply"
)

// Assignment is one proposed or created shift descriptor
type Assignment struct {
	ShiftType     ShiftTypeID `json:"shift_type"`
	Start         time.Time   `json:"start_instant"`
	End           time.Time   `json:"end_instant"`
	EmployeeID    string      `json:"employee_id"`
	TemplateID    string      `json:"template_id"`
	AutoGenerated bool        `json:"auto_generated"`
}

// UnassignableWindow is a window for which no candidate passed the
// constraint checker
type UnassignableWindow struct {
	ShiftType ShiftTypeID `json:"shift_type"`
	Start     time.Time   `json:"start_instant"`
	End       time.Time   `json:"end_instant"`
	Reason    string      `json:"reason"`
}

// Unassignable reasons, most specific first-failing check wins
const (
	ReasonNoActiveEmployees = "no active employees"
	ReasonNoAvailability    = "no availability"
	ReasonAllOnLeave        = "all on leave"
	ReasonAllBooked         = "all booked"
	ReasonAllMutexBlocked   = "all mutex-blocked"
)

// EmployeeMetrics summarises one employee's share of a run outcome
type EmployeeMetrics struct {
	AssignedShifts  int     `json:"assigned_shifts"`
	AssignedDays    int     `json:"assigned_days"`
	ProjectedLoad   float64 `json:"projected_load"`
	IndividualScore float64 `json:"individual_score"`
}

// Metrics summarises a run outcome
type Metrics struct {
	PerEmployee            map[string]EmployeeMetrics `json:"per_employee"`
	SystemScore            float64                    `json:"system_score"`
	AverageIndividualScore float64                    `json:"average_individual_score"`
}

// PlanningOutcome is the result of one planning run
type PlanningOutcome struct {
	RunID        string               `json:"run_id"`
	Mode         RunMode              `json:"mode"`
	Committed    bool                 `json:"committed"`
	Assignments  []Assignment         `json:"assignments"`
	Unassignable []UnassignableWindow `json:"unassignable"`
	Metrics      Metrics              `json:"metrics"`
	// CreatedShiftIDs holds the identifiers of shifts a committed apply
	// wrote; empty for previews and for already-applied assignments
	CreatedShiftIDs []string `json:"created_shift_ids,omitempty"`
}

// PlanningRun is the persisted record of one apply invocation
type PlanningRun struct {
	ID           string    `db:"id" json:"id"`
	TeamID       string    `db:"team_id" json:"team_id"`
	HorizonStart time.Time `db:"horizon_start" json:"horizon_start"`
	HorizonEnd   time.Time `db:"horizon_end" json:"horizon_end"`
	Initiator    *string   `db:"initiator" json:"initiator,omitempty"`
	RequestedAt  time.Time `db:"requested_at" json:"requested_at"`
	Mode         RunMode   `db:"mode" json:"mode"`
	Committed    bool      `db:"committed" json:"committed"`
	Outcome      []byte    `db:"outcome" json:"-"`
}
