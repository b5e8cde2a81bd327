package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Employee creates an employee fixture with defaults: active, full-time,
// available for every duty, hired a year ago. Hire dates are staggered by
// sequence so tie-breaks stay deterministic.
func (f *FixtureFactory) Employee(opts ...func(*domain.Employee)) domain.Employee {
	seq := f.nextSeq()

	emp := domain.Employee{
		ID:                     uuid.New().String(),
		TeamID:                 uuid.New().String(),
		DisplayName:            fmt.Sprintf("Employee %d", seq),
		FTE:                    1.0,
		AvailableForIncidents:  true,
		AvailableForWaakdienst: true,
		HireDate:               time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, seq),
		Active:                 true,
		CreatedAt:              time.Now(),
		UpdatedAt:              time.Now(),
	}

	for _, opt := range opts {
		opt(&emp)
	}

	return emp
}

// WithTeam sets the employee's team
func WithTeam(teamID string) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.TeamID = teamID
	}
}

// WithEmployeeID sets the employee's ID
func WithEmployeeID(id string) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.ID = id
	}
}

// WithFTE sets the employee's full-time fraction
func WithFTE(fte float64) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.FTE = fte
	}
}

// WithHireDate sets the employee's hire date
func WithHireDate(d time.Time) func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.HireDate = d
	}
}

// Inactive marks the employee inactive
func Inactive() func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.Active = false
	}
}

// IncidentsOnly limits availability to incidents duties
func IncidentsOnly() func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.AvailableForIncidents = true
		e.AvailableForWaakdienst = false
	}
}

// WaakdienstOnly limits availability to waakdienst duty
func WaakdienstOnly() func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.AvailableForIncidents = false
		e.AvailableForWaakdienst = true
	}
}

// Unavailable opts the employee out of every duty
func Unavailable() func(*domain.Employee) {
	return func(e *domain.Employee) {
		e.AvailableForIncidents = false
		e.AvailableForWaakdienst = false
	}
}

// Template creates a shift template fixture for one shift type
func (f *FixtureFactory) Template(shiftType domain.ShiftTypeID, opts ...func(*domain.ShiftTemplate)) domain.ShiftTemplate {
	seq := f.nextSeq()

	tmpl := domain.ShiftTemplate{
		ID:        uuid.New().String(),
		ShiftType: shiftType,
		Name:      fmt.Sprintf("%s template %d", shiftType, seq),
		StartTime: "08:00:00",
		EndTime:   "17:00:00",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	return tmpl
}

// Favourite marks the template as favourite
func Favourite() func(*domain.ShiftTemplate) {
	return func(t *domain.ShiftTemplate) {
		t.Favourite = true
	}
}

// WithUsageCount sets the template's usage count
func WithUsageCount(n int) func(*domain.ShiftTemplate) {
	return func(t *domain.ShiftTemplate) {
		t.UsageCount = n
	}
}

// Leave creates an approved leave fixture over an inclusive date range
func (f *FixtureFactory) Leave(employeeID string, startDate, endDate time.Time, opts ...func(*domain.LeaveRecord)) domain.LeaveRecord {
	leave := domain.LeaveRecord{
		ID:         uuid.New().String(),
		EmployeeID: employeeID,
		StartDate:  startDate,
		EndDate:    endDate,
		Status:     domain.LeaveApproved,
		CreatedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(&leave)
	}

	return leave
}

// Pending marks the leave as not yet approved
func Pending() func(*domain.LeaveRecord) {
	return func(l *domain.LeaveRecord) {
		l.Status = domain.LeavePending
	}
}

// Shift creates a scheduled shift fixture
func (f *FixtureFactory) Shift(employeeID string, shiftType domain.ShiftTypeID, start, end time.Time, opts ...func(*domain.Shift)) domain.Shift {
	shift := domain.Shift{
		ID:         uuid.New().String(),
		TemplateID: uuid.New().String(),
		ShiftType:  shiftType,
		EmployeeID: employeeID,
		TeamID:     uuid.New().String(),
		StartAt:    start,
		EndAt:      end,
		Status:     domain.ShiftScheduled,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(&shift)
	}

	return shift
}

// Cancelled marks the shift cancelled
func Cancelled() func(*domain.Shift) {
	return func(s *domain.Shift) {
		s.Status = domain.ShiftCancelled
	}
}

// WithShiftTeam sets the shift's team
func WithShiftTeam(teamID string) func(*domain.Shift) {
	return func(s *domain.Shift) {
		s.TeamID = teamID
	}
}

// WithTemplate sets the shift's template
func WithTemplate(templateID string) func(*domain.Shift) {
	return func(s *domain.Shift) {
		s.TemplateID = templateID
	}
}
