// Package repository is the engine's only persistence seam. The planner
// consumes the Store interface; any store may implement it. The in-memory
// implementation backs tests, the Postgres one production.
package repository

import (
	"context"
	"time"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
)

// Store is the read side plus the entry point into the apply transaction.
// Implementations must support concurrent readers.
type Store interface {
	// ListEmployees returns every employee of the team, active or not
	ListEmployees(ctx context.Context, teamID string) ([]domain.Employee, error)

	// ListApprovedLeaves returns approved leave records of the given
	// employees whose day range touches [from, to)
	ListApprovedLeaves(ctx context.Context, employeeIDs []string, from, to time.Time) ([]domain.LeaveRecord, error)

	// ListShifts returns shifts of the given employees overlapping
	// [from, to); cancelled shifts only when includeCancelled is set
	ListShifts(ctx context.Context, employeeIDs []string, from, to time.Time, includeCancelled bool) ([]domain.Shift, error)

	// HistoryCounts returns weighted assigned-day counts per employee for
	// one shift type since the given instant. weightDays is the shift
	// type's fairness weight.
	HistoryCounts(ctx context.Context, employeeIDs []string, shiftType domain.ShiftTypeID, since time.Time, weightDays int) (map[string]float64, error)

	// TemplateFor returns the template generated shifts of this type
	// reference
	TemplateFor(ctx context.Context, shiftType domain.ShiftTypeID) (*domain.ShiftTemplate, error)

	// GetRun returns a persisted planning run
	GetRun(ctx context.Context, id string) (*domain.PlanningRun, error)

	// BeginApply opens the apply transaction, serialised per team: a
	// second writer on the same team blocks until the first commits or
	// rolls back.
	BeginApply(ctx context.Context, teamID string, horizonStart, horizonEnd time.Time) (ApplyTx, error)
}

// ApplyTx is the apply transaction. Reads observe the current database
// state (not the snapshot a preview used), writes are staged and become
// visible atomically at Commit. Rollback leaves the store untouched.
type ApplyTx interface {
	ListShifts(ctx context.Context, employeeIDs []string, from, to time.Time, includeCancelled bool) ([]domain.Shift, error)
	ListApprovedLeaves(ctx context.Context, employeeIDs []string, from, to time.Time) ([]domain.LeaveRecord, error)
	WriteShifts(ctx context.Context, shifts []*domain.Shift) error
	BumpTemplateUsage(ctx context.Context, templateID string, count int) error
	SaveRun(ctx context.Context, run *domain.PlanningRun) error
	Commit() error
	Rollback() error
}
