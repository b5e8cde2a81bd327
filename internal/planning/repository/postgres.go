package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
	"github.com/roosterplan/rooster-backend/pkg/database"
	"github.com/roosterplan/rooster-backend/pkg/errors"
)

// PostgresStore implements Store on PostgreSQL. Overlap queries lean on the
// (assigned_employee, start_at, end_at) and (start_at, end_at) indices;
// the apply path serialises per team with a transaction-scoped advisory
// lock, so two applies on disjoint teams proceed in parallel.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListEmployees returns every employee of the team
func (s *PostgresStore) ListEmployees(ctx context.Context, teamID string) ([]domain.Employee, error) {
	var employees []domain.Employee

	query := `
		SELECT id, team_id, display_name, fte,
		       available_for_incidents, available_for_waakdienst,
		       hire_date, active, created_at, updated_at
		FROM employees
		WHERE team_id = $1
		ORDER BY id
	`
	if err := s.db.SelectContext(ctx, &employees, query, teamID); err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}

	return employees, nil
}

// ListApprovedLeaves returns approved leaves touching [from, to)
func (s *PostgresStore) ListApprovedLeaves(ctx context.Context, employeeIDs []string, from, to time.Time) ([]domain.LeaveRecord, error) {
	return listApprovedLeaves(ctx, s.db, employeeIDs, from, to)
}

// ListShifts returns shifts overlapping [from, to)
func (s *PostgresStore) ListShifts(ctx context.Context, employeeIDs []string, from, to time.Time, includeCancelled bool) ([]domain.Shift, error) {
	return listShifts(ctx, s.db, employeeIDs, from, to, includeCancelled)
}

// HistoryCounts returns weighted assigned-day counts per employee for one
// shift type since the given instant
func (s *PostgresStore) HistoryCounts(ctx context.Context, employeeIDs []string, shiftType domain.ShiftTypeID, since time.Time, weightDays int) (map[string]float64, error) {
	query := `
		SELECT employee_id, COUNT(*)::float8 * $4 AS weighted_days
		FROM shifts
		WHERE employee_id = ANY($1)
		  AND shift_type = $2
		  AND status != 'cancelled'
		  AND start_at >= $3
		GROUP BY employee_id
	`

	rows, err := s.db.QueryxContext(ctx, query, pq.Array(employeeIDs), shiftType, since, weightDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query history counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]float64)
	for rows.Next() {
		var employeeID string
		var days float64
		if err := rows.Scan(&employeeID, &days); err != nil {
			return nil, fmt.Errorf("failed to scan history count: %w", err)
		}
		counts[employeeID] = days
	}

	return counts, rows.Err()
}

// TemplateFor returns the template generated shifts of this type reference.
// Favourite templates win, then the most used one.
func (s *PostgresStore) TemplateFor(ctx context.Context, shiftType domain.ShiftTypeID) (*domain.ShiftTemplate, error) {
	var tmpl domain.ShiftTemplate

	query := `
		SELECT id, shift_type, name, start_time::text AS start_time, end_time::text AS end_time,
		       notes, favourite, usage_count, created_at, updated_at
		FROM shift_templates
		WHERE shift_type = $1
		ORDER BY favourite DESC, usage_count DESC, id
		LIMIT 1
	`
	err := s.db.GetContext(ctx, &tmpl, query, shiftType)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("shift_template")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return &tmpl, nil
}

// GetRun returns a persisted planning run
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*domain.PlanningRun, error) {
	var run domain.PlanningRun

	query := `
		SELECT id, team_id, horizon_start, horizon_end, initiator,
		       requested_at, mode, committed, outcome
		FROM planning_runs
		WHERE id = $1
	`
	err := s.db.GetContext(ctx, &run, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("planning_run")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get planning run: %w", err)
	}

	return &run, nil
}

// BeginApply opens the apply transaction under a per-team advisory lock.
// The lock is transaction-scoped and released at commit or rollback.
func (s *PostgresStore) BeginApply(ctx context.Context, teamID string, _, _ time.Time) (ApplyTx, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin apply transaction: %w", err)
	}

	if err := database.AdvisoryLock(ctx, tx, database.LockKey("plan:"+teamID)); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) ListShifts(ctx context.Context, employeeIDs []string, from, to time.Time, includeCancelled bool) ([]domain.Shift, error) {
	return listShifts(ctx, t.tx, employeeIDs, from, to, includeCancelled)
}

func (t *postgresTx) ListApprovedLeaves(ctx context.Context, employeeIDs []string, from, to time.Time) ([]domain.LeaveRecord, error) {
	return listApprovedLeaves(ctx, t.tx, employeeIDs, from, to)
}

func (t *postgresTx) WriteShifts(ctx context.Context, shifts []*domain.Shift) error {
	query := `
		INSERT INTO shifts (
			id, template_id, shift_type, employee_id, team_id,
			start_at, end_at, status, auto_generated, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	for _, sh := range shifts {
		if err := sh.Validate(); err != nil {
			return err
		}
		if sh.ID == "" {
			sh.ID = uuid.New().String()
		}
		err := t.tx.QueryRowxContext(ctx, query,
			sh.ID, sh.TemplateID, sh.ShiftType, sh.EmployeeID, sh.TeamID,
			sh.StartAt, sh.EndAt, sh.Status, sh.AutoGenerated, sh.CreatedBy,
		).Scan(&sh.CreatedAt, &sh.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to write shift: %w", err)
		}
	}

	return nil
}

func (t *postgresTx) BumpTemplateUsage(ctx context.Context, templateID string, count int) error {
	query := `UPDATE shift_templates SET usage_count = usage_count + $2 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, templateID, count); err != nil {
		return fmt.Errorf("failed to bump template usage: %w", err)
	}
	return nil
}

func (t *postgresTx) SaveRun(ctx context.Context, run *domain.PlanningRun) error {
	query := `
		INSERT INTO planning_runs (
			id, team_id, horizon_start, horizon_end, initiator,
			requested_at, mode, committed, outcome
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := t.tx.ExecContext(ctx, query,
		run.ID, run.TeamID, run.HorizonStart, run.HorizonEnd, run.Initiator,
		run.RequestedAt, run.Mode, run.Committed, run.Outcome,
	)
	if err != nil {
		return fmt.Errorf("failed to save planning run: %w", err)
	}
	return nil
}

func (t *postgresTx) Commit() error {
	return t.tx.Commit()
}

func (t *postgresTx) Rollback() error {
	return t.tx.Rollback()
}

// querier covers the sqlx read surface shared by the store and the
// transaction
type querier interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func listShifts(ctx context.Context, q querier, employeeIDs []string, from, to time.Time, includeCancelled bool) ([]domain.Shift, error) {
	var shifts []domain.Shift

	query := `
		SELECT id, template_id, shift_type, employee_id, team_id,
		       start_at, end_at, status, auto_generated, created_by,
		       created_at, updated_at
		FROM shifts
		WHERE employee_id = ANY($1)
		  AND start_at < $3
		  AND end_at > $2
	`
	if !includeCancelled {
		query += " AND status != 'cancelled'"
	}
	query += " ORDER BY start_at, id"

	if err := q.SelectContext(ctx, &shifts, query, pq.Array(employeeIDs), from, to); err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}

	return shifts, nil
}

func listApprovedLeaves(ctx context.Context, q querier, employeeIDs []string, from, to time.Time) ([]domain.LeaveRecord, error) {
	var leaves []domain.LeaveRecord

	// end_date is inclusive; a leave touches [from, to) when its day range
	// expanded by one day crosses the interval
	query := `
		SELECT id, employee_id, start_date, end_date, status, created_at
		FROM leave_records
		WHERE employee_id = ANY($1)
		  AND status = 'approved'
		  AND start_date < $3
		  AND end_date + INTERVAL '1 day' > $2
		ORDER BY start_date, id
	`
	if err := q.SelectContext(ctx, &leaves, query, pq.Array(employeeIDs), from, to); err != nil {
		return nil, fmt.Errorf("failed to list leave records: %w", err)
	}

	return leaves, nil
}
