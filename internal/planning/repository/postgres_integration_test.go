package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
	"github.com/roosterplan/rooster-backend/pkg/database"
	"github.com/roosterplan/rooster-backend/pkg/logger"
	"github.com/roosterplan/rooster-backend/pkg/testutil"
)

// TestPostgresStoreIntegration runs the store against a real PostgreSQL
// instance. Requires Docker; skipped in short mode.
func TestPostgresStoreIntegration(t *testing.T) {
	testutil.SkipIfShort(t)

	ctx := context.Background()

	container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	db, err := container.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, container.CreatePlanningSchema(ctx, db))

	store := NewPostgresStore(database.FromSqlx(db, logger.New("test", "test")))

	teamA := uuid.New().String()
	teamB := uuid.New().String()
	e1 := seedEmployee(t, db, teamA, "Anna")
	e2 := seedEmployee(t, db, teamA, "Bram")
	seedEmployee(t, db, teamB, "Cleo")

	templateID := seedTemplate(t, db, domain.ShiftTypeIncidents, "Incidents week", false)
	favouriteID := seedTemplate(t, db, domain.ShiftTypeIncidents, "Incidents preferred", true)

	t.Run("list employees filters by team", func(t *testing.T) {
		employees, err := store.ListEmployees(ctx, teamA)
		require.NoError(t, err)
		require.Len(t, employees, 2)
		assert.True(t, employees[0].ID < employees[1].ID, "ordered by id")
	})

	t.Run("favourite template wins", func(t *testing.T) {
		tmpl, err := store.TemplateFor(ctx, domain.ShiftTypeIncidents)
		require.NoError(t, err)
		assert.Equal(t, favouriteID, tmpl.ID)
	})

	t.Run("missing template is not found", func(t *testing.T) {
		_, err := store.TemplateFor(ctx, domain.ShiftTypeWaakdienst)
		assert.Error(t, err)
	})

	hs := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	he := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	shiftID := uuid.New().String()

	t.Run("apply transaction commits shifts run and usage", func(t *testing.T) {
		tx, err := store.BeginApply(ctx, teamA, hs, he)
		require.NoError(t, err)

		shift := &domain.Shift{
			ID:            shiftID,
			TemplateID:    templateID,
			ShiftType:     domain.ShiftTypeIncidents,
			EmployeeID:    e1,
			TeamID:        teamA,
			StartAt:       hs.Add(8 * time.Hour),
			EndAt:         hs.Add(4*24*time.Hour + 17*time.Hour),
			Status:        domain.ShiftScheduled,
			AutoGenerated: true,
		}
		require.NoError(t, tx.WriteShifts(ctx, []*domain.Shift{shift}))
		assert.False(t, shift.CreatedAt.IsZero(), "database timestamps scanned back")

		require.NoError(t, tx.BumpTemplateUsage(ctx, templateID, 1))

		runID := uuid.New().String()
		require.NoError(t, tx.SaveRun(ctx, &domain.PlanningRun{
			ID: runID, TeamID: teamA, HorizonStart: hs, HorizonEnd: he,
			RequestedAt: time.Now().UTC(), Mode: domain.ModeApply,
			Committed: true, Outcome: []byte(`{"run_id":"` + runID + `"}`),
		}))
		require.NoError(t, tx.Commit())

		shifts, err := store.ListShifts(ctx, []string{e1, e2}, hs, he, false)
		require.NoError(t, err)
		require.Len(t, shifts, 1)
		assert.Equal(t, shiftID, shifts[0].ID)

		run, err := store.GetRun(ctx, runID)
		require.NoError(t, err)
		assert.True(t, run.Committed)

		var usage int
		require.NoError(t, db.GetContext(ctx, &usage,
			"SELECT usage_count FROM shift_templates WHERE id = $1", templateID))
		assert.Equal(t, 1, usage)
	})

	t.Run("rollback leaves no trace", func(t *testing.T) {
		tx, err := store.BeginApply(ctx, teamA, hs, he)
		require.NoError(t, err)

		orphan := &domain.Shift{
			ID: uuid.New().String(), TemplateID: templateID,
			ShiftType: domain.ShiftTypeIncidents, EmployeeID: e2, TeamID: teamA,
			StartAt: hs.AddDate(0, 0, 7).Add(8 * time.Hour),
			EndAt:   hs.AddDate(0, 0, 11).Add(17 * time.Hour),
			Status:  domain.ShiftScheduled,
		}
		require.NoError(t, tx.WriteShifts(ctx, []*domain.Shift{orphan}))
		require.NoError(t, tx.Rollback())

		shifts, err := store.ListShifts(ctx, []string{e2}, hs, he, false)
		require.NoError(t, err)
		assert.Empty(t, shifts)
	})

	t.Run("history counts weight committed shifts", func(t *testing.T) {
		counts, err := store.HistoryCounts(ctx, []string{e1, e2},
			domain.ShiftTypeIncidents, hs.AddDate(-1, 0, 0), 5)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, counts[e1], 1e-9)
		_, ok := counts[e2]
		assert.False(t, ok)
	})

	t.Run("approved leaves respect the inclusive end date", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO leave_records (employee_id, start_date, end_date, status)
			VALUES ($1, '2025-01-08', '2025-01-09', 'approved'),
			       ($1, '2025-01-08', '2025-01-09', 'pending')
		`, e1)
		require.NoError(t, err)

		leaves, err := store.ListApprovedLeaves(ctx, []string{e1},
			time.Date(2025, 1, 9, 22, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, leaves, 1, "pending leaves are out; the approved one still covers Jan 9 evening")

		after, err := store.ListApprovedLeaves(ctx, []string{e1},
			time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Empty(t, after)
	})

	t.Run("applies for one team serialise on the advisory lock", func(t *testing.T) {
		first, err := store.BeginApply(ctx, teamA, hs, he)
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			second, err := store.BeginApply(ctx, teamA, hs, he)
			assert.NoError(t, err)
			close(acquired)
			second.Rollback()
		}()

		select {
		case <-acquired:
			t.Fatal("second apply acquired the lock while the first held it")
		case <-time.After(200 * time.Millisecond):
		}

		require.NoError(t, first.Rollback())

		select {
		case <-acquired:
		case <-time.After(5 * time.Second):
			t.Fatal("second apply never acquired the lock")
		}
	})
}

func seedEmployee(t *testing.T, db *sqlx.DB, teamID, name string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := db.Exec(`
		INSERT INTO employees (id, team_id, display_name, fte,
			available_for_incidents, available_for_waakdienst, hire_date, active)
		VALUES ($1, $2, $3, 1.0, TRUE, TRUE, '2022-03-01', TRUE)
	`, id, teamID, name)
	require.NoError(t, err)
	return id
}

func seedTemplate(t *testing.T, db *sqlx.DB, shiftType domain.ShiftTypeID, name string, favourite bool) string {
	t.Helper()
	id := uuid.New().String()
	_, err := db.Exec(`
		INSERT INTO shift_templates (id, shift_type, name, start_time, end_time, favourite)
		VALUES ($1, $2, $3, '08:00:00', '17:00:00', $4)
	`, id, shiftType, name, favourite)
	require.NoError(t, err)
	return id
}
