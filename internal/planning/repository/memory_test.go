package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
	"github.com/roosterplan/rooster-backend/pkg/errors"
	"github.com/roosterplan/rooster-backend/pkg/testutil"
)

func TestMemoryStoreListEmployees(t *testing.T) {
	store := NewMemoryStore()
	factory := testutil.NewFixtureFactory()

	store.SeedEmployee(factory.Employee(testutil.WithEmployeeID("b"), testutil.WithTeam("team-1")))
	store.SeedEmployee(factory.Employee(testutil.WithEmployeeID("a"), testutil.WithTeam("team-1")))
	store.SeedEmployee(factory.Employee(testutil.WithEmployeeID("c"), testutil.WithTeam("team-2")))

	employees, err := store.ListEmployees(context.Background(), "team-1")
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.Equal(t, "a", employees[0].ID, "employees are ordered by ID")
	assert.Equal(t, "b", employees[1].ID)

	empty, err := store.ListEmployees(context.Background(), "team-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreListApprovedLeaves(t *testing.T) {
	store := NewMemoryStore()
	factory := testutil.NewFixtureFactory()

	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

	store.SeedLeave(factory.Leave("e1", day(8), day(9)))
	store.SeedLeave(factory.Leave("e1", day(20), day(22)))
	store.SeedLeave(factory.Leave("e1", day(8), day(9), testutil.Pending()))
	store.SeedLeave(factory.Leave("e2", day(8), day(9)))

	t.Run("filters by employee status and range", func(t *testing.T) {
		leaves, err := store.ListApprovedLeaves(context.Background(), []string{"e1"}, day(6), day(13))
		require.NoError(t, err)
		require.Len(t, leaves, 1)
		assert.Equal(t, day(8), leaves[0].StartDate)
	})

	t.Run("inclusive end date touches the following night", func(t *testing.T) {
		// the leave through Jan 9 still covers an interval starting late
		// on Jan 9
		leaves, err := store.ListApprovedLeaves(context.Background(), []string{"e1"},
			time.Date(2025, 1, 9, 22, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Len(t, leaves, 1)
	})

	t.Run("day after the leave is clear", func(t *testing.T) {
		leaves, err := store.ListApprovedLeaves(context.Background(), []string{"e1"}, day(10), day(13))
		require.NoError(t, err)
		assert.Empty(t, leaves)
	})
}

func TestMemoryStoreListShifts(t *testing.T) {
	store := NewMemoryStore()
	factory := testutil.NewFixtureFactory()

	at := func(d, h int) time.Time { return time.Date(2025, 1, d, h, 0, 0, 0, time.UTC) }

	store.InsertShift(factory.Shift("e1", domain.ShiftTypeIncidents, at(6, 8), at(10, 17)))
	store.InsertShift(factory.Shift("e1", domain.ShiftTypeIncidents, at(13, 8), at(17, 17), testutil.Cancelled()))
	store.InsertShift(factory.Shift("e2", domain.ShiftTypeWaakdienst, at(8, 17), at(15, 8)))

	t.Run("excludes cancelled by default", func(t *testing.T) {
		shifts, err := store.ListShifts(context.Background(), []string{"e1"}, at(1, 0), at(31, 0), false)
		require.NoError(t, err)
		assert.Len(t, shifts, 1)
	})

	t.Run("includes cancelled on request", func(t *testing.T) {
		shifts, err := store.ListShifts(context.Background(), []string{"e1"}, at(1, 0), at(31, 0), true)
		require.NoError(t, err)
		assert.Len(t, shifts, 2)
	})

	t.Run("half open range excludes touching shifts", func(t *testing.T) {
		shifts, err := store.ListShifts(context.Background(), []string{"e1"}, at(10, 17), at(12, 0), false)
		require.NoError(t, err)
		assert.Empty(t, shifts)
	})

	t.Run("filters by employee", func(t *testing.T) {
		shifts, err := store.ListShifts(context.Background(), []string{"e2"}, at(1, 0), at(31, 0), false)
		require.NoError(t, err)
		require.Len(t, shifts, 1)
		assert.Equal(t, domain.ShiftTypeWaakdienst, shifts[0].ShiftType)
	})
}

func TestMemoryStoreHistoryCounts(t *testing.T) {
	store := NewMemoryStore()
	factory := testutil.NewFixtureFactory()

	at := func(month, d int) time.Time { return time.Date(2025, time.Month(month), d, 8, 0, 0, 0, time.UTC) }

	store.InsertShift(factory.Shift("e1", domain.ShiftTypeIncidents, at(1, 6), at(1, 10)))
	store.InsertShift(factory.Shift("e1", domain.ShiftTypeIncidents, at(2, 3), at(2, 7)))
	store.InsertShift(factory.Shift("e1", domain.ShiftTypeWaakdienst, at(2, 12), at(2, 19)))
	store.InsertShift(factory.Shift("e1", domain.ShiftTypeIncidents, at(3, 3), at(3, 7), testutil.Cancelled()))
	store.InsertShift(factory.Shift("e2", domain.ShiftTypeIncidents, at(2, 10), at(2, 14)))

	since := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	counts, err := store.HistoryCounts(context.Background(), []string{"e1", "e2"}, domain.ShiftTypeIncidents, since, 5)
	require.NoError(t, err)

	// one incidents shift per employee inside the window, five weighted
	// days each; the January shift, the waakdienst shift and the cancelled
	// one are all out
	assert.InDelta(t, 5.0, counts["e1"], 1e-9)
	assert.InDelta(t, 5.0, counts["e2"], 1e-9)
}

func TestMemoryStoreTemplateFor(t *testing.T) {
	store := NewMemoryStore()
	factory := testutil.NewFixtureFactory()
	store.SeedTemplate(factory.Template(domain.ShiftTypeIncidents))

	tmpl, err := store.TemplateFor(context.Background(), domain.ShiftTypeIncidents)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftTypeIncidents, tmpl.ShiftType)

	_, err = store.TemplateFor(context.Background(), domain.ShiftTypeWaakdienst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMemoryStoreGetRun(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMemoryStoreApplyCommit(t *testing.T) {
	store := NewMemoryStore()
	factory := testutil.NewFixtureFactory()
	tmpl := factory.Template(domain.ShiftTypeIncidents)
	store.SeedTemplate(tmpl)

	at := func(d, h int) time.Time { return time.Date(2025, 1, d, h, 0, 0, 0, time.UTC) }

	tx, err := store.BeginApply(context.Background(), "team-1", at(6, 0), at(31, 0))
	require.NoError(t, err)

	shift := factory.Shift("e1", domain.ShiftTypeIncidents, at(6, 8), at(10, 17))
	require.NoError(t, tx.WriteShifts(context.Background(), []*domain.Shift{&shift}))
	require.NoError(t, tx.BumpTemplateUsage(context.Background(), tmpl.ID, 3))
	require.NoError(t, tx.SaveRun(context.Background(), &domain.PlanningRun{
		ID: "run-1", TeamID: "team-1", Mode: domain.ModeApply, Committed: true,
	}))

	// nothing is visible before commit
	assert.Empty(t, store.ShiftsSnapshot())
	_, err = store.GetRun(context.Background(), "run-1")
	assert.Error(t, err)

	require.NoError(t, tx.Commit())

	require.Len(t, store.ShiftsSnapshot(), 1)
	got, err := store.TemplateFor(context.Background(), domain.ShiftTypeIncidents)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsageCount)
	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, run.Committed)

	assert.Error(t, tx.Commit(), "a finished transaction cannot commit again")
}

func TestMemoryStoreApplyRollback(t *testing.T) {
	store := NewMemoryStore()
	factory := testutil.NewFixtureFactory()

	at := func(d, h int) time.Time { return time.Date(2025, 1, d, h, 0, 0, 0, time.UTC) }

	tx, err := store.BeginApply(context.Background(), "team-1", at(6, 0), at(31, 0))
	require.NoError(t, err)

	shift := factory.Shift("e1", domain.ShiftTypeIncidents, at(6, 8), at(10, 17))
	require.NoError(t, tx.WriteShifts(context.Background(), []*domain.Shift{&shift}))
	require.NoError(t, tx.Rollback())

	assert.Empty(t, store.ShiftsSnapshot())
}

func TestMemoryStoreApplyRejectsInvalidShift(t *testing.T) {
	store := NewMemoryStore()
	factory := testutil.NewFixtureFactory()

	at := func(d, h int) time.Time { return time.Date(2025, 1, d, h, 0, 0, 0, time.UTC) }

	tx, err := store.BeginApply(context.Background(), "team-1", at(6, 0), at(31, 0))
	require.NoError(t, err)
	defer tx.Rollback()

	inverted := factory.Shift("e1", domain.ShiftTypeIncidents, at(10, 17), at(6, 8))
	assert.Error(t, tx.WriteShifts(context.Background(), []*domain.Shift{&inverted}))
}

func TestMemoryStoreApplySerialisesPerTeam(t *testing.T) {
	store := NewMemoryStore()

	at := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

	first, err := store.BeginApply(context.Background(), "team-1", at(6), at(31))
	require.NoError(t, err)

	// a second apply for the same team must wait for the first to finish
	acquired := make(chan ApplyTx)
	go func() {
		tx, err := store.BeginApply(context.Background(), "team-1", at(6), at(31))
		assert.NoError(t, err)
		acquired <- tx
	}()

	select {
	case <-acquired:
		t.Fatal("second apply acquired the team lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	// a different team is not blocked
	other, err := store.BeginApply(context.Background(), "team-2", at(6), at(31))
	require.NoError(t, err)
	require.NoError(t, other.Rollback())

	require.NoError(t, first.Rollback())

	select {
	case tx := <-acquired:
		require.NoError(t, tx.Rollback())
	case <-time.After(2 * time.Second):
		t.Fatal("second apply never acquired the team lock")
	}
}
