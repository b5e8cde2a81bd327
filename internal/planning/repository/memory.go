package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster-backend/internal/planning/domain"
	"github.com/roosterplan/rooster-backend/pkg/errors"
)

// MemoryStore is an in-memory Store. It backs the engine's tests and
// doubles as a reference for the transactional semantics a persistent
// implementation must provide: per-team apply serialisation and atomic
// commit.
type MemoryStore struct {
	mu        sync.RWMutex
	employees map[string]domain.Employee
	templates map[domain.ShiftTypeID]domain.ShiftTemplate
	shifts    map[string]domain.Shift
	leaves    map[string]domain.LeaveRecord
	runs      map[string]domain.PlanningRun

	applyMu sync.Mutex
	teamMus map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees: make(map[string]domain.Employee),
		templates: make(map[domain.ShiftTypeID]domain.ShiftTemplate),
		shifts:    make(map[string]domain.Shift),
		leaves:    make(map[string]domain.LeaveRecord),
		runs:      make(map[string]domain.PlanningRun),
		teamMus:   make(map[string]*sync.Mutex),
	}
}

// SeedEmployee adds or replaces an employee
func (s *MemoryStore) SeedEmployee(e domain.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

// SeedTemplate adds or replaces the template for a shift type
func (s *MemoryStore) SeedTemplate(t domain.ShiftTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ShiftType] = t
}

// SeedLeave adds or replaces a leave record
func (s *MemoryStore) SeedLeave(l domain.LeaveRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	s.leaves[l.ID] = l
}

// InsertShift writes a shift outside any apply transaction. Tests use it
// to simulate a concurrent writer.
func (s *MemoryStore) InsertShift(sh domain.Shift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.ID == "" {
		sh.ID = uuid.New().String()
	}
	s.shifts[sh.ID] = sh
}

// ShiftsSnapshot returns every stored shift, ordered by ID. Tests compare
// snapshots to verify apply atomicity and preview purity.
func (s *MemoryStore) ShiftsSnapshot() []domain.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Shift, 0, len(s.shifts))
	for _, sh := range s.shifts {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListEmployees implements Store
func (s *MemoryStore) ListEmployees(_ context.Context, teamID string) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Employee
	for _, e := range s.employees {
		if e.TeamID == teamID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListApprovedLeaves implements Store
func (s *MemoryStore) ListApprovedLeaves(_ context.Context, employeeIDs []string, from, to time.Time) ([]domain.LeaveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvedLeavesLocked(employeeIDs, from, to), nil
}

func (s *MemoryStore) approvedLeavesLocked(employeeIDs []string, from, to time.Time) []domain.LeaveRecord {
	ids := toSet(employeeIDs)

	var out []domain.LeaveRecord
	for _, l := range s.leaves {
		if l.Status != domain.LeaveApproved || !ids[l.EmployeeID] {
			continue
		}
		// inclusive day range against half-open instant range
		if l.StartDate.Before(to) && l.EndDate.AddDate(0, 0, 1).After(from) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListShifts implements Store
func (s *MemoryStore) ListShifts(_ context.Context, employeeIDs []string, from, to time.Time, includeCancelled bool) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shiftsLocked(employeeIDs, from, to, includeCancelled), nil
}

func (s *MemoryStore) shiftsLocked(employeeIDs []string, from, to time.Time, includeCancelled bool) []domain.Shift {
	ids := toSet(employeeIDs)

	var out []domain.Shift
	for _, sh := range s.shifts {
		if !ids[sh.EmployeeID] {
			continue
		}
		if sh.Status == domain.ShiftCancelled && !includeCancelled {
			continue
		}
		if domain.Overlaps(sh.StartAt, sh.EndAt, from, to) {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HistoryCounts implements Store
func (s *MemoryStore) HistoryCounts(_ context.Context, employeeIDs []string, shiftType domain.ShiftTypeID, since time.Time, weightDays int) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := toSet(employeeIDs)
	counts := make(map[string]float64)
	for _, sh := range s.shifts {
		if !ids[sh.EmployeeID] || sh.ShiftType != shiftType || sh.Status == domain.ShiftCancelled {
			continue
		}
		if sh.StartAt.Before(since) {
			continue
		}
		counts[sh.EmployeeID] += float64(weightDays)
	}
	return counts, nil
}

// TemplateFor implements Store
func (s *MemoryStore) TemplateFor(_ context.Context, shiftType domain.ShiftTypeID) (*domain.ShiftTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[shiftType]
	if !ok {
		return nil, errors.NotFound("shift_template")
	}
	return &t, nil
}

// GetRun implements Store
func (s *MemoryStore) GetRun(_ context.Context, id string) (*domain.PlanningRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, errors.NotFound("planning_run")
	}
	return &r, nil
}

// BeginApply implements Store. Applies for the same team are serialised;
// disjoint teams proceed in parallel.
func (s *MemoryStore) BeginApply(_ context.Context, teamID string, _, _ time.Time) (ApplyTx, error) {
	s.applyMu.Lock()
	teamMu, ok := s.teamMus[teamID]
	if !ok {
		teamMu = &sync.Mutex{}
		s.teamMus[teamID] = teamMu
	}
	s.applyMu.Unlock()

	teamMu.Lock()
	return &memoryTx{store: s, teamMu: teamMu}, nil
}

type memoryTx struct {
	store  *MemoryStore
	teamMu *sync.Mutex
	done   bool

	stagedShifts []domain.Shift
	stagedUsage  map[string]int
	stagedRuns   []domain.PlanningRun
}

func (tx *memoryTx) ListShifts(_ context.Context, employeeIDs []string, from, to time.Time, includeCancelled bool) ([]domain.Shift, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.shiftsLocked(employeeIDs, from, to, includeCancelled), nil
}

func (tx *memoryTx) ListApprovedLeaves(_ context.Context, employeeIDs []string, from, to time.Time) ([]domain.LeaveRecord, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.approvedLeavesLocked(employeeIDs, from, to), nil
}

func (tx *memoryTx) WriteShifts(_ context.Context, shifts []*domain.Shift) error {
	for _, sh := range shifts {
		if err := sh.Validate(); err != nil {
			return err
		}
		tx.stagedShifts = append(tx.stagedShifts, *sh)
	}
	return nil
}

func (tx *memoryTx) BumpTemplateUsage(_ context.Context, templateID string, count int) error {
	if tx.stagedUsage == nil {
		tx.stagedUsage = make(map[string]int)
	}
	tx.stagedUsage[templateID] += count
	return nil
}

func (tx *memoryTx) SaveRun(_ context.Context, run *domain.PlanningRun) error {
	tx.stagedRuns = append(tx.stagedRuns, *run)
	return nil
}

// Commit publishes every staged write atomically
func (tx *memoryTx) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	tx.done = true
	defer tx.teamMu.Unlock()

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for _, sh := range tx.stagedShifts {
		tx.store.shifts[sh.ID] = sh
	}
	for id, n := range tx.stagedUsage {
		for st, tmpl := range tx.store.templates {
			if tmpl.ID == id {
				tmpl.UsageCount += n
				tx.store.templates[st] = tmpl
			}
		}
	}
	for _, r := range tx.stagedRuns {
		tx.store.runs[r.ID] = r
	}
	return nil
}

// Rollback discards every staged write
func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.teamMu.Unlock()
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
