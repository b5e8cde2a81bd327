// Package orchestrator drives a planning run end to end: enumerate windows,
// filter candidates, pick assignees, and in apply mode persist the result
// under a per-team lock. Preview and apply share the planning loop; only the
// commit step differs.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster-backend/internal/planning/constraint"
	"github.com/roosterplan/rooster-backend/internal/planning/domain"
	"github.com/roosterplan/rooster-backend/internal/planning/fairness"
	"github.com/roosterplan/rooster-backend/internal/planning/repository"
	"github.com/roosterplan/rooster-backend/internal/planning/shifttype"
	"github.com/roosterplan/rooster-backend/pkg/errors"
	"github.com/roosterplan/rooster-backend/pkg/logger"
)

// maxHorizon caps a single run; longer ranges should be planned in slices
const maxHorizon = 366 * 24 * time.Hour

// mutexQueryMargin widens repository reads past the horizon so mutex and
// booking checks see shifts in ISO weeks the horizon only partially covers
const mutexQueryMargin = 7 * 24 * time.Hour

// Request describes one planning run
type Request struct {
	TeamID       string
	HorizonStart time.Time
	HorizonEnd   time.Time
	// ShiftTypes limits the run to the given types; empty means all
	ShiftTypes []domain.ShiftTypeID
	Mode       domain.RunMode
	// Strict fails the whole run when any window is unassignable
	Strict bool
	// Deadline bounds the run's wall time; zero means no limit
	Deadline  time.Duration
	Initiator *string
}

// Orchestrator coordinates the planning pipeline
type Orchestrator struct {
	store    repository.Store
	registry *shifttype.Registry
	cal      *shifttype.Calendar
	checker  *constraint.Checker
	fair     *fairness.Calculator
	log      *logger.Logger

	historyWindow time.Duration

	// now is swappable for deterministic tests
	now func() time.Time
}

// New creates an orchestrator. historyWindowDays bounds how far back the
// fairness history reaches.
func New(
	store repository.Store,
	registry *shifttype.Registry,
	cal *shifttype.Calendar,
	fair *fairness.Calculator,
	historyWindowDays int,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:         store,
		registry:      registry,
		cal:           cal,
		checker:       constraint.New(cal.Location()),
		fair:          fair,
		log:           log.WithComponent("orchestrator"),
		historyWindow: time.Duration(historyWindowDays) * 24 * time.Hour,
		now:           time.Now,
	}
}

// Plan executes one planning run. In preview mode the store is never
// written; in apply mode the proposal is re-validated and persisted inside
// one transaction, or rejected whole.
func (o *Orchestrator) Plan(ctx context.Context, req Request) (*domain.PlanningOutcome, error) {
	if req.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Deadline)
		defer cancel()
	}

	if err := validateHorizon(req.HorizonStart, req.HorizonEnd); err != nil {
		return nil, err
	}

	types, err := o.resolveTypes(req.ShiftTypes)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := o.log.WithRunID(runID)
	log.Info().
		Str("team_id", req.TeamID).
		Time("horizon_start", req.HorizonStart).
		Time("horizon_end", req.HorizonEnd).
		Str("mode", string(req.Mode)).
		Bool("strict", req.Strict).
		Msg("planning run started")

	state, err := o.loadState(ctx, req, types)
	if err != nil {
		return nil, o.wrapStoreErr(ctx, err)
	}

	outcome, err := o.runPipeline(ctx, runID, req, types, state)
	if err != nil {
		return nil, err
	}

	if req.Strict && len(outcome.Unassignable) > 0 {
		return nil, errors.Unprocessable(
			"NO_ELIGIBLE_EMPLOYEES",
			fmt.Sprintf("%d of %d windows have no eligible employee", len(outcome.Unassignable), len(outcome.Unassignable)+len(outcome.Assignments)),
		)
	}

	if req.Mode == domain.ModeApply {
		if err := o.apply(ctx, req, state, outcome); err != nil {
			return nil, err
		}
		outcome.Committed = true
	}

	log.Info().
		Int("assignments", len(outcome.Assignments)).
		Int("unassignable", len(outcome.Unassignable)).
		Float64("system_score", outcome.Metrics.SystemScore).
		Bool("committed", outcome.Committed).
		Msg("planning run finished")

	return outcome, nil
}

func validateHorizon(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return errors.Unprocessable("HORIZON_INVALID", "horizon start and end are required")
	}
	if !start.Before(end) {
		return errors.Unprocessable("HORIZON_INVALID", "horizon start must be before horizon end")
	}
	if end.Sub(start) > maxHorizon {
		return errors.Unprocessable("HORIZON_INVALID", "horizon exceeds one year")
	}
	return nil
}

// resolveTypes maps the requested shift types onto registered ones,
// preserving the registry's processing order
func (o *Orchestrator) resolveTypes(requested []domain.ShiftTypeID) ([]domain.ShiftTypeID, error) {
	if len(requested) == 0 {
		return o.registry.All(), nil
	}

	want := make(map[domain.ShiftTypeID]bool, len(requested))
	for _, id := range requested {
		if _, ok := o.registry.Get(id); !ok {
			return nil, errors.Unprocessable("UNKNOWN_SHIFT_TYPE", fmt.Sprintf("unknown shift type %q", id))
		}
		want[id] = true
	}

	var types []domain.ShiftTypeID
	for _, id := range o.registry.All() {
		if want[id] {
			types = append(types, id)
		}
	}
	return types, nil
}

// runState is everything one run reads from the repository, loaded up front
// so the planning loop itself does no I/O
type runState struct {
	employees []domain.Employee
	leaves    map[string][]domain.LeaveRecord
	bookings  map[string][]constraint.Booking
	occupancy constraint.Occupancy

	// existing indexes persisted shifts by exact window so re-planning a
	// horizon reproduces what an earlier apply already committed
	existing map[string]domain.Shift

	// history holds weighted assigned days per shift type per employee
	history map[domain.ShiftTypeID]map[string]float64
	// templates holds the template each generated shift will reference
	templates map[domain.ShiftTypeID]*domain.ShiftTemplate
}

func windowKey(shiftType domain.ShiftTypeID, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", shiftType, start.Unix(), end.Unix())
}

func (o *Orchestrator) loadState(ctx context.Context, req Request, types []domain.ShiftTypeID) (*runState, error) {
	employees, err := o.store.ListEmployees(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}
	for i := range employees {
		if err := employees[i].Validate(); err != nil {
			return nil, errors.Internal(err.Error())
		}
	}

	ids := make([]string, 0, len(employees))
	for _, e := range employees {
		ids = append(ids, e.ID)
	}

	queryFrom := req.HorizonStart.Add(-mutexQueryMargin)
	queryTo := req.HorizonEnd.Add(mutexQueryMargin)

	leaves, err := o.store.ListApprovedLeaves(ctx, ids, queryFrom, queryTo)
	if err != nil {
		return nil, err
	}
	leavesByEmp := make(map[string][]domain.LeaveRecord)
	for _, l := range leaves {
		leavesByEmp[l.EmployeeID] = append(leavesByEmp[l.EmployeeID], l)
	}

	shifts, err := o.store.ListShifts(ctx, ids, queryFrom, queryTo, false)
	if err != nil {
		return nil, err
	}

	state := &runState{
		employees: employees,
		leaves:    leavesByEmp,
		bookings:  make(map[string][]constraint.Booking),
		occupancy: make(constraint.Occupancy),
		existing:  make(map[string]domain.Shift),
		history:   make(map[domain.ShiftTypeID]map[string]float64),
		templates: make(map[domain.ShiftTypeID]*domain.ShiftTemplate),
	}
	o.indexShifts(state, shifts)

	since := o.now().Add(-o.historyWindow)
	for _, id := range types {
		policy, _ := o.registry.Policy(id)

		counts, err := o.store.HistoryCounts(ctx, ids, id, since, policy.FairnessWeight)
		if err != nil {
			return nil, err
		}
		state.history[id] = counts

		tmpl, err := o.store.TemplateFor(ctx, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil, errors.Unprocessable("UNKNOWN_SHIFT_TYPE", fmt.Sprintf("shift type %q has no template", id))
			}
			return nil, err
		}
		state.templates[id] = tmpl
	}

	return state, nil
}

// indexShifts folds persisted shifts into the booking and occupancy indices
func (o *Orchestrator) indexShifts(state *runState, shifts []domain.Shift) {
	loc := o.cal.Location()
	for _, sh := range shifts {
		state.bookings[sh.EmployeeID] = append(state.bookings[sh.EmployeeID], constraint.Booking{
			ShiftType: sh.ShiftType,
			Start:     sh.StartAt,
			End:       sh.EndAt,
		})
		state.existing[windowKey(sh.ShiftType, sh.StartAt, sh.EndAt)] = sh

		policy, ok := o.registry.Policy(sh.ShiftType)
		if !ok || policy.MutexGroup == "" {
			continue
		}
		w := domain.Window{ShiftType: sh.ShiftType, Start: sh.StartAt.In(loc), End: sh.EndAt.In(loc)}
		state.occupancy.Add(sh.EmployeeID, w.ISOWeeks(), sh.ShiftType)
	}
}

// runPipeline walks the horizon's windows in deterministic order, assigning
// each one or recording why it could not be assigned
func (o *Orchestrator) runPipeline(ctx context.Context, runID string, req Request, types []domain.ShiftTypeID, state *runState) (*domain.PlanningOutcome, error) {
	windows, err := o.enumerateWindows(req, types)
	if err != nil {
		return nil, err
	}

	// per-type weighted day counts accumulated during this run
	runDays := make(map[domain.ShiftTypeID]map[string]float64, len(types))
	for _, id := range types {
		runDays[id] = make(map[string]float64)
	}
	runTotal := make(map[string]float64)
	assignedShifts := make(map[string]int)

	outcome := &domain.PlanningOutcome{
		RunID: runID,
		Mode:  req.Mode,
	}

	for _, w := range windows {
		select {
		case <-ctx.Done():
			return nil, errors.DeadlineExceeded("planning run exceeded its deadline")
		default:
		}

		// an earlier apply already staffed this exact window; reproduce
		// that assignment instead of planning over it. The holder's load
		// is already in the history counts.
		if sh, ok := state.existing[windowKey(w.ShiftType, w.Start, w.End)]; ok {
			outcome.Assignments = append(outcome.Assignments, domain.Assignment{
				ShiftType:     w.ShiftType,
				Start:         w.Start,
				End:           w.End,
				EmployeeID:    sh.EmployeeID,
				TemplateID:    sh.TemplateID,
				AutoGenerated: sh.AutoGenerated,
			})
			continue
		}

		policy, _ := o.registry.Policy(w.ShiftType)

		res := o.checker.Check(constraint.Input{
			Window:     w,
			Policy:     policy,
			MutexPeers: o.registry.MutexPeers(w.ShiftType),
			Employees:  state.employees,
			Leaves:     state.leaves,
			Bookings:   state.bookings,
			Occupancy:  state.occupancy,
		})

		eligible := make(map[string]bool, len(res.Eligible))
		for _, c := range res.Eligible {
			eligible[c.Employee.ID] = true
		}

		team := o.candidates(state, runDays, runTotal, w.ShiftType)
		winner, ok := o.fair.Select(team, eligible, float64(policy.FairnessWeight))
		if !ok {
			outcome.Unassignable = append(outcome.Unassignable, domain.UnassignableWindow{
				ShiftType: w.ShiftType,
				Start:     w.Start,
				End:       w.End,
				Reason:    res.WindowReason(),
			})
			continue
		}

		outcome.Assignments = append(outcome.Assignments, domain.Assignment{
			ShiftType:     w.ShiftType,
			Start:         w.Start,
			End:           w.End,
			EmployeeID:    winner.EmployeeID,
			TemplateID:    state.templates[w.ShiftType].ID,
			AutoGenerated: true,
		})

		// the tentative assignment constrains every later window in this run
		state.bookings[winner.EmployeeID] = append(state.bookings[winner.EmployeeID], constraint.Booking{
			ShiftType: w.ShiftType,
			Start:     w.Start,
			End:       w.End,
		})
		if policy.MutexGroup != "" {
			state.occupancy.Add(winner.EmployeeID, w.ISOWeeks(), w.ShiftType)
		}
		runDays[w.ShiftType][winner.EmployeeID] += float64(policy.FairnessWeight)
		runTotal[winner.EmployeeID] += float64(policy.FairnessWeight)
		assignedShifts[winner.EmployeeID]++
	}

	if err := o.verifyMutex(state.occupancy); err != nil {
		return nil, err
	}

	outcome.Metrics = o.metrics(state, runDays, runTotal, assignedShifts, types)
	return outcome, nil
}

func (o *Orchestrator) enumerateWindows(req Request, types []domain.ShiftTypeID) ([]domain.Window, error) {
	var windows []domain.Window
	for _, id := range types {
		s, _ := o.registry.Get(id)
		ws, err := s.EnumerateWindows(req.HorizonStart, req.HorizonEnd, o.cal)
		if err != nil {
			return nil, errors.Internal(err.Error())
		}
		windows = append(windows, ws...)
	}

	// chronological, with priority breaking start-instant ties so longer
	// blocks are placed before the shorter ones competing for the same week
	sort.SliceStable(windows, func(i, j int) bool {
		if !windows[i].Start.Equal(windows[j].Start) {
			return windows[i].Start.Before(windows[j].Start)
		}
		pi, _ := o.registry.Policy(windows[i].ShiftType)
		pj, _ := o.registry.Policy(windows[j].ShiftType)
		if pi.Priority != pj.Priority {
			return pi.Priority < pj.Priority
		}
		return windows[i].ShiftType < windows[j].ShiftType
	})

	return windows, nil
}

// candidates builds the fairness inputs for one shift type. History and run
// days are per type; the totals span every planned type and drive the
// system-wide spread term, so a window prefers employees not already
// carrying another duty this run.
func (o *Orchestrator) candidates(state *runState, runDays map[domain.ShiftTypeID]map[string]float64, runTotal map[string]float64, shiftType domain.ShiftTypeID) []fairness.Candidate {
	team := make([]fairness.Candidate, 0, len(state.employees))
	for _, e := range state.employees {
		historyTotal := 0.0
		for _, byEmployee := range state.history {
			historyTotal += byEmployee[e.ID]
		}
		team = append(team, fairness.Candidate{
			EmployeeID:       e.ID,
			FTE:              e.FTE,
			HireDate:         e.HireDate,
			HistoryDays:      state.history[shiftType][e.ID],
			RunDays:          runDays[shiftType][e.ID],
			HistoryTotalDays: historyTotal,
			RunTotalDays:     runTotal[e.ID],
		})
	}
	return team
}

// verifyMutex re-checks the mutex invariant over the final occupancy. A
// violation here means the planning loop is broken, not the input.
func (o *Orchestrator) verifyMutex(occ constraint.Occupancy) error {
	for empID, byWeek := range occ {
		for week, types := range byWeek {
			groups := make(map[string]int)
			for id := range types {
				p, ok := o.registry.Policy(id)
				if !ok || p.MutexGroup == "" {
					continue
				}
				groups[p.MutexGroup]++
				if groups[p.MutexGroup] > 1 {
					return errors.Internal(fmt.Sprintf(
						"mutex violation: employee %s holds multiple %s duties in week %d-W%02d",
						empID, p.MutexGroup, week.Year, week.Week,
					))
				}
			}
		}
	}
	return nil
}

// metrics folds history plus run loads across all planned types into the
// end-of-run fairness summary
func (o *Orchestrator) metrics(state *runState, runDays map[domain.ShiftTypeID]map[string]float64, runTotal map[string]float64, assignedShifts map[string]int, types []domain.ShiftTypeID) domain.Metrics {
	team := make([]fairness.Candidate, 0, len(state.employees))
	for _, e := range state.employees {
		history := 0.0
		for _, id := range types {
			history += state.history[id][e.ID]
		}
		team = append(team, fairness.Candidate{
			EmployeeID:  e.ID,
			FTE:         e.FTE,
			HireDate:    e.HireDate,
			HistoryDays: history,
			RunDays:     runTotal[e.ID],
		})
	}

	scores, systemScore := o.fair.TeamScores(team)

	perEmployee := make(map[string]domain.EmployeeMetrics, len(team))
	sum := 0.0
	for _, m := range team {
		perEmployee[m.EmployeeID] = domain.EmployeeMetrics{
			AssignedShifts:  assignedShifts[m.EmployeeID],
			AssignedDays:    int(runTotal[m.EmployeeID]),
			ProjectedLoad:   m.HistoryDays + m.RunDays,
			IndividualScore: scores[m.EmployeeID],
		}
		sum += scores[m.EmployeeID]
	}

	avg := 0.0
	if len(team) > 0 {
		avg = sum / float64(len(team))
	}

	return domain.Metrics{
		PerEmployee:            perEmployee,
		SystemScore:            systemScore,
		AverageIndividualScore: avg,
	}
}

// apply persists the proposal inside one per-team transaction. The store
// state is re-read under the lock; any change that invalidates an
// assignment rejects the whole run.
func (o *Orchestrator) apply(ctx context.Context, req Request, state *runState, outcome *domain.PlanningOutcome) error {
	tx, err := o.store.BeginApply(ctx, req.TeamID, req.HorizonStart, req.HorizonEnd)
	if err != nil {
		return o.wrapStoreErr(ctx, err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(state.employees))
	for _, e := range state.employees {
		ids = append(ids, e.ID)
	}
	queryFrom := req.HorizonStart.Add(-mutexQueryMargin)
	queryTo := req.HorizonEnd.Add(mutexQueryMargin)

	current, err := tx.ListShifts(ctx, ids, queryFrom, queryTo, false)
	if err != nil {
		return o.wrapStoreErr(ctx, err)
	}
	currentLeaves, err := tx.ListApprovedLeaves(ctx, ids, queryFrom, queryTo)
	if err != nil {
		return o.wrapStoreErr(ctx, err)
	}
	leavesByEmp := make(map[string][]domain.LeaveRecord)
	for _, l := range currentLeaves {
		leavesByEmp[l.EmployeeID] = append(leavesByEmp[l.EmployeeID], l)
	}

	toWrite, err := o.reconcile(req, outcome.Assignments, current, leavesByEmp)
	if err != nil {
		return err
	}
	for _, sh := range toWrite {
		outcome.CreatedShiftIDs = append(outcome.CreatedShiftIDs, sh.ID)
	}

	if len(toWrite) > 0 {
		if err := tx.WriteShifts(ctx, toWrite); err != nil {
			return o.wrapStoreErr(ctx, err)
		}

		usage := make(map[string]int)
		for _, sh := range toWrite {
			usage[sh.TemplateID]++
		}
		for templateID, n := range usage {
			if err := tx.BumpTemplateUsage(ctx, templateID, n); err != nil {
				return o.wrapStoreErr(ctx, err)
			}
		}
	}

	run, err := o.runRecord(req, outcome)
	if err != nil {
		return err
	}
	if err := tx.SaveRun(ctx, run); err != nil {
		return o.wrapStoreErr(ctx, err)
	}

	if err := tx.Commit(); err != nil {
		return o.wrapStoreErr(ctx, err)
	}
	return nil
}

// reconcile validates the proposal against the store state read under the
// apply lock. An exact-match shift means a previous apply already created
// it and is skipped; any other overlap, leave or mutex clash is a conflict.
func (o *Orchestrator) reconcile(req Request, assignments []domain.Assignment, current []domain.Shift, leaves map[string][]domain.LeaveRecord) ([]*domain.Shift, error) {
	loc := o.cal.Location()

	occ := make(constraint.Occupancy)
	for _, sh := range current {
		if p, ok := o.registry.Policy(sh.ShiftType); ok && p.MutexGroup != "" {
			w := domain.Window{ShiftType: sh.ShiftType, Start: sh.StartAt.In(loc), End: sh.EndAt.In(loc)}
			occ.Add(sh.EmployeeID, w.ISOWeeks(), sh.ShiftType)
		}
	}

	var toWrite []*domain.Shift
	for _, a := range assignments {
		conflictErr := func(format string, args ...any) error {
			return errors.Wrap(
				errors.ErrConflict,
				"CONFLICT_ON_APPLY",
				fmt.Sprintf("assignment %s %s rejected: %s", a.ShiftType, a.Start.Format(time.RFC3339), fmt.Sprintf(format, args...)),
				http.StatusConflict,
			)
		}

		alreadyApplied := false
		for _, sh := range current {
			if sh.EmployeeID != a.EmployeeID {
				continue
			}
			if sh.ShiftType == a.ShiftType && sh.StartAt.Equal(a.Start) && sh.EndAt.Equal(a.End) {
				alreadyApplied = true
				break
			}
			if domain.Overlaps(sh.StartAt, sh.EndAt, a.Start, a.End) {
				return nil, conflictErr("employee %s gained an overlapping shift", a.EmployeeID)
			}
		}
		if alreadyApplied {
			continue
		}

		for _, l := range leaves[a.EmployeeID] {
			if l.Blocks(a.Start, a.End, loc) {
				return nil, conflictErr("employee %s gained approved leave over the window", a.EmployeeID)
			}
		}

		policy, _ := o.registry.Policy(a.ShiftType)
		if policy.MutexGroup != "" {
			weeks := domain.Window{ShiftType: a.ShiftType, Start: a.Start.In(loc), End: a.End.In(loc)}.ISOWeeks()
			for _, peer := range o.registry.MutexPeers(a.ShiftType) {
				for _, week := range weeks {
					if occ.Holds(a.EmployeeID, week, peer) {
						return nil, conflictErr("employee %s gained a %s duty in the same week", a.EmployeeID, peer)
					}
				}
			}
			occ.Add(a.EmployeeID, weeks, a.ShiftType)
		}

		toWrite = append(toWrite, &domain.Shift{
			ID:            uuid.New().String(),
			TemplateID:    a.TemplateID,
			ShiftType:     a.ShiftType,
			EmployeeID:    a.EmployeeID,
			TeamID:        req.TeamID,
			StartAt:       a.Start,
			EndAt:         a.End,
			Status:        domain.ShiftScheduled,
			AutoGenerated: true,
			CreatedBy:     req.Initiator,
		})
	}

	return toWrite, nil
}

func (o *Orchestrator) runRecord(req Request, outcome *domain.PlanningOutcome) (*domain.PlanningRun, error) {
	// the persisted outcome records committed=true; the in-memory copy is
	// flipped by the caller after commit succeeds
	persisted := *outcome
	persisted.Committed = true
	raw, err := json.Marshal(persisted)
	if err != nil {
		return nil, errors.Internal("failed to encode run outcome: " + err.Error())
	}

	return &domain.PlanningRun{
		ID:           outcome.RunID,
		TeamID:       req.TeamID,
		HorizonStart: req.HorizonStart,
		HorizonEnd:   req.HorizonEnd,
		Initiator:    req.Initiator,
		RequestedAt:  o.now().UTC(),
		Mode:         domain.ModeApply,
		Committed:    true,
		Outcome:      raw,
	}, nil
}

// wrapStoreErr maps infrastructure failures onto the API error taxonomy.
// AppErrors pass through untouched.
func (o *Orchestrator) wrapStoreErr(ctx context.Context, err error) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if ctx.Err() != nil {
		return errors.DeadlineExceeded("planning run exceeded its deadline")
	}
	return errors.Unavailable(err.Error())
}
