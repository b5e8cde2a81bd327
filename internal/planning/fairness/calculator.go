// Package fairness ranks candidates so that assignments minimise workload
// inequality across the team. Pure arithmetic: no side effects, no
// repository access, no I/O. All state a calculation needs is passed in.
package fairness

import (
	"math"
	"sort"
	"time"
)

// Config holds the ranking policy. Operators retune these without a
// rebuild; see the fairness section of the service configuration.
type Config struct {
	// RankIndividual, RankSystem and RankBonus weight the three ranking
	// terms. They default to 0.60 / 0.25 / 0.15.
	RankIndividual float64
	RankSystem     float64
	RankBonus      float64

	// OverPenaltyExp is the exponent applied to the over-assignment
	// deviation ratio. Values above 1 make piling onto already-loaded
	// employees progressively more expensive.
	OverPenaltyExp     float64
	OverPenaltyFactor  float64
	UnderPenaltyFactor float64

	// Scale converts the stddev of projected loads into system-score points
	Scale float64
}

// DefaultConfig returns the shipped ranking policy
func DefaultConfig() Config {
	return Config{
		RankIndividual:     0.60,
		RankSystem:         0.25,
		RankBonus:          0.15,
		OverPenaltyExp:     1.5,
		OverPenaltyFactor:  75,
		UnderPenaltyFactor: 60,
		Scale:              1.0,
	}
}

// Candidate carries one employee's load figures for a ranking decision.
// HistoryDays and RunDays are weighted day counts for the shift type being
// ranked. HistoryTotalDays and RunTotalDays span all shift types in scope;
// they feed the system-wide spread term and the run-total tie-break, so a
// window steers toward employees not yet carrying another duty even when
// the per-type loads tie.
type Candidate struct {
	EmployeeID       string
	FTE              float64
	HireDate         time.Time
	HistoryDays      float64
	RunDays          float64
	HistoryTotalDays float64
	RunTotalDays     float64
}

// load is the candidate's committed load for the ranked type before the
// pending window
func (c Candidate) load() float64 {
	return c.HistoryDays + c.RunDays
}

// totalLoad is the candidate's committed load across every duty type
func (c Candidate) totalLoad() float64 {
	return c.HistoryTotalDays + c.RunTotalDays
}

// Ranked is a candidate with its computed scores
type Ranked struct {
	Candidate
	Rank            float64
	IndividualScore float64
	SystemScore     float64
	UnderLoadBonus  float64
	ProjectedLoad   float64
}

// Calculator scores and ranks candidates
type Calculator struct {
	cfg Config
}

// New creates a calculator with the given policy
func New(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// IndividualScore maps a (load, expected) pair onto 0..100, higher is
// fairer. Over-assignment is penalised progressively, under-assignment
// linearly, so the ranking pulls the team toward parity without violently
// excluding slightly-loaded employees.
func (c *Calculator) IndividualScore(load, expected float64) float64 {
	r := (load - expected) / math.Max(expected, 1)

	var penalty float64
	if r >= 0 {
		penalty = math.Min(100, math.Pow(r, c.cfg.OverPenaltyExp)*c.cfg.OverPenaltyFactor)
	} else {
		penalty = math.Min(100, -r*c.cfg.UnderPenaltyFactor)
	}

	return 100 - penalty
}

// SystemScore maps the spread of projected loads onto 0..100
func (c *Calculator) SystemScore(loads []float64) float64 {
	return math.Max(0, 100-stddev(loads)*c.cfg.Scale)
}

// Select ranks the eligible subset of the team for a window carrying
// pendingWeight load days and returns the winner. The whole team is passed
// so expected loads reflect everyone's share, not just the eligible set.
// Returns false when no candidate is eligible.
//
// Tie-breaks, in order: earlier hire date, lower assigned-day count in the
// current run, lower employee ID.
func (c *Calculator) Select(team []Candidate, eligible map[string]bool, pendingWeight float64) (Ranked, bool) {
	ranked := c.RankCandidates(team, eligible, pendingWeight)
	if len(ranked) == 0 {
		return Ranked{}, false
	}
	return ranked[0], true
}

// RankCandidates returns the eligible candidates ordered best-first.
// Expected loads are apportioned from the team's committed days only; the
// pending window's weight raises each candidate's projection but never the
// expectation, so taking the window always reads as a step over it.
func (c *Calculator) RankCandidates(team []Candidate, eligible map[string]bool, pendingWeight float64) []Ranked {
	totalFTE := 0.0
	totalDays := 0.0
	for _, m := range team {
		totalFTE += m.FTE
		totalDays += m.load()
	}
	if totalFTE <= 0 {
		return nil
	}

	var ranked []Ranked
	for _, m := range team {
		if !eligible[m.EmployeeID] {
			continue
		}

		projected := m.load() + pendingWeight
		expected := totalDays * m.FTE / totalFTE

		individual := c.IndividualScore(projected, expected)
		system := c.SystemScore(projectedLoads(team, m.EmployeeID, pendingWeight))
		bonus := math.Max(0, 100*(expected-projected)/math.Max(expected, 1))

		ranked = append(ranked, Ranked{
			Candidate:       m,
			IndividualScore: individual,
			SystemScore:     system,
			UnderLoadBonus:  bonus,
			ProjectedLoad:   projected,
			Rank: c.cfg.RankIndividual*individual +
				c.cfg.RankSystem*system +
				c.cfg.RankBonus*bonus,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if diff := a.Rank - b.Rank; math.Abs(diff) > 1e-9 {
			return diff > 0
		}
		if !a.HireDate.Equal(b.HireDate) {
			return a.HireDate.Before(b.HireDate)
		}
		if a.RunTotalDays != b.RunTotalDays {
			return a.RunTotalDays < b.RunTotalDays
		}
		return a.EmployeeID < b.EmployeeID
	})

	return ranked
}

// TeamScores computes the end-of-run metrics over final loads: per-employee
// individual scores and the system-wide score.
func (c *Calculator) TeamScores(team []Candidate) (map[string]float64, float64) {
	totalFTE := 0.0
	totalDays := 0.0
	for _, m := range team {
		totalFTE += m.FTE
		totalDays += m.load()
	}

	scores := make(map[string]float64, len(team))
	loads := make([]float64, 0, len(team))
	for _, m := range team {
		expected := 0.0
		if totalFTE > 0 {
			expected = totalDays * m.FTE / totalFTE
		}
		scores[m.EmployeeID] = c.IndividualScore(m.load(), expected)
		loads = append(loads, m.load())
	}

	return scores, c.SystemScore(loads)
}

// projectedLoads returns every team member's total duty load as it would
// stand if the given employee took the pending window
func projectedLoads(team []Candidate, selected string, pendingWeight float64) []float64 {
	loads := make([]float64, 0, len(team))
	for _, m := range team {
		l := m.totalLoad()
		if m.EmployeeID == selected {
			l += pendingWeight
		}
		loads = append(loads, l)
	}
	return loads
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}
