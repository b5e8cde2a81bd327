package fairness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hired(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func TestIndividualScore(t *testing.T) {
	calc := New(DefaultConfig())

	tests := []struct {
		name     string
		load     float64
		expected float64
		want     float64
	}{
		{name: "exactly at expected", load: 10, expected: 10, want: 100},
		{name: "zero load zero expected", load: 0, expected: 0, want: 100},
		// r = 1.0, penalty = 1^1.5 * 75 = 75
		{name: "double the expected load", load: 20, expected: 10, want: 25},
		// r = -0.5, penalty = 0.5 * 60 = 30
		{name: "half the expected load", load: 5, expected: 10, want: 70},
		// penalty capped at 100
		{name: "extreme over-assignment", load: 100, expected: 10, want: 0},
		// r = (2-0.5)/max(0.5,1) = 1.5, penalty capped at 100
		{name: "denominator floors at one", load: 2, expected: 0.5, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.IndividualScore(tt.load, tt.expected), 1e-9)
		})
	}
}

func TestIndividualScoreMonotonicity(t *testing.T) {
	calc := New(DefaultConfig())

	// past the expectation, more load never scores better
	prev := calc.IndividualScore(10, 10)
	for load := 11.0; load <= 40; load++ {
		score := calc.IndividualScore(load, 10)
		assert.LessOrEqual(t, score, prev, "load %v", load)
		prev = score
	}
}

func TestSystemScore(t *testing.T) {
	calc := New(DefaultConfig())

	t.Run("equal loads score 100", func(t *testing.T) {
		assert.InDelta(t, 100.0, calc.SystemScore([]float64{7, 7, 7, 7}), 1e-9)
	})

	t.Run("empty team scores 100", func(t *testing.T) {
		assert.InDelta(t, 100.0, calc.SystemScore(nil), 1e-9)
	})

	t.Run("spread lowers the score", func(t *testing.T) {
		balanced := calc.SystemScore([]float64{10, 10, 10})
		skewed := calc.SystemScore([]float64{0, 10, 20})
		assert.Greater(t, balanced, skewed)
	})

	t.Run("score floors at zero", func(t *testing.T) {
		assert.Equal(t, 0.0, calc.SystemScore([]float64{0, 1000}))
	})
}

func TestSelectPrefersLeastLoaded(t *testing.T) {
	calc := New(DefaultConfig())

	team := []Candidate{
		{EmployeeID: "e1", FTE: 1, HireDate: hired(2020, 1, 1), HistoryDays: 15},
		{EmployeeID: "e2", FTE: 1, HireDate: hired(2021, 1, 1), HistoryDays: 5},
		{EmployeeID: "e3", FTE: 1, HireDate: hired(2022, 1, 1), HistoryDays: 10},
	}
	eligible := map[string]bool{"e1": true, "e2": true, "e3": true}

	winner, ok := calc.Select(team, eligible, 5)
	require.True(t, ok)
	assert.Equal(t, "e2", winner.EmployeeID)
}

func TestSelectRespectsEligibility(t *testing.T) {
	calc := New(DefaultConfig())

	team := []Candidate{
		{EmployeeID: "e1", FTE: 1, HireDate: hired(2020, 1, 1), HistoryDays: 0},
		{EmployeeID: "e2", FTE: 1, HireDate: hired(2021, 1, 1), HistoryDays: 20},
	}

	t.Run("least loaded but ineligible loses", func(t *testing.T) {
		winner, ok := calc.Select(team, map[string]bool{"e2": true}, 5)
		require.True(t, ok)
		assert.Equal(t, "e2", winner.EmployeeID)
	})

	t.Run("nobody eligible", func(t *testing.T) {
		_, ok := calc.Select(team, map[string]bool{}, 5)
		assert.False(t, ok)
	})

	t.Run("zero total FTE", func(t *testing.T) {
		zeroTeam := []Candidate{{EmployeeID: "e1", FTE: 0}}
		_, ok := calc.Select(zeroTeam, map[string]bool{"e1": true}, 5)
		assert.False(t, ok)
	})
}

func TestSelectPartTimeExpectation(t *testing.T) {
	calc := New(DefaultConfig())

	// the half-time employee has half the load of the full-timer; both sit
	// exactly at their FTE-scaled expectation, so the pending assignment
	// should go to whoever deviates less after taking it
	team := []Candidate{
		{EmployeeID: "full", FTE: 1.0, HireDate: hired(2020, 1, 1), HistoryDays: 20},
		{EmployeeID: "half", FTE: 0.5, HireDate: hired(2020, 1, 1), HistoryDays: 10},
	}
	eligible := map[string]bool{"full": true, "half": true}

	winner, ok := calc.Select(team, eligible, 5)
	require.True(t, ok)
	assert.Equal(t, "full", winner.EmployeeID,
		"the full-timer absorbs extra load with a smaller relative deviation")
}

func TestSelectFavorsTheRestedOverTheRecentlyAssigned(t *testing.T) {
	calc := New(DefaultConfig())

	// e2 just took a window this run and sits slightly over expectation,
	// e3 sits slightly under it; e3 must win. The pending weight only
	// counts toward the projections, so it cannot shrink e2's overshoot
	// into looking fairer than e3's shortfall.
	team := []Candidate{
		{EmployeeID: "e1", FTE: 1, HireDate: hired(2020, 1, 1), HistoryDays: 20, HistoryTotalDays: 20},
		{EmployeeID: "e2", FTE: 1, HireDate: hired(2020, 1, 1), HistoryDays: 5, RunDays: 5, HistoryTotalDays: 5, RunTotalDays: 5},
		{EmployeeID: "e3", FTE: 1, HireDate: hired(2020, 1, 1), HistoryDays: 5, HistoryTotalDays: 5},
	}
	eligible := map[string]bool{"e1": true, "e2": true, "e3": true}

	ranked := calc.RankCandidates(team, eligible, 5)
	require.Len(t, ranked, 3)
	assert.Equal(t, "e3", ranked[0].EmployeeID)
	assert.Equal(t, "e2", ranked[1].EmployeeID)

	// the committed 35 days split three ways: e3 projects to 10 against an
	// expectation of 11.67
	assert.InDelta(t, 10.0, ranked[0].ProjectedLoad, 1e-9)
	assert.Greater(t, ranked[0].IndividualScore, ranked[1].IndividualScore)
}

func TestSelectSpreadsLoadAcrossDutyTypes(t *testing.T) {
	calc := New(DefaultConfig())

	// neither has done the ranked type, but "carrying" already holds a
	// block of another duty this run; the system-wide term steers the
	// window to "free" even though "carrying" was hired earlier
	team := []Candidate{
		{EmployeeID: "carrying", FTE: 1, HireDate: hired(2020, 1, 1), RunTotalDays: 5},
		{EmployeeID: "free", FTE: 1, HireDate: hired(2020, 1, 2)},
	}
	eligible := map[string]bool{"carrying": true, "free": true}

	winner, ok := calc.Select(team, eligible, 7)
	require.True(t, ok)
	assert.Equal(t, "free", winner.EmployeeID)
}

func TestRankCandidatesTieBreaks(t *testing.T) {
	calc := New(DefaultConfig())

	t.Run("earlier hire date wins", func(t *testing.T) {
		team := []Candidate{
			{EmployeeID: "young", FTE: 1, HireDate: hired(2024, 6, 1)},
			{EmployeeID: "old", FTE: 1, HireDate: hired(2019, 6, 1)},
		}
		ranked := calc.RankCandidates(team, map[string]bool{"young": true, "old": true}, 5)
		require.Len(t, ranked, 2)
		assert.Equal(t, "old", ranked[0].EmployeeID)
	})

	t.Run("lower run total wins when hire dates match", func(t *testing.T) {
		// equal total loads, so the system term ties as well; only the
		// run-total tie-break separates them
		d := hired(2020, 1, 1)
		team := []Candidate{
			{EmployeeID: "busy", FTE: 1, HireDate: d, RunTotalDays: 7},
			{EmployeeID: "idle", FTE: 1, HireDate: d, HistoryTotalDays: 7},
		}
		ranked := calc.RankCandidates(team, map[string]bool{"busy": true, "idle": true}, 5)
		require.Len(t, ranked, 2)
		assert.Equal(t, "idle", ranked[0].EmployeeID)
	})

	t.Run("employee id is the final tie-break", func(t *testing.T) {
		d := hired(2020, 1, 1)
		team := []Candidate{
			{EmployeeID: "b", FTE: 1, HireDate: d},
			{EmployeeID: "a", FTE: 1, HireDate: d},
		}
		ranked := calc.RankCandidates(team, map[string]bool{"a": true, "b": true}, 5)
		require.Len(t, ranked, 2)
		assert.Equal(t, "a", ranked[0].EmployeeID)
	})
}

func TestRankCandidatesDeterminism(t *testing.T) {
	calc := New(DefaultConfig())

	team := []Candidate{
		{EmployeeID: "e1", FTE: 1, HireDate: hired(2020, 1, 1), HistoryDays: 3},
		{EmployeeID: "e2", FTE: 0.8, HireDate: hired(2021, 3, 1), HistoryDays: 7},
		{EmployeeID: "e3", FTE: 1, HireDate: hired(2022, 5, 1), HistoryDays: 5},
		{EmployeeID: "e4", FTE: 0.6, HireDate: hired(2022, 5, 1), HistoryDays: 5},
	}
	eligible := map[string]bool{"e1": true, "e2": true, "e3": true, "e4": true}

	first := calc.RankCandidates(team, eligible, 7)
	for i := 0; i < 20; i++ {
		again := calc.RankCandidates(team, eligible, 7)
		require.Equal(t, first, again, "iteration %d", i)
	}
}

func TestTeamScores(t *testing.T) {
	calc := New(DefaultConfig())

	t.Run("balanced team", func(t *testing.T) {
		team := []Candidate{
			{EmployeeID: "e1", FTE: 1, HistoryDays: 5, RunDays: 7},
			{EmployeeID: "e2", FTE: 1, HistoryDays: 7, RunDays: 5},
		}
		scores, system := calc.TeamScores(team)
		assert.InDelta(t, 100.0, scores["e1"], 1e-9)
		assert.InDelta(t, 100.0, scores["e2"], 1e-9)
		assert.InDelta(t, 100.0, system, 1e-9)
	})

	t.Run("empty team", func(t *testing.T) {
		scores, system := calc.TeamScores(nil)
		assert.Empty(t, scores)
		assert.InDelta(t, 100.0, system, 1e-9)
	})

	t.Run("skew shows in both scores", func(t *testing.T) {
		team := []Candidate{
			{EmployeeID: "loaded", FTE: 1, RunDays: 24},
			{EmployeeID: "spared", FTE: 1, RunDays: 0},
		}
		scores, system := calc.TeamScores(team)
		assert.Less(t, scores["loaded"], 100.0)
		assert.Less(t, scores["spared"], 100.0)
		assert.Less(t, system, 100.0)
	})
}

func TestConfigKnobs(t *testing.T) {
	t.Run("under penalty factor", func(t *testing.T) {
		soft := DefaultConfig()
		soft.UnderPenaltyFactor = 10
		// r = -0.5 so penalty is 0.5 * factor
		assert.InDelta(t, 95.0, New(soft).IndividualScore(5, 10), 1e-9)
		assert.InDelta(t, 70.0, New(DefaultConfig()).IndividualScore(5, 10), 1e-9)
	})

	t.Run("scale amplifies spread", func(t *testing.T) {
		loads := []float64{0, 10}
		gentle := DefaultConfig()
		harsh := DefaultConfig()
		harsh.Scale = 10
		assert.Greater(t, New(gentle).SystemScore(loads), New(harsh).SystemScore(loads))
	})
}
