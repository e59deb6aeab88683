package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolve_SingleCustomer(t *testing.T) {
	inst := buildInstance(t, 10, 7)
	s, m, err := Solve(context.Background(), inst, SolveConfig{MaxIterations: 100, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, s.Feasible())
	require.Len(t, s.Routes(), 1)
	assert.Equal(t, 2.0, s.Cost())
	assert.Equal(t, 2.0, m.BestCost)
	assert.False(t, m.Cancelled)
}

func TestSolve_ImprovesOnGreedy(t *testing.T) {
	inst := testInstance(t)
	greedy, err := GreedyConstruct(inst)
	require.NoError(t, err)

	s, m, err := Solve(context.Background(), inst, SolveConfig{MaxIterations: 500, Seed: 42})
	require.NoError(t, err)
	require.NoError(t, s.Feasible())
	assert.LessOrEqual(t, s.Cost(), greedy.Cost())
	assert.Equal(t, greedy.Cost(), m.InitialCost)
	assert.Equal(t, s.Cost(), m.BestCost)
	assert.Greater(t, m.Iterations, 0)
}

func TestSolve_DeterministicForSeed(t *testing.T) {
	inst := testInstance(t)
	cfg := SolveConfig{MaxIterations: 200, Seed: 99, Workers: 4}
	a, am, err := Solve(context.Background(), inst, cfg)
	require.NoError(t, err)
	b, bm, err := Solve(context.Background(), inst, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Cost(), b.Cost())
	assert.Equal(t, am.Iterations, bm.Iterations)
	assert.Equal(t, am.Improvements, bm.Improvements)
}

func TestSolve_MoreIterationsNeverWorse(t *testing.T) {
	inst := testInstance(t)
	short, _, err := Solve(context.Background(), inst, SolveConfig{MaxIterations: 50, Seed: 7})
	require.NoError(t, err)
	long, _, err := Solve(context.Background(), inst, SolveConfig{MaxIterations: 400, Seed: 7})
	require.NoError(t, err)
	assert.LessOrEqual(t, long.Cost(), short.Cost())
}

func TestSolve_CancelledBeforeStart(t *testing.T) {
	inst := testInstance(t)
	greedy, err := GreedyConstruct(inst)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, m, err := Solve(ctx, inst, SolveConfig{MaxIterations: 100, Seed: 1})
	require.NoError(t, err)
	assert.True(t, m.Cancelled)
	assert.Equal(t, 0, m.Iterations)
	// the pre-search construction is still returned
	assert.Equal(t, greedy.Cost(), s.Cost())
	require.NoError(t, s.Feasible())
}

func TestSolve_InfeasiblePropagates(t *testing.T) {
	customers := []Customer{{ID: 1, X: 1, Y: 0, Demand: 20}}
	inst, err := NewInstance(InstanceInput{Customers: customers, Capacity: 5, MaxVehicles: 2})
	require.NoError(t, err)
	_, _, err = Solve(context.Background(), inst, SolveConfig{MaxIterations: 10})
	require.Error(t, err)
	var inf *InfeasibleInstanceError
	assert.ErrorAs(t, err, &inf)
}

func TestSolve_FirstImprovementPolicy(t *testing.T) {
	inst := testInstance(t)
	s, _, err := Solve(context.Background(), inst, SolveConfig{MaxIterations: 200, Seed: 5, Policy: PolicyFirst})
	require.NoError(t, err)
	require.NoError(t, s.Feasible())
}

func TestSolve_ProgressSnapshots(t *testing.T) {
	inst := testInstance(t)
	var got []Snapshot
	cfg := SolveConfig{
		MaxIterations: 100,
		Seed:          3,
		ProgressEvery: 10,
		Progress:      func(sn Snapshot) { got = append(got, sn) },
	}
	_, m, err := Solve(context.Background(), inst, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, got, m.Snapshots)
	for i, sn := range got {
		assert.Equal(t, (i+1)*10, sn.Iteration)
		assert.LessOrEqual(t, sn.Best, sn.Current+costEps)
		if i > 0 {
			// best cost is monotone over the run
			assert.LessOrEqual(t, sn.Best, got[i-1].Best)
		}
	}
}

func TestRecordMetricsRoundTrip(t *testing.T) {
	RecordMetrics("t_test", "inst1", "tabu", Metrics{Iterations: 12, BestCost: 34})
	got := GetMetrics("t_test", "inst1")
	require.Contains(t, got, "tabu")
	assert.Equal(t, 12, got["tabu"].Iterations)
	assert.Equal(t, 34.0, got["tabu"].BestCost)
}
