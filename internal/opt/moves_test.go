package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recomputedCost folds route distances from scratch, bypassing the caches.
func recomputedCost(s *Solution) float64 {
	total := 0.0
	for _, r := range s.Routes() {
		prev := 0
		for _, st := range r.Stops() {
			total += s.Instance().Dist(prev, st.Customer)
			prev = st.Customer
		}
		total += s.Instance().Dist(prev, 0)
	}
	return total
}

func testInstance(t *testing.T) *Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	customers := make([]Customer, 12)
	for i := range customers {
		customers[i] = Customer{
			ID:     i + 1,
			X:      float64(rng.Intn(100)),
			Y:      float64(rng.Intn(100)),
			Demand: 1 + rng.Intn(9),
		}
	}
	inst, err := NewInstance(InstanceInput{Customers: customers, Capacity: 10})
	require.NoError(t, err)
	return inst
}

func TestDeltaMatchesAppliedCost(t *testing.T) {
	inst := testInstance(t)
	base, err := GreedyConstruct(inst)
	require.NoError(t, err)

	moves := GenerateMoves(base)
	require.NotEmpty(t, moves)
	EvaluateDeltas(base, moves, 2)

	for _, m := range moves {
		s := base.Clone()
		s.Apply(m)
		want := recomputedCost(s)
		assert.InDeltaf(t, want, s.Cost(), 1e-6,
			"%s move cache drift: cached %v, recomputed %v", m.Kind, s.Cost(), want)
		assert.InDeltaf(t, base.Cost()+m.Delta, s.Cost(), 1e-6,
			"%s move delta mismatch: predicted %v, applied %v", m.Kind, base.Cost()+m.Delta, s.Cost())
		assert.NoError(t, s.Feasible(), "%s move broke feasibility", m.Kind)
	}
}

func TestEvaluateDeltasDeterministic(t *testing.T) {
	inst := testInstance(t)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)
	moves := GenerateMoves(s)
	require.NotEmpty(t, moves)

	serial := make([]Move, len(moves))
	copy(serial, moves)
	EvaluateDeltas(s, serial, 1)
	parallel := make([]Move, len(moves))
	copy(parallel, moves)
	EvaluateDeltas(s, parallel, 4)

	for i := range serial {
		assert.Equal(t, serial[i].Delta, parallel[i].Delta, "move %d", i)
	}
}

// Unit square with the depot at a corner: d(0,1)=d(1,2)=d(2,3)=d(0,3)=10
// and the diagonals round to 14, so every placement has a distinct cost.
func TestSameRouteRelocatePlacement(t *testing.T) {
	customers := []Customer{
		{ID: 1, X: 10, Y: 0, Demand: 1},
		{ID: 2, X: 10, Y: 10, Demand: 1},
		{ID: 3, X: 0, Y: 10, Demand: 1},
	}
	inst, err := NewInstance(InstanceInput{Customers: customers, Capacity: 10})
	require.NoError(t, err)
	s, err := SolutionFromRoutes(inst, [][]Stop{
		{{Customer: 1, Qty: 1}, {Customer: 2, Qty: 1}, {Customer: 3, Qty: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, 40.0, s.Cost())

	tests := []struct {
		name  string
		move  Move
		order []int
		cost  float64
	}{
		{"first stop to tail", Move{Kind: MoveRelocate, From: 0, FromPos: 0, To: 0, ToPos: 3, Qty: 1}, []int{2, 3, 1}, 48},
		{"last stop to head", Move{Kind: MoveRelocate, From: 0, FromPos: 2, To: 0, ToPos: 0, Qty: 1}, []int{3, 1, 2}, 48},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := s.Clone()
			ms := []Move{tc.move}
			EvaluateDeltas(c, ms, 1)
			assert.InDelta(t, tc.cost-s.Cost(), ms[0].Delta, 1e-9)

			c.Apply(ms[0])
			got := make([]int, 0, 3)
			for _, st := range c.Routes()[0].Stops() {
				got = append(got, st.Customer)
			}
			assert.Equal(t, tc.order, got)
			assert.Equal(t, tc.cost, c.Cost())
		})
	}
}

func TestRelocateReverseRestoresCost(t *testing.T) {
	inst := testInstance(t)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)
	before := s.Cost()

	moves := GenerateMoves(s)
	EvaluateDeltas(s, moves, 1)
	applied, forward := 0, 0
	for _, m := range moves {
		// Same-route relocations never prune, so the reverse indices stay valid.
		if m.Kind != MoveRelocate || m.To != m.From {
			continue
		}
		c := s.Clone()
		rev, _ := c.Apply(m)
		c.Apply(rev)
		assert.InDeltaf(t, before, c.Cost(), 1e-6, "relocate %+v not reversed by %+v", m, rev)
		assert.NoError(t, c.Feasible())
		applied++
		if m.ToPos > m.FromPos {
			forward++
		}
	}
	require.Greater(t, applied, 0, "no full relocations exercised")
	require.Greater(t, forward, 0, "no forward relocations exercised")
}

func TestNoRouteVisitsCustomerTwice(t *testing.T) {
	inst := testInstance(t)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		moves := GenerateMoves(s)
		if len(moves) == 0 {
			break
		}
		EvaluateDeltas(s, moves, 1)
		s.Apply(moves[rng.Intn(len(moves))])
		require.NoError(t, s.Feasible(), "iteration %d", i)
	}
}

func TestSplitThenMergeRoundTrips(t *testing.T) {
	inst := buildInstance(t, 10, 8, 6)
	s, err := SolutionFromRoutes(inst, [][]Stop{
		{{Customer: 1, Qty: 8}},
		{{Customer: 2, Qty: 6}},
	})
	require.NoError(t, err)
	before := s.Cost()

	var split *Move
	moves := GenerateMoves(s)
	EvaluateDeltas(s, moves, 1)
	for i := range moves {
		if moves[i].Kind == MoveSplit {
			split = &moves[i]
			break
		}
	}
	require.NotNil(t, split, "expected at least one split move")

	rev, _ := s.Apply(*split)
	require.NoError(t, s.Feasible())
	assert.Equal(t, MoveMerge, rev.Kind)
	if len(s.Routes()) == 2 {
		s.Apply(rev)
		assert.InDelta(t, before, s.Cost(), 1e-6)
		assert.NoError(t, s.Feasible())
	}
}

func TestMoveKindString(t *testing.T) {
	assert.Equal(t, "relocate", MoveRelocate.String())
	assert.Equal(t, "split", MoveSplit.String())
	assert.Equal(t, "merge", MoveMerge.String())
	assert.Equal(t, "exchange", MoveExchange.String())
}
