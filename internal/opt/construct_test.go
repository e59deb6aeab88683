package opt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreedyConstruct_Feasible(t *testing.T) {
	inst := testInstance(t)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)
	require.NoError(t, s.Feasible())
	assert.Equal(t, s.Cost(), recomputedCost(s))
}

func TestGreedyConstruct_SplitsOversizedDemand(t *testing.T) {
	// demand 6 at capacity 5 forces a split across two visits
	inst := buildInstance(t, 5, 6, 4)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)
	require.NoError(t, s.Feasible())

	visits := 0
	for _, r := range s.Routes() {
		if r.indexOf(1) >= 0 {
			visits++
		}
	}
	assert.GreaterOrEqual(t, visits, 2, "customer 1 demand 6 needs at least two visits")
}

func TestGreedyConstruct_SingleCustomer(t *testing.T) {
	inst := buildInstance(t, 10, 7)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)
	require.Len(t, s.Routes(), 1)
	require.Len(t, s.Routes()[0].Stops(), 1)
	assert.Equal(t, Stop{Customer: 1, Qty: 7}, s.Routes()[0].Stops()[0])
	// out and back to (1,0)
	assert.Equal(t, 2.0, s.Cost())
}

func TestGreedyConstruct_InfeasibleFleet(t *testing.T) {
	customers := []Customer{{ID: 1, X: 1, Y: 0, Demand: 9}}
	inst, err := NewInstance(InstanceInput{Customers: customers, Capacity: 5, MaxVehicles: 1})
	require.NoError(t, err)
	_, err = GreedyConstruct(inst)
	require.Error(t, err)
	var inf *InfeasibleInstanceError
	assert.True(t, errors.As(err, &inf), "want InfeasibleInstanceError, got %T", err)
}

func TestGreedyConstruct_RespectsMaxSplits(t *testing.T) {
	// demand 9 at capacity 5 with two splits allowed: must be exactly 5+4 or 4+5
	customers := []Customer{{ID: 1, X: 1, Y: 0, Demand: 9}}
	inst, err := NewInstance(InstanceInput{Customers: customers, Capacity: 5, MaxSplits: 2})
	require.NoError(t, err)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)
	require.NoError(t, s.Feasible())

	visits := 0
	for _, r := range s.Routes() {
		if i := r.indexOf(1); i >= 0 {
			visits++
			assert.GreaterOrEqual(t, r.Stops()[i].Qty, 4)
		}
	}
	assert.Equal(t, 2, visits)
}

func TestGreedyConstruct_ZeroDemandCustomer(t *testing.T) {
	inst := buildInstance(t, 5, 0, 4)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)
	require.NoError(t, s.Feasible())
	for _, r := range s.Routes() {
		assert.Less(t, r.indexOf(1), 0, "zero-demand customer must not be visited")
	}
}
