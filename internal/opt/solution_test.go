package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildInstance(t *testing.T, capacity int, demands ...int) *Instance {
	t.Helper()
	customers := make([]Customer, len(demands))
	for i, d := range demands {
		customers[i] = Customer{ID: i + 1, X: float64(i + 1), Y: 0, Demand: d}
	}
	inst, err := NewInstance(InstanceInput{Customers: customers, Capacity: capacity})
	require.NoError(t, err)
	return inst
}

func TestSolutionFromRoutes_FeasibleAndCosted(t *testing.T) {
	inst := buildInstance(t, 5, 6, 4)
	s, err := SolutionFromRoutes(inst, [][]Stop{
		{{Customer: 1, Qty: 5}},
		{{Customer: 1, Qty: 1}, {Customer: 2, Qty: 4}},
	})
	require.NoError(t, err)
	assert.Len(t, s.Routes(), 2)
	assert.Equal(t, 3, s.Deliveries())

	// customers at x=1 and x=2 on the axis: route 1 = 1+1, route 2 = 1+1+2
	assert.Equal(t, 2.0, s.Routes()[0].Distance())
	assert.Equal(t, 4.0, s.Routes()[1].Distance())
	assert.Equal(t, 6.0, s.Cost())
	assert.Equal(t, 5, s.Routes()[0].Load())
	assert.Equal(t, 5, s.Routes()[1].Load())
}

func TestSolutionFromRoutes_Rejections(t *testing.T) {
	inst := buildInstance(t, 5, 6, 4)
	tests := []struct {
		name   string
		routes [][]Stop
	}{
		{"overloaded route", [][]Stop{
			{{Customer: 1, Qty: 6}},
			{{Customer: 2, Qty: 4}},
		}},
		{"short delivery", [][]Stop{
			{{Customer: 1, Qty: 5}},
			{{Customer: 2, Qty: 4}},
		}},
		{"duplicate customer in route", [][]Stop{
			{{Customer: 1, Qty: 3}, {Customer: 1, Qty: 3}},
			{{Customer: 2, Qty: 4}},
		}},
		{"zero quantity", [][]Stop{
			{{Customer: 1, Qty: 5}},
			{{Customer: 1, Qty: 1}, {Customer: 2, Qty: 4}, {Customer: 2, Qty: 0}},
		}},
		{"unknown customer", [][]Stop{
			{{Customer: 9, Qty: 5}},
		}},
		{"depot as stop", [][]Stop{
			{{Customer: 0, Qty: 5}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SolutionFromRoutes(inst, tc.routes)
			assert.Error(t, err)
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	inst := buildInstance(t, 5, 3, 4)
	s, err := GreedyConstruct(inst)
	require.NoError(t, err)

	c := s.Clone()
	require.Equal(t, s.Cost(), c.Cost())
	require.Equal(t, len(s.Routes()), len(c.Routes()))

	// mutating the original must not leak into the clone
	moves := GenerateMoves(s)
	require.NotEmpty(t, moves)
	EvaluateDeltas(s, moves, 1)
	before := c.Cost()
	s.Apply(moves[0])
	assert.Equal(t, before, c.Cost())
	assert.NoError(t, c.Feasible())
}

func TestFeasibleFleetBound(t *testing.T) {
	customers := []Customer{{ID: 1, X: 1, Y: 0, Demand: 4}, {ID: 2, X: 2, Y: 0, Demand: 4}}
	inst, err := NewInstance(InstanceInput{Customers: customers, Capacity: 5, MaxVehicles: 1})
	require.NoError(t, err)
	_, err = SolutionFromRoutes(inst, [][]Stop{
		{{Customer: 1, Qty: 4}},
		{{Customer: 2, Qty: 4}},
	})
	assert.Error(t, err)
}
