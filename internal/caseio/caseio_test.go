package caseio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdvrp/internal/opt"
)

const sampleCase = "3 10\n4 5 6\n0 0\n1 0\n0 1\n1 1\n"

func TestParseInstance(t *testing.T) {
	in, err := ParseInstance(strings.NewReader(sampleCase))
	require.NoError(t, err)
	assert.Equal(t, 10, in.Capacity)
	assert.Equal(t, 0.0, in.DepotX)
	require.Len(t, in.Customers, 3)
	assert.Equal(t, opt.Customer{ID: 1, X: 1, Y: 0, Demand: 4}, in.Customers[0])
	assert.Equal(t, opt.Customer{ID: 3, X: 1, Y: 1, Demand: 6}, in.Customers[2])
}

func TestParseInstance_Rejections(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"bad header", "x 10\n1\n0 0\n1 1\n"},
		{"demand count mismatch", "2 10\n4\n0 0\n1 0\n0 1\n"},
		{"missing coordinates", "2 10\n4 5\n0 0\n1 0\n"},
		{"bad coordinate", "1 10\n4\n0 0\na b\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseInstance(strings.NewReader(tc.text))
			assert.Error(t, err)
		})
	}
}

func TestRenderInstanceRoundTrip(t *testing.T) {
	in, err := ParseInstance(strings.NewReader(sampleCase))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, RenderInstance(&buf, in))
	assert.Equal(t, sampleCase, buf.String())
}

func TestRenderAndParseSolution(t *testing.T) {
	inst, err := opt.NewInstance(opt.InstanceInput{
		Customers: []opt.Customer{
			{ID: 1, X: 3, Y: 4, Demand: 6},
			{ID: 2, X: -3, Y: 4, Demand: 4},
		},
		Capacity: 5,
	})
	require.NoError(t, err)
	s, err := opt.SolutionFromRoutes(inst, [][]opt.Stop{
		{{Customer: 1, Qty: 5}},
		{{Customer: 1, Qty: 1}, {Customer: 2, Qty: 4}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderSolution(&buf, s))
	text := buf.String()
	assert.True(t, strings.HasPrefix(text, "Total cost:"), text)
	assert.Contains(t, text, "Route 1: 0 - 1 (5) - 0")
	assert.Contains(t, text, "Route 2: 0 - 1 (1) - 2 (4) - 0")
	assert.Contains(t, text, "Number of deliveries: 3")

	parsed, err := ParseSolution(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, s.Cost(), parsed.Cost)
	require.Len(t, parsed.Routes, 2)
	assert.Equal(t, []opt.Stop{{Customer: 1, Qty: 5}}, parsed.Routes[0].Stops)
	assert.Equal(t, []opt.Stop{{Customer: 1, Qty: 1}, {Customer: 2, Qty: 4}}, parsed.Routes[1].Stops)
}
