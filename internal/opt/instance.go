// Package opt implements the SD-VRP tabu search engine: instance and solution
// models, the neighborhood move generator, and the search driver.
package opt

import "math"

// Customer is one delivery point. Immutable once the instance is built.
// ID is 1-based; node index 0 is always the depot.
type Customer struct {
	ID     int
	X, Y   float64
	Demand int
}

// Instance is the immutable problem description shared by all solutions.
type Instance struct {
	DepotX, DepotY float64
	Customers      []Customer
	Capacity       int
	MaxVehicles    int // 0 = unbounded fleet
	MaxSplits      int // 0 = unbounded visits per customer

	dist [][]float64 // node x node, index 0 = depot
}

// InstanceInput is the logical input schema. Matrix is optional; when nil the
// matrix is computed from coordinates.
type InstanceInput struct {
	DepotX, DepotY float64
	Customers      []Customer
	Capacity       int
	MaxVehicles    int
	MaxSplits      int
	Matrix         [][]float64
}

// roundedEuclidean matches the historical instance convention:
// distances are Euclidean rounded to the nearest integer.
func roundedEuclidean(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Floor(math.Sqrt(dx*dx+dy*dy) + 0.5)
}

// NewInstance validates the input and memoizes the distance matrix.
func NewInstance(in InstanceInput) (*Instance, error) {
	if in.Capacity <= 0 {
		return nil, malformed("capacity", "must be positive, got %d", in.Capacity)
	}
	if len(in.Customers) == 0 {
		return nil, malformed("customers", "at least one customer required")
	}
	if in.MaxVehicles < 0 {
		return nil, malformed("maxVehicles", "must be >= 0, got %d", in.MaxVehicles)
	}
	if in.MaxSplits < 0 {
		return nil, malformed("maxSplits", "must be >= 0, got %d", in.MaxSplits)
	}
	seen := map[int]bool{}
	for i, c := range in.Customers {
		if c.ID != i+1 {
			return nil, malformed("customers", "customer at position %d has id %d, want %d", i, c.ID, i+1)
		}
		if seen[c.ID] {
			return nil, malformed("customers", "duplicate customer id %d", c.ID)
		}
		seen[c.ID] = true
		if c.Demand < 0 {
			return nil, malformed("demand", "customer %d has negative demand %d", c.ID, c.Demand)
		}
		if in.MaxSplits > 0 && c.Demand > in.Capacity*in.MaxSplits {
			return nil, malformed("demand", "customer %d demand %d exceeds capacity %d x maxSplits %d", c.ID, c.Demand, in.Capacity, in.MaxSplits)
		}
	}
	n := len(in.Customers) + 1
	inst := &Instance{
		DepotX:      in.DepotX,
		DepotY:      in.DepotY,
		Customers:   append([]Customer(nil), in.Customers...),
		Capacity:    in.Capacity,
		MaxVehicles: in.MaxVehicles,
		MaxSplits:   in.MaxSplits,
	}
	if in.Matrix != nil {
		if len(in.Matrix) != n {
			return nil, malformed("matrix", "row count %d, want %d (customers + depot)", len(in.Matrix), n)
		}
		m := make([][]float64, n)
		for i := range in.Matrix {
			if len(in.Matrix[i]) != n {
				return nil, malformed("matrix", "row %d has %d columns, want %d", i, len(in.Matrix[i]), n)
			}
			m[i] = append([]float64(nil), in.Matrix[i]...)
		}
		for i := 0; i < n; i++ {
			if m[i][i] != 0 {
				return nil, malformed("matrix", "diagonal entry (%d,%d) is %v, want 0", i, i, m[i][i])
			}
			for j := i + 1; j < n; j++ {
				if m[i][j] != m[j][i] {
					return nil, malformed("matrix", "asymmetric at (%d,%d): %v vs %v", i, j, m[i][j], m[j][i])
				}
				if m[i][j] < 0 {
					return nil, malformed("matrix", "negative distance at (%d,%d): %v", i, j, m[i][j])
				}
			}
		}
		inst.dist = m
	} else {
		inst.dist = computeMatrix(in.DepotX, in.DepotY, in.Customers)
	}
	return inst, nil
}

func computeMatrix(dx, dy float64, customers []Customer) [][]float64 {
	n := len(customers) + 1
	xs := make([]float64, n)
	ys := make([]float64, n)
	xs[0], ys[0] = dx, dy
	for i, c := range customers {
		xs[i+1], ys[i+1] = c.X, c.Y
	}
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := roundedEuclidean(xs[i], ys[i], xs[j], ys[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}

// NumNodes is customer count plus the depot.
func (in *Instance) NumNodes() int { return len(in.Customers) + 1 }

// Dist returns the memoized distance between two node indices (0 = depot).
func (in *Instance) Dist(i, j int) float64 { return in.dist[i][j] }

// Demand returns the demand of the customer at node index c (1-based).
func (in *Instance) Demand(c int) int { return in.Customers[c-1].Demand }

// TotalDemand is the sum of all customer demands.
func (in *Instance) TotalDemand() int {
	total := 0
	for _, c := range in.Customers {
		total += c.Demand
	}
	return total
}
