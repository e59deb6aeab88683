package opt

import "fmt"

// Stop is one delivery: quantity Qty handed to the customer at node index
// Customer (1-based; 0 is the depot and never appears as a stop).
type Stop struct {
	Customer int
	Qty      int
}

// Route is an ordered stop sequence starting and ending at the depot.
// Load and distance are cached and maintained incrementally by move
// application; a route is owned by exactly one Solution.
type Route struct {
	id    uint64
	stops []Stop
	load  int
	dist  float64
}

// Stops returns the route's stop sequence. Callers must not mutate it.
func (r *Route) Stops() []Stop { return r.stops }

// Load is the cached sum of stop quantities.
func (r *Route) Load() int { return r.load }

// Distance is the cached route distance including both depot legs.
func (r *Route) Distance() float64 { return r.dist }

// at maps a stop position to a node index; positions outside the stop range
// resolve to the depot.
func (r *Route) at(pos int) int {
	if pos < 0 || pos >= len(r.stops) {
		return 0
	}
	return r.stops[pos].Customer
}

// indexOf returns the position of the stop serving customer c, or -1.
func (r *Route) indexOf(c int) int {
	for i, s := range r.stops {
		if s.Customer == c {
			return i
		}
	}
	return -1
}

func (r *Route) recompute(inst *Instance) {
	load := 0
	dist := 0.0
	prev := 0
	for _, s := range r.stops {
		load += s.Qty
		dist += inst.Dist(prev, s.Customer)
		prev = s.Customer
	}
	dist += inst.Dist(prev, 0)
	r.load = load
	r.dist = dist
}

// Solution is a set of routes with a cached total cost. All mutation goes
// through move application so load/distance caches stay consistent.
type Solution struct {
	inst   *Instance
	routes []*Route
	cost   float64
	nextID uint64
}

// NewSolution returns an empty solution over inst.
func NewSolution(inst *Instance) *Solution {
	return &Solution{inst: inst}
}

// Instance returns the immutable problem this solution belongs to.
func (s *Solution) Instance() *Instance { return s.inst }

// Routes returns the route set. Callers must not mutate routes directly.
func (s *Solution) Routes() []*Route { return s.routes }

// Cost returns the cached total distance across all routes.
func (s *Solution) Cost() float64 { return s.cost }

// newRoute appends an empty route with a fresh stable id.
func (s *Solution) newRoute() *Route {
	s.nextID++
	r := &Route{id: s.nextID}
	s.routes = append(s.routes, r)
	return r
}

// refresh recomputes the cached distance and load of one touched route and
// folds the difference into the cached total, keeping move application near
// O(route length).
func (s *Solution) refresh(r *Route) {
	old := r.dist
	r.recompute(s.inst)
	s.cost += r.dist - old
}

// prune drops routes left without stops after a move.
func (s *Solution) prune() {
	out := s.routes[:0]
	for _, r := range s.routes {
		if len(r.stops) > 0 {
			out = append(out, r)
		}
	}
	s.routes = out
}

// Clone deep-copies the solution. The clone shares only the immutable
// instance with the original; mutating one never affects the other.
func (s *Solution) Clone() *Solution {
	c := &Solution{inst: s.inst, cost: s.cost, nextID: s.nextID}
	c.routes = make([]*Route, len(s.routes))
	for i, r := range s.routes {
		c.routes[i] = &Route{
			id:    r.id,
			stops: append([]Stop(nil), r.stops...),
			load:  r.load,
			dist:  r.dist,
		}
	}
	return c
}

// Feasible verifies the solution invariants: every customer's demand is met
// exactly, no route exceeds capacity, no route is empty, every quantity is
// positive, and no route visits a customer twice. Used as a correctness guard
// in tests and on externally supplied solutions, not on the search hot path.
func (s *Solution) Feasible() error {
	delivered := make([]int, s.inst.NumNodes())
	for ri, r := range s.routes {
		if len(r.stops) == 0 {
			return fmt.Errorf("route %d is empty", ri)
		}
		load := 0
		seen := map[int]bool{}
		for _, st := range r.stops {
			if st.Customer < 1 || st.Customer >= s.inst.NumNodes() {
				return fmt.Errorf("route %d references unknown customer %d", ri, st.Customer)
			}
			if st.Qty <= 0 {
				return fmt.Errorf("route %d has non-positive quantity %d for customer %d", ri, st.Qty, st.Customer)
			}
			if seen[st.Customer] {
				return fmt.Errorf("route %d visits customer %d twice", ri, st.Customer)
			}
			seen[st.Customer] = true
			load += st.Qty
			delivered[st.Customer] += st.Qty
		}
		if load > s.inst.Capacity {
			return fmt.Errorf("route %d load %d exceeds capacity %d", ri, load, s.inst.Capacity)
		}
	}
	for c := 1; c < s.inst.NumNodes(); c++ {
		if delivered[c] != s.inst.Demand(c) {
			return fmt.Errorf("customer %d delivered %d, demand %d", c, delivered[c], s.inst.Demand(c))
		}
	}
	if s.inst.MaxVehicles > 0 && len(s.routes) > s.inst.MaxVehicles {
		return fmt.Errorf("%d routes exceed fleet size %d", len(s.routes), s.inst.MaxVehicles)
	}
	return nil
}

// Deliveries counts individual stops across all routes.
func (s *Solution) Deliveries() int {
	n := 0
	for _, r := range s.routes {
		n += len(r.stops)
	}
	return n
}

// SolutionFromRoutes builds a solution from explicit stop sequences and
// verifies it against the instance invariants. Used for solutions produced
// outside the search.
func SolutionFromRoutes(inst *Instance, routes [][]Stop) (*Solution, error) {
	s := NewSolution(inst)
	for ri, stops := range routes {
		// Customer indices must be checked before costing the route; Dist
		// would index past the matrix otherwise.
		for _, st := range stops {
			if st.Customer < 1 || st.Customer >= inst.NumNodes() {
				return nil, fmt.Errorf("route %d references unknown customer %d", ri, st.Customer)
			}
		}
		r := s.newRoute()
		r.stops = append([]Stop(nil), stops...)
		s.refresh(r)
	}
	if err := s.Feasible(); err != nil {
		return nil, err
	}
	return s, nil
}
