package opt

import "math"

// GreedyConstruct builds the initial feasible solution: repeatedly insert the
// (customer, remaining-demand) pair with the smallest insertion-cost increase
// into a route with spare capacity, splitting across a new route whenever no
// existing route can take even a partial quantity. Fails with
// InfeasibleInstanceError when demand cannot be covered under the capacity
// and fleet configuration.
func GreedyConstruct(inst *Instance) (*Solution, error) {
	if inst.MaxVehicles > 0 {
		if td := inst.TotalDemand(); td > inst.Capacity*inst.MaxVehicles {
			return nil, infeasible("total demand %d exceeds fleet capacity %d vehicles x %d", td, inst.MaxVehicles, inst.Capacity)
		}
	}

	s := NewSolution(inst)
	remaining := make([]int, inst.NumNodes())
	left := 0
	for c := 1; c < inst.NumNodes(); c++ {
		remaining[c] = inst.Demand(c)
		left += remaining[c]
	}
	visits := make([]int, inst.NumNodes())

	for left > 0 {
		type option struct {
			customer int
			route    *Route // nil = open a new route
			pos      int
			qty      int
			delta    float64
		}
		best := option{delta: math.Inf(1)}
		better := func(o option) bool {
			if o.delta != best.delta {
				return o.delta < best.delta
			}
			// ties broken by the shorter depot leg, then by customer id
			if da, db := inst.Dist(0, o.customer), inst.Dist(0, best.customer); da != db {
				return da < db
			}
			return o.customer < best.customer
		}

		for c := 1; c < inst.NumNodes(); c++ {
			if remaining[c] == 0 {
				continue
			}
			// A later stop can carry at most Capacity, so this stop must
			// leave no more behind than the remaining split allowance covers.
			minQty := 0
			if inst.MaxSplits > 0 {
				splitsLeft := inst.MaxSplits - visits[c]
				if splitsLeft <= 0 {
					continue
				}
				minQty = remaining[c] - inst.Capacity*(splitsLeft-1)
			}
			for _, r := range s.routes {
				if r.indexOf(c) >= 0 {
					continue
				}
				spare := inst.Capacity - r.load
				if spare <= 0 {
					continue
				}
				qty := remaining[c]
				if qty > spare {
					qty = spare
				}
				if qty < minQty {
					continue
				}
				for pos := 0; pos <= len(r.stops); pos++ {
					o := option{customer: c, route: r, pos: pos, qty: qty, delta: s.insertionCost(r, pos, c)}
					if better(o) {
						best = o
					}
				}
			}
			if inst.MaxVehicles == 0 || len(s.routes) < inst.MaxVehicles {
				qty := remaining[c]
				if qty > inst.Capacity {
					qty = inst.Capacity
				}
				if qty >= minQty {
					o := option{customer: c, route: nil, qty: qty, delta: 2 * inst.Dist(0, c)}
					if better(o) {
						best = o
					}
				}
			}
		}

		if math.IsInf(best.delta, 1) {
			return nil, infeasible("no route can accept remaining demand (%d undelivered) with capacity %d and fleet size %d", left, inst.Capacity, inst.MaxVehicles)
		}

		r := best.route
		if r == nil {
			r = s.newRoute()
		}
		r.stops = append(r.stops[:best.pos], append([]Stop{{Customer: best.customer, Qty: best.qty}}, r.stops[best.pos:]...)...)
		s.refresh(r)
		remaining[best.customer] -= best.qty
		visits[best.customer]++
		left -= best.qty
	}
	return s, nil
}
