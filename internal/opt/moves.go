package opt

import (
	"runtime"
	"sync"
)

// MoveKind tags the four neighborhood move families.
type MoveKind int

const (
	MoveRelocate MoveKind = iota
	MoveSplit
	MoveMerge
	MoveExchange
)

func (k MoveKind) String() string {
	switch k {
	case MoveRelocate:
		return "relocate"
	case MoveSplit:
		return "split"
	case MoveMerge:
		return "merge"
	case MoveExchange:
		return "exchange"
	}
	return "unknown"
}

// Move is one candidate local transformation. Route fields are indices into
// the solution the move was generated from; a move is only valid against that
// exact solution state.
//
//   - Relocate: stop From/FromPos moves to To/ToPos. Qty < the stop quantity
//     marks a split relocate (only Qty moves, the remainder stays).
//   - Split: Qty is carved off stop From/FromPos into To/ToPos, or into a
//     fresh route when To == -1.
//   - Merge: stop From/FromPos is absorbed into the stop at To/ToPos, which
//     serves the same customer.
//   - Exchange: stops From/FromPos and To/ToPos swap routes.
type Move struct {
	Kind    MoveKind
	From    int
	FromPos int
	To      int
	ToPos   int
	Qty     int
	Delta   float64
}

// moveSig identifies a move attribute in the tabu list: customer plus the
// stable id of the route it would (re)enter. Route 0 means "any route" and is
// used for the split/merge families, which are inverses of each other.
type moveSig struct {
	kind     MoveKind
	customer int
	route    uint64
}

// removalGain is the distance saved by deleting stop i from r (always >= 0
// under the triangle inequality; rounded matrices may make it slightly
// negative, which is fine).
func (s *Solution) removalGain(r *Route, i int) float64 {
	a, b, c := r.at(i-1), r.at(i), r.at(i+1)
	return s.inst.Dist(a, b) + s.inst.Dist(b, c) - s.inst.Dist(a, c)
}

// insertionCost is the distance added by inserting customer c before
// position pos of r.
func (s *Solution) insertionCost(r *Route, pos, c int) float64 {
	u, v := r.at(pos-1), r.at(pos)
	return s.inst.Dist(u, c) + s.inst.Dist(c, v) - s.inst.Dist(u, v)
}

// sameRouteRelocateDelta evaluates moving stop i of r between the stops at
// positions pos-1 and pos. Application removes stop i first, which shifts
// later positions down by one, so the stop lands exactly between those two
// neighbors; pos == i and pos == i+1 are the no-op slots and never generated.
func (s *Solution) sameRouteRelocateDelta(r *Route, i, pos int) float64 {
	b := r.at(i)
	u, v := r.at(pos-1), r.at(pos)
	add := s.inst.Dist(u, b) + s.inst.Dist(b, v) - s.inst.Dist(u, v)
	return add - s.removalGain(r, i)
}

// visitCounts returns how many routes currently serve each customer.
func (s *Solution) visitCounts() []int {
	counts := make([]int, s.inst.NumNodes())
	for _, r := range s.routes {
		for _, st := range r.stops {
			counts[st.Customer]++
		}
	}
	return counts
}

// GenerateMoves enumerates the full candidate set over the current solution.
// Every candidate preserves the coverage invariant by construction; capacity
// preconditions are checked here so rejected shapes are simply never emitted.
// Deltas are left zero; EvaluateDeltas fills them in.
func GenerateMoves(s *Solution) []Move {
	var out []Move
	q := s.inst.Capacity
	visits := s.visitCounts()
	canSplit := func(c int) bool {
		return s.inst.MaxSplits == 0 || visits[c] < s.inst.MaxSplits
	}
	canOpenRoute := s.inst.MaxVehicles == 0 || len(s.routes) < s.inst.MaxVehicles

	for ai, a := range s.routes {
		for i, st := range a.stops {
			c := st.Customer

			// Relocate within the same route.
			for pos := 0; pos <= len(a.stops); pos++ {
				if pos == i || pos == i+1 {
					continue
				}
				out = append(out, Move{Kind: MoveRelocate, From: ai, FromPos: i, To: ai, ToPos: pos, Qty: st.Qty})
			}

			for bi, b := range s.routes {
				if bi == ai || b.indexOf(c) >= 0 {
					continue
				}
				spare := q - b.load
				if spare <= 0 {
					continue
				}

				// Relocate, degrading to a split relocate when the full
				// quantity does not fit.
				moved := st.Qty
				if moved > spare {
					moved = spare
				}
				if moved == st.Qty || canSplit(c) {
					for pos := 0; pos <= len(b.stops); pos++ {
						out = append(out, Move{Kind: MoveRelocate, From: ai, FromPos: i, To: bi, ToPos: pos, Qty: moved})
					}
				}

				// Split: carve off half into another route.
				if half := st.Qty / 2; half >= 1 && half <= spare && half < st.Qty && canSplit(c) {
					for pos := 0; pos <= len(b.stops); pos++ {
						out = append(out, Move{Kind: MoveSplit, From: ai, FromPos: i, To: bi, ToPos: pos, Qty: half})
					}
				}

				// Merge: absorb this stop into route b's stop for the same
				// customer. Rejected (not degraded) when it does not fit.
			}

			// Split into a fresh route.
			if half := st.Qty / 2; half >= 1 && half < st.Qty && canSplit(c) && canOpenRoute {
				out = append(out, Move{Kind: MoveSplit, From: ai, FromPos: i, To: -1, ToPos: 0, Qty: half})
			}
		}
	}

	// Merge pairs: customer served by two routes, combined where capacity
	// allows.
	for ai, a := range s.routes {
		for i, st := range a.stops {
			c := st.Customer
			if visits[c] < 2 {
				continue
			}
			for bi, b := range s.routes {
				if bi == ai {
					continue
				}
				j := b.indexOf(c)
				if j < 0 {
					continue
				}
				if b.load+st.Qty > q {
					continue
				}
				out = append(out, Move{Kind: MoveMerge, From: ai, FromPos: i, To: bi, ToPos: j, Qty: st.Qty})
			}
		}
	}

	// Exchange stops between route pairs.
	for ai := 0; ai < len(s.routes); ai++ {
		a := s.routes[ai]
		for bi := ai + 1; bi < len(s.routes); bi++ {
			b := s.routes[bi]
			for i, sa := range a.stops {
				for j, sb := range b.stops {
					if sa.Customer == sb.Customer {
						continue
					}
					if b.indexOf(sa.Customer) >= 0 || a.indexOf(sb.Customer) >= 0 {
						continue
					}
					if a.load-sa.Qty+sb.Qty > q || b.load-sb.Qty+sa.Qty > q {
						continue
					}
					out = append(out, Move{Kind: MoveExchange, From: ai, FromPos: i, To: bi, ToPos: j, Qty: 0})
				}
			}
		}
	}
	return out
}

// moveDelta computes the cost change of m from the affected legs only. Pure
// read on s; safe to call concurrently from evaluation workers.
func (s *Solution) moveDelta(m Move) float64 {
	switch m.Kind {
	case MoveRelocate:
		a := s.routes[m.From]
		if m.To == m.From {
			return s.sameRouteRelocateDelta(a, m.FromPos, m.ToPos)
		}
		b := s.routes[m.To]
		c := a.stops[m.FromPos].Customer
		add := s.insertionCost(b, m.ToPos, c)
		if m.Qty < a.stops[m.FromPos].Qty {
			// Split relocate: the source stop stays with the remainder, so
			// only the target legs change.
			return add
		}
		return add - s.removalGain(a, m.FromPos)
	case MoveSplit:
		a := s.routes[m.From]
		c := a.stops[m.FromPos].Customer
		if m.To == -1 {
			return 2 * s.inst.Dist(0, c)
		}
		return s.insertionCost(s.routes[m.To], m.ToPos, c)
	case MoveMerge:
		return -s.removalGain(s.routes[m.From], m.FromPos)
	case MoveExchange:
		a, b := s.routes[m.From], s.routes[m.To]
		ca, cb := a.at(m.FromPos), b.at(m.ToPos)
		a1, a2 := a.at(m.FromPos-1), a.at(m.FromPos+1)
		b1, b2 := b.at(m.ToPos-1), b.at(m.ToPos+1)
		d := s.inst.Dist
		return d(a1, cb) + d(cb, a2) - d(a1, ca) - d(ca, a2) +
			d(b1, ca) + d(ca, b2) - d(b1, cb) - d(cb, b2)
	}
	return 0
}

// EvaluateDeltas fills in Delta for every candidate. Candidates are
// independent, so evaluation fans out over workers that only read the shared
// solution snapshot; each worker owns a disjoint slice of the move set, so
// the result is identical regardless of worker count.
func EvaluateDeltas(s *Solution, moves []Move, workers int) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(moves) {
		workers = len(moves)
	}
	if workers <= 1 {
		for i := range moves {
			moves[i].Delta = s.moveDelta(moves[i])
		}
		return
	}
	var wg sync.WaitGroup
	chunk := (len(moves) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(moves) {
			hi = len(moves)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(ms []Move) {
			defer wg.Done()
			for i := range ms {
				ms[i].Delta = s.moveDelta(ms[i])
			}
		}(moves[lo:hi])
	}
	wg.Wait()
}

// tabuKeys are the signatures that, when active, make m forbidden: each
// customer paired with the route it would (re)enter, or the customer's
// split/merge attribute for those families.
func (m Move) tabuKeys(s *Solution) []moveSig {
	switch m.Kind {
	case MoveRelocate:
		a := s.routes[m.From]
		c := a.stops[m.FromPos].Customer
		if m.To == m.From {
			return []moveSig{{MoveRelocate, c, a.id}}
		}
		keys := []moveSig{{MoveRelocate, c, s.routes[m.To].id}}
		if m.Qty < a.stops[m.FromPos].Qty {
			keys = append(keys, moveSig{MoveSplit, c, 0})
		}
		return keys
	case MoveSplit:
		c := s.routes[m.From].stops[m.FromPos].Customer
		return []moveSig{{MoveSplit, c, 0}}
	case MoveMerge:
		c := s.routes[m.From].stops[m.FromPos].Customer
		return []moveSig{{MoveMerge, c, 0}}
	case MoveExchange:
		ca := s.routes[m.From].stops[m.FromPos].Customer
		cb := s.routes[m.To].stops[m.ToPos].Customer
		return []moveSig{
			{MoveExchange, ca, s.routes[m.To].id},
			{MoveExchange, cb, s.routes[m.From].id},
		}
	}
	return nil
}

// Apply mutates s according to m, refreshing only the touched routes, and
// returns the reverse move (valid while no route was pruned) plus the
// signatures to make tabu: the attributes whose reapplication would undo m.
func (s *Solution) Apply(m Move) (Move, []moveSig) {
	switch m.Kind {
	case MoveRelocate:
		return s.applyRelocate(m)
	case MoveSplit:
		return s.applySplit(m)
	case MoveMerge:
		return s.applyMerge(m)
	case MoveExchange:
		return s.applyExchange(m)
	}
	return Move{}, nil
}

func (s *Solution) applyRelocate(m Move) (Move, []moveSig) {
	a := s.routes[m.From]
	st := a.stops[m.FromPos]
	c := st.Customer

	if m.To == m.From {
		pos := m.ToPos
		a.stops = append(a.stops[:m.FromPos], a.stops[m.FromPos+1:]...)
		if pos > m.FromPos {
			pos--
		}
		a.stops = append(a.stops[:pos], append([]Stop{st}, a.stops[pos:]...)...)
		s.refresh(a)
		back := m.FromPos
		if back > pos {
			// reinsertion point shifts once the stop sits earlier now
			back = m.FromPos + 1
		}
		rev := Move{Kind: MoveRelocate, From: m.From, FromPos: pos, To: m.From, ToPos: back, Qty: st.Qty}
		return rev, []moveSig{{MoveRelocate, c, a.id}}
	}

	b := s.routes[m.To]
	full := m.Qty >= st.Qty
	if full {
		a.stops = append(a.stops[:m.FromPos], a.stops[m.FromPos+1:]...)
	} else {
		a.stops[m.FromPos].Qty -= m.Qty
	}
	b.stops = append(b.stops[:m.ToPos], append([]Stop{{Customer: c, Qty: m.Qty}}, b.stops[m.ToPos:]...)...)
	s.refresh(a)
	s.refresh(b)
	sigs := []moveSig{{MoveRelocate, c, a.id}}
	var rev Move
	if full {
		rev = Move{Kind: MoveRelocate, From: s.routeIndex(b), FromPos: m.ToPos, To: s.routeIndex(a), ToPos: m.FromPos, Qty: m.Qty}
	} else {
		// Undoing a split relocate is a merge back into the source stop.
		rev = Move{Kind: MoveMerge, From: s.routeIndex(b), FromPos: m.ToPos, To: s.routeIndex(a), ToPos: m.FromPos, Qty: m.Qty}
		sigs = append(sigs, moveSig{MoveMerge, c, 0})
	}
	s.prune()
	rev.From, rev.To = s.fixIndex(rev.From, b), s.fixIndex(rev.To, a)
	return rev, sigs
}

func (s *Solution) applySplit(m Move) (Move, []moveSig) {
	a := s.routes[m.From]
	c := a.stops[m.FromPos].Customer
	a.stops[m.FromPos].Qty -= m.Qty
	var b *Route
	if m.To == -1 {
		b = s.newRoute()
		b.stops = []Stop{{Customer: c, Qty: m.Qty}}
	} else {
		b = s.routes[m.To]
		b.stops = append(b.stops[:m.ToPos], append([]Stop{{Customer: c, Qty: m.Qty}}, b.stops[m.ToPos:]...)...)
	}
	s.refresh(a)
	s.refresh(b)
	rev := Move{Kind: MoveMerge, From: s.routeIndex(b), FromPos: m.ToPos, To: s.routeIndex(a), ToPos: m.FromPos, Qty: m.Qty}
	return rev, []moveSig{{MoveMerge, c, 0}}
}

func (s *Solution) applyMerge(m Move) (Move, []moveSig) {
	a := s.routes[m.From]
	b := s.routes[m.To]
	c := a.stops[m.FromPos].Customer
	qty := a.stops[m.FromPos].Qty
	b.stops[m.ToPos].Qty += qty
	a.stops = append(a.stops[:m.FromPos], a.stops[m.FromPos+1:]...)
	s.refresh(a)
	s.refresh(b)
	rev := Move{Kind: MoveSplit, From: s.routeIndex(b), FromPos: m.ToPos, To: s.routeIndex(a), ToPos: m.FromPos, Qty: qty}
	s.prune()
	rev.From, rev.To = s.fixIndex(rev.From, b), s.fixIndex(rev.To, a)
	return rev, []moveSig{{MoveSplit, c, 0}}
}

func (s *Solution) applyExchange(m Move) (Move, []moveSig) {
	a := s.routes[m.From]
	b := s.routes[m.To]
	ca := a.stops[m.FromPos].Customer
	cb := b.stops[m.ToPos].Customer
	a.stops[m.FromPos], b.stops[m.ToPos] = b.stops[m.ToPos], a.stops[m.FromPos]
	s.refresh(a)
	s.refresh(b)
	rev := m // exchanging back restores the original
	return rev, []moveSig{
		{MoveExchange, ca, a.id},
		{MoveExchange, cb, b.id},
	}
}

func (s *Solution) routeIndex(r *Route) int {
	for i, x := range s.routes {
		if x == r {
			return i
		}
	}
	return -1
}

// fixIndex re-resolves a route index after prune; -1 when the route is gone.
func (s *Solution) fixIndex(_ int, r *Route) int {
	return s.routeIndex(r)
}
