package opt

import "math/rand"

const costEps = 1e-9

// SelectPolicy controls candidate selection in each iteration.
type SelectPolicy string

const (
	// PolicyBest scans all admissible candidates and picks the minimum
	// delta-cost, ties broken by generation order. The default.
	PolicyBest SelectPolicy = "best"
	// PolicyFirst takes the first admissible improving candidate, falling
	// back to the best admissible one when nothing improves.
	PolicyFirst SelectPolicy = "first"
)

// tabuList is the short-term memory: move signature -> expiry iteration.
// Entries are removed lazily once their iteration has passed.
type tabuList struct {
	entries map[moveSig]int
}

func newTabuList() *tabuList {
	return &tabuList{entries: map[moveSig]int{}}
}

func (t *tabuList) add(sig moveSig, expiry int) {
	t.entries[sig] = expiry
}

func (t *tabuList) active(sig moveSig, iter int) bool {
	exp, ok := t.entries[sig]
	if !ok {
		return false
	}
	if iter >= exp {
		delete(t.entries, sig)
		return false
	}
	return true
}

// searchState carries everything one solve call owns: current and best-known
// solutions (never aliased), counters, the tabu list, and the seeded random
// source. No state is shared between solve calls.
type searchState struct {
	cur        *Solution
	best       *Solution
	iter       int
	stagnation int
	tabu       *tabuList
	rng        *rand.Rand
	cfg        SolveConfig
	met        *Metrics
}

// tenure draws a tabu tenure from [TenureMin, hi] where hi widens from
// TenureMin toward TenureMax as the stagnation counter grows: short memory
// while the search is improving, long memory to break cycles once it stalls.
func (st *searchState) tenure() int {
	lo, hi := st.cfg.TenureMin, st.cfg.TenureMax
	if hi <= lo {
		return lo
	}
	frac := float64(st.stagnation) / float64(st.cfg.StagnationThreshold)
	if frac > 1 {
		frac = 1
	}
	upper := lo + int(frac*float64(hi-lo))
	if upper <= lo {
		return lo
	}
	return lo + st.rng.Intn(upper-lo+1)
}

// step runs one controller iteration: enumerate, filter by tabu with
// aspiration, select, apply, record the reverse signatures, update best, and
// diversify on prolonged stagnation. Returns false when no admissible move
// exists at all.
func (st *searchState) step() bool {
	moves := GenerateMoves(st.cur)
	if len(moves) == 0 {
		st.stall()
		return false
	}
	EvaluateDeltas(st.cur, moves, st.cfg.Workers)

	chosen := -1
	for i := range moves {
		m := &moves[i]
		if st.isTabu(m) {
			// Aspiration: tabu status is overridden for moves that beat the
			// global best.
			if st.cur.cost+m.Delta >= st.best.cost-costEps {
				st.met.TabuHits++
				continue
			}
			st.met.AspirationHits++
		}
		if st.cfg.Policy == PolicyFirst && m.Delta < -costEps {
			chosen = i
			break
		}
		if chosen == -1 || m.Delta < moves[chosen].Delta-costEps {
			chosen = i
		}
	}
	if chosen == -1 {
		st.stall()
		return false
	}

	st.applyAndRecord(moves[chosen], st.tenure())

	if st.cur.cost < st.best.cost-costEps {
		st.best = st.cur.Clone()
		st.stagnation = 0
		st.met.Improvements++
		st.met.BestCost = st.best.cost
	} else {
		st.stagnation++
	}
	if st.stagnation > st.cfg.StagnationThreshold {
		st.diversify()
	}
	return true
}

func (st *searchState) isTabu(m *Move) bool {
	for _, sig := range m.tabuKeys(st.cur) {
		if st.tabu.active(sig, st.iter) {
			return true
		}
	}
	return false
}

func (st *searchState) applyAndRecord(m Move, tenure int) {
	_, sigs := st.cur.Apply(m)
	for _, sig := range sigs {
		st.tabu.add(sig, st.iter+tenure)
	}
}

// stall handles an iteration with no admissible candidate: count it as
// stagnation and let diversification shake the solution loose.
func (st *searchState) stall() {
	st.stagnation++
	if st.stagnation > st.cfg.StagnationThreshold {
		st.diversify()
	}
}

// diversify applies a batch of randomized relocate/split moves, bypassing the
// tabu filter, to kick the search out of the current basin.
func (st *searchState) diversify() {
	st.met.Diversifications++
	kicks := 1 + len(st.cur.inst.Customers)/10
	for k := 0; k < kicks; k++ {
		moves := GenerateMoves(st.cur)
		var pool []Move
		for _, m := range moves {
			if m.Kind == MoveRelocate || m.Kind == MoveSplit {
				pool = append(pool, m)
			}
		}
		if len(pool) == 0 {
			break
		}
		m := pool[st.rng.Intn(len(pool))]
		m.Delta = st.cur.moveDelta(m)
		st.applyAndRecord(m, st.cfg.TenureMin)
	}
	st.stagnation = 0
}
