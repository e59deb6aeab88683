package opt

import (
	"context"
	"math/rand"
	"time"
)

// SolveConfig are the recognized search options. Zero values take the
// documented defaults in withDefaults.
type SolveConfig struct {
	MaxIterations       int // hard cap on controller iterations (default 2000)
	MaxSeconds          int // wall-clock budget (default 30)
	StagnationThreshold int // iterations without improvement before diversification (default 50)
	TenureMin           int // tabu tenure lower bound (default sized from the instance)
	TenureMax           int // tabu tenure upper bound (default sized from the instance)
	Policy              SelectPolicy
	Seed                int64 // 0 = time-based
	Workers             int   // parallel delta-evaluation workers (0 = GOMAXPROCS)

	// ProgressEvery emits a Snapshot to Progress every N iterations (0 = off).
	ProgressEvery int
	Progress      func(Snapshot)
}

// Snapshot is one progress sample of the running search.
type Snapshot struct {
	Iteration int     `json:"iteration"`
	Current   float64 `json:"current"`
	Best      float64 `json:"best"`
}

// Metrics summarizes one solve run, in the shape persisted by the store and
// surfaced by the admin endpoints.
type Metrics struct {
	Iterations       int        `json:"iterations"`
	Improvements     int        `json:"improvements"`
	TabuHits         int        `json:"tabuHits"`
	AspirationHits   int        `json:"aspirationHits"`
	Diversifications int        `json:"diversifications"`
	InitialCost      float64    `json:"initialCost"`
	BestCost         float64    `json:"bestCost"`
	Cancelled        bool       `json:"cancelled"`
	ElapsedMs        int64      `json:"elapsedMs"`
	Snapshots        []Snapshot `json:"snapshots,omitempty"`
}

func (c SolveConfig) withDefaults(inst *Instance) SolveConfig {
	n := len(inst.Customers)
	if c.MaxIterations <= 0 {
		c.MaxIterations = 2000
	}
	if c.MaxSeconds <= 0 {
		c.MaxSeconds = 30
	}
	if c.StagnationThreshold <= 0 {
		c.StagnationThreshold = 50
	}
	// Tenure bounds scale with instance size when not configured; the
	// original dynamic-tenure formula is undocumented, so the range itself is
	// the contract and these are just serviceable defaults.
	if c.TenureMin <= 0 {
		c.TenureMin = 5 + n/20
	}
	if c.TenureMax <= 0 {
		c.TenureMax = c.TenureMin + 10 + n/10
	}
	if c.TenureMax < c.TenureMin {
		c.TenureMax = c.TenureMin
	}
	if c.Policy == "" {
		c.Policy = PolicyBest
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Solve constructs the greedy initial solution and runs tabu search under the
// iteration and wall-clock budgets. Cancellation via ctx is not an error: the
// best-known solution so far is returned. The returned solution is always
// feasible; each call owns an independent search state.
func Solve(ctx context.Context, inst *Instance, cfg SolveConfig) (*Solution, Metrics, error) {
	cfg = cfg.withDefaults(inst)
	start := time.Now()

	initial, err := GreedyConstruct(inst)
	if err != nil {
		return nil, Metrics{}, err
	}

	st := &searchState{
		cur:  initial,
		best: initial.Clone(),
		tabu: newTabuList(),
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		cfg:  cfg,
		met:  &Metrics{InitialCost: initial.cost, BestCost: initial.cost},
	}

	deadline := start.Add(time.Duration(cfg.MaxSeconds) * time.Second)
	for st.iter = 1; st.iter <= cfg.MaxIterations; st.iter++ {
		select {
		case <-ctx.Done():
			st.met.Cancelled = true
			st.met.ElapsedMs = time.Since(start).Milliseconds()
			return st.best, *st.met, nil
		default:
		}
		if time.Now().After(deadline) {
			break
		}
		st.met.Iterations++
		st.step()
		if cfg.ProgressEvery > 0 && cfg.Progress != nil && st.iter%cfg.ProgressEvery == 0 {
			cfg.Progress(Snapshot{Iteration: st.iter, Current: st.cur.cost, Best: st.best.cost})
			st.met.Snapshots = append(st.met.Snapshots, Snapshot{Iteration: st.iter, Current: st.cur.cost, Best: st.best.cost})
		}
	}
	st.met.ElapsedMs = time.Since(start).Milliseconds()
	return st.best, *st.met, nil
}
