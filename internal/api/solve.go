package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"sdvrp/internal/metrics"
	"sdvrp/internal/model"
	"sdvrp/internal/opt"
)

// instanceToOpt converts the stored wire schema into the engine's input.
func instanceToOpt(in model.InstanceOut) (*opt.Instance, error) {
	customers := make([]opt.Customer, len(in.Customers))
	for i, c := range in.Customers {
		customers[i] = opt.Customer{ID: c.ID, X: c.X, Y: c.Y, Demand: c.Demand}
	}
	return opt.NewInstance(opt.InstanceInput{
		DepotX:      in.Depot.X,
		DepotY:      in.Depot.Y,
		Customers:   customers,
		Capacity:    in.Capacity,
		MaxVehicles: in.MaxVehicles,
		MaxSplits:   in.MaxSplits,
	})
}

// solutionToOut flattens an engine solution into the canonical wire schema.
func solutionToOut(instanceID, producer string, s *opt.Solution) model.SolutionOut {
	out := model.SolutionOut{
		InstanceID: instanceID,
		Producer:   producer,
		TotalCost:  s.Cost(),
		Deliveries: s.Deliveries(),
	}
	for _, r := range s.Routes() {
		ro := model.RouteOut{Load: r.Load(), Distance: r.Distance()}
		for _, st := range r.Stops() {
			ro.Stops = append(ro.Stops, model.StopOut{Customer: st.Customer, Quantity: st.Qty})
		}
		out.Routes = append(out.Routes, ro)
		out.TruckLoads = append(out.TruckLoads, r.Load())
	}
	return out
}

func solveConfigFrom(defaults SolverDefaults, req model.SolveRequest) opt.SolveConfig {
	cfg := opt.SolveConfig{
		MaxIterations:       defaults.MaxIterations,
		MaxSeconds:          defaults.MaxSeconds,
		StagnationThreshold: defaults.StagnationThreshold,
		TenureMin:           defaults.TenureMin,
		TenureMax:           defaults.TenureMax,
		Policy:              opt.SelectPolicy(defaults.Policy),
		Workers:             defaults.Workers,
		ProgressEvery:       defaults.ProgressEvery,
	}
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}
	if req.MaxSeconds > 0 {
		cfg.MaxSeconds = req.MaxSeconds
	}
	if req.StagnationThreshold > 0 {
		cfg.StagnationThreshold = req.StagnationThreshold
	}
	if req.TenureMin > 0 {
		cfg.TenureMin = req.TenureMin
	}
	if req.TenureMax > 0 {
		cfg.TenureMax = req.TenureMax
	}
	if req.Policy != "" {
		cfg.Policy = opt.SelectPolicy(req.Policy)
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	if req.Workers > 0 {
		cfg.Workers = req.Workers
	}
	return cfg
}

func metricsToMap(m opt.Metrics) map[string]any {
	b, _ := json.Marshal(m)
	out := map[string]any{}
	_ = json.Unmarshal(b, &out)
	return out
}

// executeRun drives one search run to completion: solve, persist the
// solution, finalize the run record, and fan out progress and completion
// events. It owns the run's terminal state.
func (s *Server) executeRun(ctx context.Context, tenant string, run model.Run, inst *opt.Instance) {
	cfg := solveConfigFrom(s.Defaults, run.Config)
	if cfg.ProgressEvery > 0 {
		runID := run.ID
		cfg.Progress = func(snap opt.Snapshot) {
			s.Broker.Publish(runID, SSEEvent{Type: "run.progress", Data: map[string]any{
				"runId":     runID,
				"iteration": snap.Iteration,
				"current":   snap.Current,
				"best":      snap.Best,
			}})
		}
	}

	start := time.Now()
	best, m, err := opt.Solve(ctx, inst, cfg)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	metrics.SolveRuns.WithLabelValues("tabu", status).Inc()
	metrics.SolveDuration.WithLabelValues("tabu").Observe(time.Since(start).Seconds())

	if err != nil {
		run.Status = model.RunFailed
		run.Error = err.Error()
		_ = s.Store.UpdateRun(ctx, run)
		s.Broker.Publish(run.ID, SSEEvent{Type: "run.failed", Data: map[string]any{"runId": run.ID, "error": err.Error()}})
		s.Pub.Emit(ctx, tenant, "run.failed", map[string]any{"runId": run.ID, "instanceId": run.InstanceID, "error": err.Error()})
		return
	}
	metrics.SolveIterations.WithLabelValues("tabu").Observe(float64(m.Iterations))

	sol, serr := s.Store.SaveSolution(ctx, tenant, solutionToOut(run.InstanceID, "tabu", best))
	if serr != nil {
		run.Status = model.RunFailed
		run.Error = serr.Error()
		_ = s.Store.UpdateRun(ctx, run)
		s.Broker.Publish(run.ID, SSEEvent{Type: "run.failed", Data: map[string]any{"runId": run.ID, "error": serr.Error()}})
		s.Pub.Emit(ctx, tenant, "run.failed", map[string]any{"runId": run.ID, "instanceId": run.InstanceID, "error": serr.Error()})
		return
	}

	run.Status = model.RunCompleted
	run.SolutionID = sol.ID
	run.Metrics = metricsToMap(m)
	_ = s.Store.UpdateRun(ctx, run)
	opt.RecordMetrics(tenant, run.InstanceID, "tabu", m)
	_ = s.Store.SaveRunMetrics(ctx, tenant, run.InstanceID, "tabu", run.Metrics)

	data := map[string]any{
		"runId":      run.ID,
		"instanceId": run.InstanceID,
		"solutionId": sol.ID,
		"totalCost":  sol.TotalCost,
		"iterations": m.Iterations,
		"cancelled":  m.Cancelled,
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: "run.completed", Data: data})
	s.Pub.Emit(ctx, tenant, "run.completed", data)
}

// newRunContext is the lifetime of a background run; the engine's own
// MaxSeconds budget bounds the work, not the request context.
func newRunContext() context.Context { return context.Background() }

// classifyInstanceErr maps engine load/construction errors to HTTP status.
func classifyInstanceErr(err error) (int, string) {
	var mal *opt.MalformedInstanceError
	if errors.As(err, &mal) {
		return 400, "Malformed instance"
	}
	var inf *opt.InfeasibleInstanceError
	if errors.As(err, &inf) {
		return 422, "Infeasible instance"
	}
	return 500, "Solve failed"
}
