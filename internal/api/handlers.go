package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sdvrp/internal/buildinfo"
	"sdvrp/internal/caseio"
	"sdvrp/internal/model"
	"sdvrp/internal/opt"
	"sdvrp/internal/store"
)

// InstancesHandler handles POST/GET /v1/instances. POST accepts the JSON
// schema, or the historical case text format when Content-Type is text/plain.
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanPlan() {
			writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		var in model.InstanceIn
		if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
			parsed, err := caseio.ParseInstance(r.Body)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid instance file", err.Error(), r.URL.Path)
				return
			}
			in = caseInstanceToWire(parsed)
			in.Name = r.URL.Query().Get("name")
		} else if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		// Validate through the engine before persisting.
		if _, err := instanceToOpt(model.InstanceOut{
			Depot: in.Depot, Customers: in.Customers,
			Capacity: in.Capacity, MaxVehicles: in.MaxVehicles, MaxSplits: in.MaxSplits,
		}); err != nil {
			status, title := classifyInstanceErr(err)
			writeProblem(w, status, title, err.Error(), r.URL.Path)
			return
		}
		_, tenant := s.withTenant(r)
		out, err := s.Store.CreateInstance(r.Context(), tenant, in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create instance failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListInstances(r.Context(), tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func caseInstanceToWire(in opt.InstanceInput) model.InstanceIn {
	out := model.InstanceIn{
		Depot:       model.Point{X: in.DepotX, Y: in.DepotY},
		Capacity:    in.Capacity,
		MaxVehicles: in.MaxVehicles,
		MaxSplits:   in.MaxSplits,
	}
	for _, c := range in.Customers {
		out.Customers = append(out.Customers, model.CustomerIn{ID: c.ID, X: c.X, Y: c.Y, Demand: c.Demand})
	}
	return out
}

// InstanceByIDHandler handles /v1/instances/{id} plus the per-instance
// subresources /solutions/best, /compare and /export.
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	_, tenant := s.withTenant(r)

	if len(parts) > 1 {
		switch strings.Join(parts[1:], "/") {
		case "solutions/best":
			s.bestSolution(w, r, tenant, id)
			return
		case "compare":
			s.compareSolutions(w, r, tenant, id)
			return
		case "export":
			s.exportInstance(w, r, tenant, id)
			return
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		inst, err := s.Store.GetInstance(r.Context(), tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, inst)
	case http.MethodDelete:
		p := s.getPrincipal(r)
		if !p.CanPlan() {
			writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		if err := s.Store.DeleteInstance(r.Context(), tenant, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Instance not found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Delete instance failed", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) bestSolution(w http.ResponseWriter, r *http.Request, tenant, instanceID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	producer := r.URL.Query().Get("producer")
	sol, err := s.Store.BestSolution(r.Context(), tenant, instanceID, producer)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "No solution", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

// compareSolutions reports the best tabu and exact solutions side by side
// with the relative gap.
func (s *Server) compareSolutions(w http.ResponseWriter, r *http.Request, tenant, instanceID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cmp := model.Comparison{InstanceID: instanceID}
	if sol, err := s.Store.BestSolution(r.Context(), tenant, instanceID, "tabu"); err == nil {
		tmp := sol
		cmp.Tabu = &tmp
	}
	if sol, err := s.Store.BestSolution(r.Context(), tenant, instanceID, "exact"); err == nil {
		tmp := sol
		cmp.Exact = &tmp
	}
	if cmp.Tabu == nil && cmp.Exact == nil {
		writeProblem(w, http.StatusNotFound, "No solution", "no stored solutions for instance", r.URL.Path)
		return
	}
	if cmp.Tabu != nil && cmp.Exact != nil && cmp.Exact.TotalCost > 0 {
		gap := 100 * (cmp.Tabu.TotalCost - cmp.Exact.TotalCost) / cmp.Exact.TotalCost
		gap = math.Round(gap*100) / 100
		cmp.GapPct = &gap
	}
	writeJSON(w, http.StatusOK, cmp)
}

// exportInstance renders the stored instance in the historical case format.
func (s *Server) exportInstance(w http.ResponseWriter, r *http.Request, tenant, instanceID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	inst, err := s.Store.GetInstance(r.Context(), tenant, instanceID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_ = caseio.RenderInstance(w, wireInstanceToCase(inst))
}

func wireInstanceToCase(in model.InstanceOut) opt.InstanceInput {
	out := opt.InstanceInput{
		DepotX:      in.Depot.X,
		DepotY:      in.Depot.Y,
		Capacity:    in.Capacity,
		MaxVehicles: in.MaxVehicles,
		MaxSplits:   in.MaxSplits,
	}
	for _, c := range in.Customers {
		out.Customers = append(out.Customers, opt.Customer{ID: c.ID, X: c.X, Y: c.Y, Demand: c.Demand})
	}
	return out
}

// SolveHandler handles POST /v1/solve. With wait=true the run executes
// inline and the response carries the finished run; otherwise the run starts
// in the background and the response is 202 with the run record.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	if req.TenantID == "" {
		req.TenantID = tenant
	}

	stored, err := s.Store.GetInstance(r.Context(), tenant, req.InstanceID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
		return
	}
	inst, err := instanceToOpt(stored)
	if err != nil {
		status, title := classifyInstanceErr(err)
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}

	run := model.Run{
		ID:         uuid.New().String(),
		TenantID:   tenant,
		InstanceID: req.InstanceID,
		Status:     model.RunRunning,
		Config:     req,
		StartedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.Store.CreateRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create run failed", err.Error(), r.URL.Path)
		return
	}

	if req.Wait {
		s.executeRun(r.Context(), tenant, run, inst)
		done, err := s.Store.GetRun(r.Context(), tenant, run.ID)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Run lookup failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, done)
		return
	}
	go s.executeRun(newRunContext(), tenant, run, inst)
	writeJSON(w, http.StatusAccepted, run)
}

// RunsHandler handles GET /v1/runs.
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListRuns(r.Context(), tenant, r.URL.Query().Get("instanceId"), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id} and GET /v1/runs/{id}/events/stream.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	_, tenant := s.withTenant(r)

	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, err := s.Store.GetRun(r.Context(), tenant, id); err != nil {
			writeProblem(w, http.StatusNotFound, "Run not found", err.Error(), r.URL.Path)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		ch := s.Broker.Subscribe(id)
		defer s.Broker.Unsubscribe(id, ch)
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
		notify := r.Context().Done()
		for {
			select {
			case <-notify:
				return
			case evt := <-ch:
				b, _ := json.Marshal(evt.Data)
				fmt.Fprintf(w, "event: %s\n", evt.Type)
				fmt.Fprintf(w, "data: %s\n\n", string(b))
				flusher.Flush()
			case <-time.After(15 * time.Second):
				fmt.Fprintf(w, "event: heartbeat\n")
				fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
				flusher.Flush()
			}
		}
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	run, err := s.Store.GetRun(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Run not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ExternalSolutionHandler handles POST /v1/solutions/external: a solution
// produced outside the search (the exact MIP path) is validated against the
// instance invariants and stored under the "exact" producer.
func (s *Server) ExternalSolutionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var in model.ExternalSolutionIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateExternalSolution(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solution", err.Error(), r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	stored, err := s.Store.GetInstance(r.Context(), tenant, in.InstanceID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
		return
	}
	inst, err := instanceToOpt(stored)
	if err != nil {
		status, title := classifyInstanceErr(err)
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	routes := make([][]opt.Stop, len(in.Routes))
	for i, ro := range in.Routes {
		for _, st := range ro.Stops {
			routes[i] = append(routes[i], opt.Stop{Customer: st.Customer, Qty: st.Quantity})
		}
	}
	sol, err := opt.SolutionFromRoutes(inst, routes)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Infeasible solution", err.Error(), r.URL.Path)
		return
	}
	out, err := s.Store.SaveSolution(r.Context(), tenant, solutionToOut(in.InstanceID, "exact", sol))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save solution failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// SolutionByIDHandler handles GET /v1/solutions/{id} and the historical text
// rendering at /v1/solutions/{id}/download.
func (s *Server) SolutionByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solutions/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	_, tenant := s.withTenant(r)
	sol, err := s.Store.GetSolution(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Solution not found", err.Error(), r.URL.Path)
		return
	}
	if len(parts) > 1 && parts[1] == "download" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = caseio.RenderSolutionOut(w, sol)
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

// SolverConfigHandler returns the effective solver defaults.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	defaults := map[string]any{
		"maxIterations":       2000,
		"maxSeconds":          30,
		"stagnationThreshold": 50,
		"policy":              "best",
		"progressEvery":       0,
	}
	// overlay file-configured defaults
	b, _ := json.Marshal(s.Defaults)
	over := map[string]any{}
	_ = json.Unmarshal(b, &over)
	for k, v := range over {
		defaults[k] = v
	}
	writeJSON(w, 200, map[string]any{"defaults": defaults})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" || id == r.URL.Path {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminRunMetricsHandler handles GET /v1/admin/run-metrics?instanceId=...
func (s *Server) AdminRunMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	instanceID := r.URL.Query().Get("instanceId")
	if instanceID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing instanceId", "", r.URL.Path)
		return
	}
	history, err := s.Store.ListRunMetrics(r.Context(), p.Tenant, instanceID)
	if err != nil {
		writeProblem(w, 500, "List run metrics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{
		"latest":  opt.GetMetrics(p.Tenant, instanceID),
		"history": history,
	})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Info()
	info["status"] = "ok"
	writeJSON(w, 200, info)
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping() error }
	if pg, ok := s.Store.(pinger); ok {
		if err := pg.Ping(); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
