package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"sdvrp/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	instances  map[string]model.InstanceOut
	instTen    map[string][]string // tenant -> instance ids, insertion order
	runs       map[string]model.Run
	runsTen    map[string][]string
	solutions  map[string]model.SolutionOut
	solsByInst map[string][]string // instanceID -> solution ids
	metrics    map[string][]map[string]any // tenant|instance -> entries
	subs       map[string][]model.Subscription
	deliveries map[string]*memDelivery
	order      []string // delivery ids in enqueue order
}

func NewMemory() *Memory {
	return &Memory{
		instances:  map[string]model.InstanceOut{},
		instTen:    map[string][]string{},
		runs:       map[string]model.Run{},
		runsTen:    map[string][]string{},
		solutions:  map[string]model.SolutionOut{},
		solsByInst: map[string][]string{},
		metrics:    map[string][]map[string]any{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func (m *Memory) CreateInstance(ctx context.Context, tenantID string, in model.InstanceIn) (model.InstanceOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, c := range in.Customers {
		total += c.Demand
	}
	out := model.InstanceOut{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        in.Name,
		Depot:       in.Depot,
		Customers:   append([]model.CustomerIn(nil), in.Customers...),
		Capacity:    in.Capacity,
		MaxVehicles: in.MaxVehicles,
		MaxSplits:   in.MaxSplits,
		TotalDemand: total,
		CreatedAt:   now(),
	}
	m.instances[out.ID] = out
	m.instTen[tenantID] = append(m.instTen[tenantID], out.ID)
	return out, nil
}

func (m *Memory) GetInstance(ctx context.Context, tenantID, id string) (model.InstanceOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok || inst.TenantID != tenantID {
		return model.InstanceOut{}, ErrNotFound
	}
	return inst, nil
}

func (m *Memory) ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.InstanceOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.instTen[tenantID]
	out := []model.InstanceOut{}
	next := paginate(ids, cursor, limit, func(id string) { out = append(out, m.instances[id]) })
	return out, next, nil
}

func (m *Memory) DeleteInstance(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok || inst.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.instances, id)
	ids := m.instTen[tenantID]
	for i, x := range ids {
		if x == id {
			m.instTen[tenantID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	m.runsTen[run.TenantID] = append(m.runsTen[run.TenantID], run.ID)
	return nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.runsTen[tenantID]
	if instanceID != "" {
		filtered := []string{}
		for _, id := range ids {
			if m.runs[id].InstanceID == instanceID {
				filtered = append(filtered, id)
			}
		}
		ids = filtered
	}
	out := []model.Run{}
	next := paginate(ids, cursor, limit, func(id string) { out = append(out, m.runs[id]) })
	return out, next, nil
}

func (m *Memory) SaveSolution(ctx context.Context, tenantID string, sol model.SolutionOut) (model.SolutionOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sol.ID == "" {
		sol.ID = uuid.New().String()
	}
	sol.CreatedAt = now()
	m.solutions[sol.ID] = sol
	m.solsByInst[sol.InstanceID] = append(m.solsByInst[sol.InstanceID], sol.ID)
	return sol, nil
}

func (m *Memory) GetSolution(ctx context.Context, tenantID, id string) (model.SolutionOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.solutions[id]
	if !ok {
		return model.SolutionOut{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) BestSolution(ctx context.Context, tenantID, instanceID, producer string) (model.SolutionOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.SolutionOut
	for _, id := range m.solsByInst[instanceID] {
		s := m.solutions[id]
		if producer != "" && s.Producer != producer {
			continue
		}
		if best == nil || s.TotalCost < best.TotalCost {
			cp := s
			best = &cp
		}
	}
	if best == nil {
		return model.SolutionOut{}, ErrNotFound
	}
	return *best, nil
}

func (m *Memory) SaveRunMetrics(ctx context.Context, tenantID, instanceID, algo string, metrics map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := map[string]any{"algo": algo, "ts": now()}
	for k, v := range metrics {
		entry[k] = v
	}
	k := tenantID + "|" + instanceID
	m.metrics[k] = append(m.metrics[k], entry)
	return nil
}

func (m *Memory) ListRunMetrics(ctx context.Context, tenantID, instanceID string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any{}, m.metrics[tenantID+"|"+instanceID]...), nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	ids := make([]string, len(subs))
	byID := map[string]model.Subscription{}
	for i, s := range subs {
		ids[i] = s.ID
		byID[s.ID] = s
	}
	out := []model.Subscription{}
	next := paginate(ids, cursor, limit, func(id string) { out = append(out, byID[id]) })
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload,
			Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []WebhookDelivery{}
	cutoff := time.Now()
	for _, id := range m.order {
		d := m.deliveries[id]
		if d.Status != "pending" || d.NextAttemptAt.After(cutoff) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		t := time.Now()
		d.DeliveredAt = &t
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

// paginate walks ids from the cursor, invoking visit up to limit times, and
// returns the next cursor ("" when exhausted).
func paginate(ids []string, cursor string, limit int, visit func(string)) string {
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	n := 0
	last := ""
	for i := start; i < len(ids) && n < limit; i++ {
		visit(ids[i])
		last = ids[i]
		n++
	}
	if start+n >= len(ids) {
		return ""
	}
	return last
}
