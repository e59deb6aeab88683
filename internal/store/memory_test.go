package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"sdvrp/internal/model"
)

func testInstanceIn() model.InstanceIn {
	return model.InstanceIn{
		Name:  "t",
		Depot: model.Point{X: 0, Y: 0},
		Customers: []model.CustomerIn{
			{ID: 1, X: 1, Y: 0, Demand: 6},
			{ID: 2, X: 0, Y: 1, Demand: 4},
		},
		Capacity: 5,
	}
}

func TestMemoryInstanceCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	out, err := m.CreateInstance(ctx, "t1", testInstanceIn())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.ID == "" || out.TotalDemand != 10 {
		t.Fatalf("unexpected instance: %+v", out)
	}

	got, err := m.GetInstance(ctx, "t1", out.ID)
	if err != nil || got.Capacity != 5 {
		t.Fatalf("get: %v %+v", err, got)
	}
	if _, err := m.GetInstance(ctx, "t2", out.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tenant isolation: got %v", err)
	}

	if err := m.DeleteInstance(ctx, "t1", out.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetInstance(ctx, "t1", out.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: got %v", err)
	}
}

func TestMemoryListInstancesPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 5; i++ {
		if _, err := m.CreateInstance(ctx, "t1", testInstanceIn()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	page1, cursor, err := m.ListInstances(ctx, "t1", "", 2)
	if err != nil || len(page1) != 2 || cursor == "" {
		t.Fatalf("page1: err=%v n=%d cursor=%q", err, len(page1), cursor)
	}
	page2, cursor2, err := m.ListInstances(ctx, "t1", cursor, 2)
	if err != nil || len(page2) != 2 {
		t.Fatalf("page2: err=%v n=%d", err, len(page2))
	}
	page3, cursor3, err := m.ListInstances(ctx, "t1", cursor2, 2)
	if err != nil || len(page3) != 1 || cursor3 != "" {
		t.Fatalf("page3: err=%v n=%d cursor=%q", err, len(page3), cursor3)
	}
	seen := map[string]bool{}
	for _, p := range [][]model.InstanceOut{page1, page2, page3} {
		for _, it := range p {
			if seen[it.ID] {
				t.Fatalf("duplicate across pages: %s", it.ID)
			}
			seen[it.ID] = true
		}
	}
}

func TestMemoryRunsLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	run := model.Run{ID: "r1", TenantID: "t1", InstanceID: "i1", Status: model.RunRunning}
	if err := m.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	run.Status = model.RunCompleted
	run.SolutionID = "s1"
	if err := m.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}
	got, err := m.GetRun(ctx, "t1", "r1")
	if err != nil || got.Status != model.RunCompleted || got.SolutionID != "s1" {
		t.Fatalf("get run: %v %+v", err, got)
	}
	items, _, err := m.ListRuns(ctx, "t1", "i1", "", 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("list runs: %v n=%d", err, len(items))
	}
	items, _, err = m.ListRuns(ctx, "t1", "other", "", 10)
	if err != nil || len(items) != 0 {
		t.Fatalf("list runs filter: %v n=%d", err, len(items))
	}
}

func TestMemoryBestSolution(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	save := func(producer string, cost float64) {
		if _, err := m.SaveSolution(ctx, "t1", model.SolutionOut{InstanceID: "i1", Producer: producer, TotalCost: cost}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	save("tabu", 120)
	save("tabu", 100)
	save("exact", 95)

	best, err := m.BestSolution(ctx, "t1", "i1", "")
	if err != nil || best.TotalCost != 95 {
		t.Fatalf("best any: %v %+v", err, best)
	}
	best, err = m.BestSolution(ctx, "t1", "i1", "tabu")
	if err != nil || best.TotalCost != 100 {
		t.Fatalf("best tabu: %v %+v", err, best)
	}
	if _, err := m.BestSolution(ctx, "t1", "i1", "exact"); err != nil {
		t.Fatalf("best exact: %v", err)
	}
	if _, err := m.BestSolution(ctx, "t1", "other", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("best missing: got %v", err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "run.completed", "https://x.example", "sec", []byte(`{}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue: %v", err)
	}
	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].EventType != "run.completed" {
		t.Fatalf("fetch due: %v %+v", err, due)
	}

	// a retry scheduled in the future is not due
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 12); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 0 {
		t.Fatalf("fetch after retry: %v %+v", err, due)
	}

	if err := m.FailWebhookDelivery(ctx, id, "gave up", 500, 5); err != nil {
		t.Fatalf("fail: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("failed delivery still due: %+v", due)
	}
}

func TestMemorySubscriptionsForEvent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	mk := func(url string, events ...string) {
		if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: url, Events: events}); err != nil {
			t.Fatalf("create sub: %v", err)
		}
	}
	mk("https://a.example", "run.completed")
	mk("https://b.example", "run.failed")
	mk("https://c.example", "*")

	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "run.completed")
	if err != nil || len(subs) != 2 {
		t.Fatalf("for event: %v n=%d", err, len(subs))
	}
	for _, s := range subs {
		if s.URL == "https://b.example" {
			t.Fatalf("wrong subscription matched: %+v", s)
		}
	}
}

func TestMemoryRunMetricsHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.SaveRunMetrics(ctx, "t1", "i1", "tabu", map[string]any{"iterations": 10}); err != nil {
		t.Fatalf("save metrics: %v", err)
	}
	if err := m.SaveRunMetrics(ctx, "t1", "i1", "tabu", map[string]any{"iterations": 20}); err != nil {
		t.Fatalf("save metrics: %v", err)
	}
	hist, err := m.ListRunMetrics(ctx, "t1", "i1")
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %v n=%d", err, len(hist))
	}
}
