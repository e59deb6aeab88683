package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sdvrp/internal/store"
)

// envelope is the body POSTed to subscriber endpoints.
type envelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit queues one delivery per subscription matching eventType for the
// tenant. The worker does the actual sending; Emit never blocks on it.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	now := time.Now()
	body, err := json.Marshal(envelope{
		ID:       fmt.Sprintf("evt_%d", now.UnixNano()),
		Type:     eventType,
		TenantID: tenantID,
		TS:       now.UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		return
	}
	for _, sub := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, tenantID, sub.ID, eventType, sub.URL, sub.Secret, body)
	}
}
