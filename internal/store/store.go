package store

import (
	"context"
	"errors"
	"time"

	"sdvrp/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Instances
	CreateInstance(ctx context.Context, tenantID string, in model.InstanceIn) (model.InstanceOut, error)
	GetInstance(ctx context.Context, tenantID, id string) (model.InstanceOut, error)
	ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.InstanceOut, string, error)
	DeleteInstance(ctx context.Context, tenantID, id string) error

	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.Run, string, error)

	// Solutions
	SaveSolution(ctx context.Context, tenantID string, sol model.SolutionOut) (model.SolutionOut, error)
	GetSolution(ctx context.Context, tenantID, id string) (model.SolutionOut, error)
	// BestSolution returns the lowest-cost stored solution for the instance,
	// optionally filtered by producer ("tabu" or "exact").
	BestSolution(ctx context.Context, tenantID, instanceID, producer string) (model.SolutionOut, error)

	// Run metrics
	SaveRunMetrics(ctx context.Context, tenantID, instanceID, algo string, metrics map[string]any) error
	ListRunMetrics(ctx context.Context, tenantID, instanceID string) ([]map[string]any, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// WebhookDelivery is one queued outbound event delivery.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")
