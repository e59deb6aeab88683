package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sdvrp/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Ping reports database connectivity for readiness checks.
func (p *Postgres) Ping() error { return p.db.Ping() }

// EnsureSchema creates the tables when missing (dev helper; production runs
// use managed migrations).
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT,
			payload JSONB NOT NULL,
			total_demand INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			instance_id UUID NOT NULL,
			status TEXT NOT NULL,
			solution_id UUID,
			error TEXT,
			config JSONB,
			metrics JSONB,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS solutions (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			instance_id UUID NOT NULL,
			producer TEXT NOT NULL,
			payload JSONB NOT NULL,
			total_cost DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS run_metrics (
			id BIGSERIAL PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			instance_id UUID NOT NULL,
			algo TEXT NOT NULL,
			metrics JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url TEXT NOT NULL,
			events JSONB NOT NULL,
			secret TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			subscription_id UUID NOT NULL,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT,
			payload BYTEA,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT,
			response_code INT,
			latency_ms INT,
			delivered_at TIMESTAMPTZ
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (p *Postgres) CreateInstance(ctx context.Context, tenantID string, in model.InstanceIn) (model.InstanceOut, error) {
	total := 0
	for _, c := range in.Customers {
		total += c.Demand
	}
	out := model.InstanceOut{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        in.Name,
		Depot:       in.Depot,
		Customers:   in.Customers,
		Capacity:    in.Capacity,
		MaxVehicles: in.MaxVehicles,
		MaxSplits:   in.MaxSplits,
		TotalDemand: total,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO instances (id, tenant_id, name, payload, total_demand) VALUES ($1,$2,$3,$4,$5)`,
		out.ID, tenantID, in.Name, toJSON(in), total)
	if err != nil {
		return model.InstanceOut{}, err
	}
	return out, nil
}

func (p *Postgres) scanInstance(tenantID, id, name string, payload []byte, total int, created time.Time) (model.InstanceOut, error) {
	var in model.InstanceIn
	if err := json.Unmarshal(payload, &in); err != nil {
		return model.InstanceOut{}, err
	}
	return model.InstanceOut{
		ID: id, TenantID: tenantID, Name: name,
		Depot: in.Depot, Customers: in.Customers,
		Capacity: in.Capacity, MaxVehicles: in.MaxVehicles, MaxSplits: in.MaxSplits,
		TotalDemand: total, CreatedAt: created.UTC().Format(time.RFC3339),
	}, nil
}

func (p *Postgres) GetInstance(ctx context.Context, tenantID, id string) (model.InstanceOut, error) {
	var (
		name    sql.NullString
		payload []byte
		total   int
		created time.Time
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT name, payload, total_demand, created_at FROM instances WHERE tenant_id=$1 AND id=$2`,
		tenantID, id).Scan(&name, &payload, &total, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.InstanceOut{}, ErrNotFound
	}
	if err != nil {
		return model.InstanceOut{}, err
	}
	return p.scanInstance(tenantID, id, name.String, payload, total, created)
}

func (p *Postgres) ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.InstanceOut, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, payload, total_demand, created_at FROM instances
		WHERE tenant_id=$1 AND ($2 = '' OR created_at > (SELECT created_at FROM instances WHERE id=$2::uuid))
		ORDER BY created_at ASC LIMIT $3`, tenantID, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.InstanceOut{}
	for rows.Next() {
		var (
			id      string
			name    sql.NullString
			payload []byte
			total   int
			created time.Time
		)
		if err := rows.Scan(&id, &name, &payload, &total, &created); err != nil {
			return nil, "", err
		}
		inst, err := p.scanInstance(tenantID, id, name.String, payload, total, created)
		if err != nil {
			return nil, "", err
		}
		out = append(out, inst)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteInstance(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM instances WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO runs (id, tenant_id, instance_id, status, config, started_at)
		VALUES ($1,$2,$3,$4,$5,now())`,
		run.ID, run.TenantID, run.InstanceID, run.Status, toJSON(run.Config))
	return err
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.Run) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE runs SET status=$3, solution_id=NULLIF($4,'')::uuid, error=NULLIF($5,''), metrics=$6, finished_at=now()
		WHERE tenant_id=$1 AND id=$2`,
		run.TenantID, run.ID, run.Status, run.SolutionID, run.Error, toJSON(run.Metrics))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanRun(rows interface{ Scan(...any) error }) (model.Run, error) {
	var (
		r        model.Run
		solution sql.NullString
		errMsg   sql.NullString
		config   []byte
		metrics  []byte
		started  sql.NullTime
		finished sql.NullTime
	)
	if err := rows.Scan(&r.ID, &r.TenantID, &r.InstanceID, &r.Status, &solution, &errMsg, &config, &metrics, &started, &finished); err != nil {
		return model.Run{}, err
	}
	r.SolutionID = solution.String
	r.Error = errMsg.String
	if len(config) > 0 {
		_ = json.Unmarshal(config, &r.Config)
	}
	if len(metrics) > 0 {
		_ = json.Unmarshal(metrics, &r.Metrics)
	}
	if started.Valid {
		r.StartedAt = started.Time.UTC().Format(time.RFC3339)
	}
	if finished.Valid {
		r.FinishedAt = finished.Time.UTC().Format(time.RFC3339)
	}
	return r, nil
}

const runCols = `id, tenant_id, instance_id, status, solution_id::text, error, config, metrics, started_at, finished_at`

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	r, err := p.scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.Run, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+runCols+` FROM runs
		WHERE tenant_id=$1 AND ($2 = '' OR instance_id=$2::uuid)
		AND ($3 = '' OR created_at > (SELECT created_at FROM runs WHERE id=$3::uuid))
		ORDER BY created_at ASC LIMIT $4`, tenantID, instanceID, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := p.scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) SaveSolution(ctx context.Context, tenantID string, sol model.SolutionOut) (model.SolutionOut, error) {
	if sol.ID == "" {
		sol.ID = uuid.New().String()
	}
	sol.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO solutions (id, tenant_id, instance_id, producer, payload, total_cost)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		sol.ID, tenantID, sol.InstanceID, sol.Producer, toJSON(sol), sol.TotalCost)
	if err != nil {
		return model.SolutionOut{}, err
	}
	return sol, nil
}

func (p *Postgres) GetSolution(ctx context.Context, tenantID, id string) (model.SolutionOut, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM solutions WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SolutionOut{}, ErrNotFound
	}
	if err != nil {
		return model.SolutionOut{}, err
	}
	var sol model.SolutionOut
	if err := json.Unmarshal(payload, &sol); err != nil {
		return model.SolutionOut{}, err
	}
	return sol, nil
}

func (p *Postgres) BestSolution(ctx context.Context, tenantID, instanceID, producer string) (model.SolutionOut, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT payload FROM solutions
		WHERE tenant_id=$1 AND instance_id=$2 AND ($3 = '' OR producer=$3)
		ORDER BY total_cost ASC, created_at ASC LIMIT 1`,
		tenantID, instanceID, producer).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SolutionOut{}, ErrNotFound
	}
	if err != nil {
		return model.SolutionOut{}, err
	}
	var sol model.SolutionOut
	if err := json.Unmarshal(payload, &sol); err != nil {
		return model.SolutionOut{}, err
	}
	return sol, nil
}

func (p *Postgres) SaveRunMetrics(ctx context.Context, tenantID, instanceID, algo string, metrics map[string]any) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO run_metrics (tenant_id, instance_id, algo, metrics) VALUES ($1,$2,$3,$4)`,
		tenantID, instanceID, algo, toJSON(metrics))
	return err
}

func (p *Postgres) ListRunMetrics(ctx context.Context, tenantID, instanceID string) ([]map[string]any, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT algo, metrics, created_at FROM run_metrics
		WHERE tenant_id=$1 AND instance_id=$2 ORDER BY created_at ASC`, tenantID, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var (
			algo    string
			blob    []byte
			created time.Time
		)
		if err := rows.Scan(&algo, &blob, &created); err != nil {
			return nil, err
		}
		entry := map[string]any{}
		_ = json.Unmarshal(blob, &entry)
		entry["algo"] = algo
		entry["ts"] = created.UTC().Format(time.RFC3339)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		sub.ID, sub.TenantID, sub.URL, toJSON(sub.Events), sub.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var (
			s      model.Subscription
			events []byte
			secret sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.URL, &events, &secret); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		s.Secret = secret.String
		_ = json.Unmarshal(events, &s.Events)
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, url, events, secret FROM subscriptions
		WHERE tenant_id=$1 AND ($2 = '' OR id > $2::uuid) ORDER BY id ASC LIMIT $3`,
		tenantID, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var (
			s      model.Subscription
			events []byte
			secret sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.URL, &events, &secret); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		s.Secret = secret.String
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending')`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, subscription_id, event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries
		WHERE status='pending' AND next_attempt_at <= now()
		ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE webhook_deliveries
			SET status='delivered', attempts=attempts+1, last_error=NULLIF($2,''), response_code=$3, latency_ms=$4, delivered_at=now()
			WHERE id=$1`, id, lastError, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET attempts=attempts+1, next_attempt_at=COALESCE($2, next_attempt_at), last_error=NULLIF($3,''), response_code=$4, latency_ms=$5
		WHERE id=$1`, id, nextAttemptAt, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status='failed', attempts=attempts+1, last_error=NULLIF($2,''), response_code=$3, latency_ms=$4
		WHERE id=$1`, id, lastError, responseCode, latencyMs)
	return err
}
