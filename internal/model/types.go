package model

// Wire schemas for the SD-VRP API.

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CustomerIn struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Demand int     `json:"demand"`
}

// InstanceIn is the logical instance schema: depot, customers, capacity, and
// the optional fleet cap, split cap and precomputed distance matrix.
type InstanceIn struct {
	Name        string       `json:"name,omitempty"`
	Depot       Point        `json:"depot"`
	Customers   []CustomerIn `json:"customers"`
	Capacity    int          `json:"capacity"`
	MaxVehicles int          `json:"maxVehicles,omitempty"`
	MaxSplits   int          `json:"maxSplits,omitempty"`
	Matrix      [][]float64  `json:"matrix,omitempty"`
}

type InstanceOut struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenantId"`
	Name        string       `json:"name,omitempty"`
	Depot       Point        `json:"depot"`
	Customers   []CustomerIn `json:"customers"`
	Capacity    int          `json:"capacity"`
	MaxVehicles int          `json:"maxVehicles,omitempty"`
	MaxSplits   int          `json:"maxSplits,omitempty"`
	TotalDemand int          `json:"totalDemand"`
	CreatedAt   string       `json:"createdAt,omitempty"`
}

// SolveRequest carries the configuration surface of one search run.
type SolveRequest struct {
	TenantID            string `json:"tenantId,omitempty"`
	InstanceID          string `json:"instanceId"`
	MaxIterations       int    `json:"maxIterations,omitempty"`
	MaxSeconds          int    `json:"maxSeconds,omitempty"`
	StagnationThreshold int    `json:"stagnationThreshold,omitempty"`
	TenureMin           int    `json:"tenureMin,omitempty"`
	TenureMax           int    `json:"tenureMax,omitempty"`
	Policy              string `json:"policy,omitempty"` // best | first
	Seed                int64  `json:"seed,omitempty"`
	Workers             int    `json:"workers,omitempty"`
	Wait                bool   `json:"wait,omitempty"` // block until the run finishes
}

type StopOut struct {
	Customer int `json:"customer"`
	Quantity int `json:"quantity"`
}

type RouteOut struct {
	Stops    []StopOut `json:"stops"`
	Load     int       `json:"load"`
	Distance float64   `json:"distance"`
}

// SolutionOut is the canonical solution schema shared by the tabu search and
// the external exact-solver path.
type SolutionOut struct {
	ID         string     `json:"id,omitempty"`
	InstanceID string     `json:"instanceId"`
	Producer   string     `json:"producer"` // tabu | exact
	Routes     []RouteOut `json:"routes"`
	TotalCost  float64    `json:"totalCost"`
	Deliveries int        `json:"deliveries"`
	TruckLoads []int      `json:"truckLoads"`
	CreatedAt  string     `json:"createdAt,omitempty"`
}

// ExternalSolutionIn submits a solution produced outside the core (the exact
// MIP path); it must satisfy the same feasibility invariants.
type ExternalSolutionIn struct {
	TenantID   string     `json:"tenantId,omitempty"`
	InstanceID string     `json:"instanceId"`
	Producer   string     `json:"producer,omitempty"`
	Routes     []RouteOut `json:"routes"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one solve invocation and its outcome.
type Run struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenantId"`
	InstanceID string         `json:"instanceId"`
	Status     RunStatus      `json:"status"`
	SolutionID string         `json:"solutionId,omitempty"`
	Error      string         `json:"error,omitempty"`
	Config     SolveRequest   `json:"config"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	StartedAt  string         `json:"startedAt,omitempty"`
	FinishedAt string         `json:"finishedAt,omitempty"`
}

// Comparison pairs the best metaheuristic and exact solutions of an instance.
type Comparison struct {
	InstanceID string       `json:"instanceId"`
	Tabu       *SolutionOut `json:"tabu,omitempty"`
	Exact      *SolutionOut `json:"exact,omitempty"`
	GapPct     *float64     `json:"gapPct,omitempty"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
