package opt

import "sync"

type key struct {
	Tenant     string
	InstanceID string
	Algo       string
}

var (
	mu   sync.Mutex
	runs = map[key]Metrics{}
)

// RecordMetrics keeps the latest run metrics per (tenant, instance, algo) for
// the admin metrics endpoint; the store persists the durable copy.
func RecordMetrics(tenant, instanceID, algo string, m Metrics) {
	mu.Lock()
	runs[key{Tenant: tenant, InstanceID: instanceID, Algo: algo}] = m
	mu.Unlock()
}

// GetMetrics returns recorded metrics for a tenant/instance keyed by algorithm.
func GetMetrics(tenant, instanceID string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range runs {
		if k.Tenant == tenant && k.InstanceID == instanceID {
			out[k.Algo] = v
		}
	}
	return out
}
