package api

import (
	"net/http"
	"os"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit applies a per-tenant token bucket configured by RATE_RPS and
// RATE_BURST. RATE_RPS=0 disables limiting.
func RateLimit(next http.Handler) http.Handler {
	rps := 0.0
	if v := os.Getenv("RATE_RPS"); v != "" {
		rps, _ = strconv.ParseFloat(v, 64)
	}
	if rps <= 0 {
		return next
	}
	burst := int(rps)
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	if burst < 1 {
		burst = 1
	}
	var (
		mu       sync.Mutex
		limiters = map[string]*rate.Limiter{}
	)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-Tenant-Id")
		if tenant == "" {
			tenant = "t_demo"
		}
		mu.Lock()
		lim := limiters[tenant]
		if lim == nil {
			lim = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[tenant] = lim
		}
		mu.Unlock()
		if !lim.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
