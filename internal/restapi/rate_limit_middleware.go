package restapi

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"tempo.transitdata.org/internal/clock"
	"tempo.transitdata.org/internal/models"
)

// clientInactivityThreshold is how long a client can be idle before its
// limiter state is dropped.
const clientInactivityThreshold = 10 * time.Minute

// rateLimitClient tracks the limiter and last activity for one client IP.
type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimitMiddleware enforces a per-client-IP request rate on the whole
// API. Exempt IPs (health checkers, internal probes) bypass the limiter.
type RateLimitMiddleware struct {
	ratePerInterval int
	interval        time.Duration
	exemptIPs       map[string]struct{}
	clock           clock.Clock

	mu      sync.Mutex
	clients map[string]*rateLimitClient

	cleanupOnce sync.Once
	stopCleanup chan struct{}
}

func NewRateLimitMiddleware(ratePerInterval int, interval time.Duration, exemptIPs []string, clk clock.Clock) *RateLimitMiddleware {
	exempt := make(map[string]struct{}, len(exemptIPs))
	for _, ip := range exemptIPs {
		exempt[ip] = struct{}{}
	}
	return &RateLimitMiddleware{
		ratePerInterval: ratePerInterval,
		interval:        interval,
		exemptIPs:       exempt,
		clock:           clk,
		clients:         make(map[string]*rateLimitClient),
		stopCleanup:     make(chan struct{}),
	}
}

// Handler returns the middleware function and starts the background
// cleanup of idle client entries.
func (m *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	m.cleanupOnce.Do(func() {
		go m.cleanupLoop()
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if _, exempt := m.exemptIPs[ip]; exempt {
				next.ServeHTTP(w, r)
				return
			}

			if !m.allow(ip) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(models.ResponseModel{
					Code:        http.StatusTooManyRequests,
					CurrentTime: models.ResponseCurrentTime(m.clock),
					Text:        "rate limit exceeded",
					Version:     2,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *RateLimitMiddleware) allow(ip string) bool {
	m.mu.Lock()
	client, ok := m.clients[ip]
	if !ok {
		limit := rate.Every(m.interval / time.Duration(m.ratePerInterval))
		client = &rateLimitClient{limiter: rate.NewLimiter(limit, m.ratePerInterval)}
		m.clients[ip] = client
	}
	m.mu.Unlock()

	client.lastSeen.Store(m.clock.Now().UnixNano())
	return client.limiter.Allow()
}

func (m *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			m.removeIdleClients()
		}
	}
}

func (m *RateLimitMiddleware) removeIdleClients() {
	cutoff := m.clock.Now().Add(-clientInactivityThreshold).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()
	for ip, client := range m.clients {
		if client.lastSeen.Load() < cutoff {
			delete(m.clients, ip)
		}
	}
}

// Stop terminates the background cleanup goroutine.
func (m *RateLimitMiddleware) Stop() {
	close(m.stopCleanup)
}

// clientIP extracts the remote host, falling back to the raw RemoteAddr
// when it carries no port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
