package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter applies a per-client token bucket keyed by remote IP. State
// lives in process memory: running more than one instance needs an external
// shared limiter instead.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (cl *clientLimiter) allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	b, ok := cl.clients[host]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(cl.rps, cl.burst)}
		cl.clients[host] = b
	}
	b.lastSeen = time.Now()

	if len(cl.clients) > 1024 {
		cl.evictStale()
	}
	return b.lim.Allow()
}

// evictStale drops buckets idle for ten minutes. Caller holds mu.
func (cl *clientLimiter) evictStale() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for host, b := range cl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(cl.clients, host)
		}
	}
}

func (cl *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cl.allow(r.RemoteAddr) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
