package api

import (
	"net"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds how many client buckets a Limiter remembers.
const DefaultMaxClients = 10000

// Limiter keeps one token bucket per client address. Only the most recently
// seen clients keep their buckets; an evicted client starts over with a full
// bucket.
type Limiter struct {
	mu           sync.Mutex
	clients      *lru.Cache
	defaultRate  rate.Limit
	defaultBurst int
}

func NewLimiter(requestsPerSecond float64, burst int, maxClients int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	// lru.New only fails for a non-positive size
	clients, _ := lru.New(maxClients)
	return &Limiter{
		clients:      clients,
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Allow reports whether the client may make a request now.
func (l *Limiter) Allow(client string) bool {
	return l.getLimiter(client).Allow()
}

// Len is the number of clients currently tracked.
func (l *Limiter) Len() int {
	return l.clients.Len()
}

func (l *Limiter) getLimiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.clients.Get(client); ok {
		return limiter.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.clients.Add(client, limiter)
	return limiter
}

// Middleware answers 429 once a client exhausts its bucket.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientAddress(r)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddress keys IPv4 clients by address and IPv6 clients by their /64,
// the smallest block a single site is normally given.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() != nil {
		return host
	}
	return ip.Mask(net.CIDRMask(64, 128)).String() + "/64"
}
