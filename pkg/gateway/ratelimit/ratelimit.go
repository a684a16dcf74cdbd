// Package ratelimit budgets uploads per client with a token bucket and a
// concurrency cap. State is in-process only.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	MaxConcurrent int

	// Bounds for the client map.
	MaxEntries int
	EntryTTL   time.Duration
}

// Enabled reports whether cfg limits anything.
func (cfg Config) Enabled() bool {
	return (cfg.RPS > 0 && cfg.Burst > 0) || cfg.MaxConcurrent > 0
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*clientLimiter
}

type clientLimiter struct {
	mu       sync.Mutex
	tokens   float64
	last     time.Time
	inFlight chan struct{}
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{cfg: cfg, m: make(map[string]*clientLimiter)}
}

// ClientKey identifies the caller: a hash of its bearer token when it sent
// one, else its remote IP.
func ClientKey(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok && strings.TrimSpace(token) != "" {
		sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
		return "k_" + hex.EncodeToString(sum[:16])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip_" + host
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int // seconds
	Permit     *Permit
}

// Acquire spends one token and takes a concurrency slot for client. The
// caller releases the permit when the request finishes.
func (l *Limiter) Acquire(client string, now time.Time) Decision {
	if client == "" {
		client = "anonymous"
	}
	cl := l.get(client, now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		if ok, retryAfter := cl.take(now, l.cfg.RPS, l.cfg.Burst); !ok {
			return Decision{RetryAfter: retryAfter}
		}
	}
	if cl.inFlight == nil {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	select {
	case cl.inFlight <- struct{}{}:
		return Decision{Allowed: true, Permit: &Permit{release: func() { <-cl.inFlight }}}
	default:
		return Decision{RetryAfter: 1}
	}
}

func (l *Limiter) get(client string, now time.Time) *clientLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.m[client]; ok {
		cl.lastSeen = now
		return cl
	}
	if len(l.m) >= l.cfg.MaxEntries {
		for k, v := range l.m {
			if now.Sub(v.lastSeen) > l.cfg.EntryTTL && len(v.inFlight) == 0 {
				delete(l.m, k)
			}
		}
	}
	cl := &clientLimiter{tokens: float64(l.cfg.Burst), last: now, lastSeen: now}
	if l.cfg.MaxConcurrent > 0 {
		cl.inFlight = make(chan struct{}, l.cfg.MaxConcurrent)
	}
	l.m[client] = cl
	return cl
}

func (cl *clientLimiter) take(now time.Time, rps float64, burst int) (bool, int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	capacity := float64(burst)
	if elapsed := now.Sub(cl.last).Seconds(); elapsed > 0 {
		cl.tokens = math.Min(capacity, cl.tokens+elapsed*rps)
		cl.last = now
	}
	if cl.tokens >= 1 {
		cl.tokens--
		return true, 0
	}
	retryAfter := int(math.Ceil((1 - cl.tokens) / rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
