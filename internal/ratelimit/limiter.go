// Package ratelimit implements the gateway's admission control: a global ceiling
// and a per-client ceiling, each counted over fixed one-minute windows.
//
// The global window opens when the limiter is built. Windows are fixed buckets
// that reset on the first request after they expire, not sliding windows. A burst straddling a boundary can therefore be
// admitted at up to twice the nominal rate.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/codyseavey/kaiwa/internal/metrics"
)

const (
	DefaultGlobalLimit = 700
	DefaultClientLimit = 30
	DefaultWindow      = time.Minute

	// UnknownIdentity is used when a caller's address cannot be determined.
	// Such requests only count against the global window.
	UnknownIdentity = "unknown"

	GlobalLimitMessage = "Global rate limit exceeded. Please try again later."
	ClientLimitMessage = "Rate limit exceeded. Please try again later."
)

// Result is the outcome of an admission check.
type Result int

const (
	Allowed Result = iota
	DeniedGlobal
	DeniedClient
)

func (r Result) String() string {
	switch r {
	case Allowed:
		return "allowed"
	case DeniedGlobal:
		return "denied_global"
	case DeniedClient:
		return "denied_client"
	default:
		return "unknown"
	}
}

// Decision describes an admission check. Message and RetryAfter are only set on denial.
type Decision struct {
	Result     Result
	Message    string
	RetryAfter time.Duration
}

// Allowed reports whether the request was admitted.
func (d Decision) Allowed() bool {
	return d.Result == Allowed
}

// Config sets the ceilings. Zero values fall back to the defaults.
type Config struct {
	GlobalLimit int
	ClientLimit int
	Window      time.Duration
	Start       time.Time // opens the first global window; zero means time.Now()
}

type window struct {
	count int
	start time.Time
}

func (w *window) expired(now time.Time, length time.Duration) bool {
	return now.Sub(w.start) >= length
}

func (w *window) reset(now time.Time) {
	w.count = 0
	w.start = now
}

func (w *window) resetsIn(now time.Time, length time.Duration) time.Duration {
	remaining := w.start.Add(length).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Limiter tracks the global window and one window per client identity.
// A single mutex guards both and is held only for the check-and-increment.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	global  window
	clients map[string]*window
}

// New creates a limiter whose first global window opens at cfg.Start.
func New(cfg Config) *Limiter {
	if cfg.GlobalLimit <= 0 {
		cfg.GlobalLimit = DefaultGlobalLimit
	}
	if cfg.ClientLimit <= 0 {
		cfg.ClientLimit = DefaultClientLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	return &Limiter{
		cfg:     cfg,
		global:  window{start: cfg.Start},
		clients: make(map[string]*window),
	}
}

// Config returns the effective limits.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Admit decides whether a request from identity may proceed at time now.
// A denied request is not counted against any window.
func (l *Limiter) Admit(identity string, now time.Time) Decision {
	d := l.admit(identity, now)
	metrics.RateLimitDecisions.WithLabelValues(d.Result.String()).Inc()
	return d
}

func (l *Limiter) admit(identity string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.global.expired(now, l.cfg.Window) {
		l.global.reset(now)
	}
	if l.global.count >= l.cfg.GlobalLimit {
		return Decision{
			Result:     DeniedGlobal,
			Message:    GlobalLimitMessage,
			RetryAfter: l.global.resetsIn(now, l.cfg.Window),
		}
	}

	if identity == "" || identity == UnknownIdentity {
		l.global.count++
		return Decision{Result: Allowed}
	}

	w, ok := l.clients[identity]
	if !ok {
		w = &window{}
		l.clients[identity] = w
		w.reset(now)
	} else if w.expired(now, l.cfg.Window) {
		w.reset(now)
	}

	if w.count >= l.cfg.ClientLimit {
		return Decision{
			Result:     DeniedClient,
			Message:    ClientLimitMessage,
			RetryAfter: w.resetsIn(now, l.cfg.Window),
		}
	}

	l.global.count++
	w.count++
	return Decision{Result: Allowed}
}

// Sweep drops client windows that have expired. An expired window would be
// reset on the client's next request anyway, so sweeping never changes a decision.
// It returns the number of windows removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, w := range l.clients {
		if w.expired(now, l.cfg.Window) {
			delete(l.clients, identity)
			removed++
		}
	}
	return removed
}

// Run sweeps expired client windows every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.cfg.Window
	}
	cfg := l.Config()
	log.Printf("Rate limiter sweeper started: interval=%s, global=%d/%s, client=%d/%s",
		interval, cfg.GlobalLimit, cfg.Window, cfg.ClientLimit, cfg.Window)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Rate limiter sweeper stopping...")
			return
		case now := <-ticker.C:
			if removed := l.Sweep(now); removed > 0 {
				log.Printf("Rate limiter: swept %d expired client windows (%d remaining)", removed, l.TrackedClients())
			}
			metrics.RateLimitTrackedClients.Set(float64(l.TrackedClients()))
		}
	}
}

// TrackedClients returns the number of client windows held in memory.
func (l *Limiter) TrackedClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// GlobalCount returns the requests counted in the current global window, or 0 if it has expired.
func (l *Limiter) GlobalCount(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global.expired(now, l.cfg.Window) {
		return 0
	}
	return l.global.count
}

// Snapshot is a read-only view of limiter state for operators.
type Snapshot struct {
	GlobalCount       int       `json:"global_count"`
	GlobalLimit       int       `json:"global_limit"`
	ClientLimit       int       `json:"client_limit"`
	WindowSeconds     float64   `json:"window_seconds"`
	GlobalWindowStart time.Time `json:"global_window_start"`
	GlobalResetsIn    float64   `json:"global_resets_in_seconds"`
	TrackedClients    int       `json:"tracked_clients"`
}

// Snapshot returns the current state without mutating it.
func (l *Limiter) Snapshot(now time.Time) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		GlobalLimit:       l.cfg.GlobalLimit,
		ClientLimit:       l.cfg.ClientLimit,
		WindowSeconds:     l.cfg.Window.Seconds(),
		GlobalWindowStart: l.global.start,
		TrackedClients:    len(l.clients),
	}
	if !l.global.expired(now, l.cfg.Window) {
		s.GlobalCount = l.global.count
		s.GlobalResetsIn = l.global.resetsIn(now, l.cfg.Window).Seconds()
	}
	return s
}
