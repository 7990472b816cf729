// Package health serves /livez and /readyz for the checkout API.
//
// Checks run on a ticker in the background and the endpoints only report
// the last observed state, so a slow database never slows down a probe.
// A check flips to unhealthy after a run of consecutive failures and back
// after a run of consecutive successes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the component is healthy.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

// drainingKey is reported by /readyz while the server is not marked ready.
const drainingKey = "_readiness"

// Option tunes a single check.
type Option func(*check)

// WithThresholds sets how many consecutive failures mark a check unhealthy
// and how many successes mark it healthy again. Defaults are 3 and 1.
func WithThresholds(failures, successes int) Option {
	return func(c *check) {
		c.failAfter = max(1, failures)
		c.passAfter = max(1, successes)
	}
}

type check struct {
	name      string
	timeout   time.Duration
	fn        CheckFunc
	failAfter int
	passAfter int

	// Written by the check goroutine, read by probe handlers.
	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Owned by the check goroutine.
	fails, passes int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.observe(c.fn(ctx))
}

func (c *check) observe(err error) {
	c.lastErr.Store(&err)
	if err != nil {
		c.passes = 0
		if c.fails++; c.fails >= c.failAfter {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	if c.passes++; c.passes >= c.passAfter {
		c.healthy.Store(true)
	}
}

// failure returns the message to report, or "" when the check is healthy.
func (c *check) failure() string {
	if c.healthy.Load() {
		return ""
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error()
	}
	return "check is unhealthy"
}

// Health holds the registered checks and the server's own readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks map[Probe][]*check
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{checks: make(map[Probe][]*check)}
}

// Add registers a check for probe. Checks start healthy.
func (h *Health) Add(probe Probe, name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	c := &check{name: name, timeout: timeout, fn: fn, failAfter: 3, passAfter: 1}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[probe] = append(h.checks[probe], c)
}

// AddLivenessCheck registers a process-level check such as a goroutine leak
// detector.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	h.Add(Liveness, name, timeout, fn, opts...)
}

// AddReadinessCheck registers a dependency check such as the database ping.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	h.Add(Readiness, name, timeout, fn, opts...)
}

func (h *Health) snapshot(probe Probe) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*check(nil), h.checks[probe]...)
}

// Start runs every check once immediately and then every interval until
// Stop or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	var all []*check
	for _, cs := range h.checks {
		all = append(all, cs...)
	}
	h.mu.Unlock()

	for _, c := range all {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop cancels the check goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady marks the server ready after startup, and not ready when it
// starts draining on shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the server is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(failures(h.snapshot(Readiness))) == 0
}

func failures(checks []*check) map[string]string {
	out := make(map[string]string)
	for _, c := range checks {
		if msg := c.failure(); msg != "" {
			out[c.name] = msg
		}
	}
	return out
}

// LiveEndpoint answers 200 {"status":"ok"} or 503 with the failing checks.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, failures(h.snapshot(Liveness)))
}

// ReadyEndpoint is LiveEndpoint for readiness checks, and also fails while
// the server is not marked ready.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(Readiness))
	if !h.ready.Load() {
		failed[drainingKey] = "service is not ready"
	}
	writeReport(w, failed)
}

// Register mounts /livez and /readyz on mux.
func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /livez", h.LiveEndpoint)
	mux.HandleFunc("GET /readyz", h.ReadyEndpoint)
}

type report struct {
	Status string
	Checks map[string]string
}

func (r *report) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("status")
	e.Str(r.Status)
	if len(r.Checks) > 0 {
		names := make([]string, 0, len(r.Checks))
		for name := range r.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(r.Checks[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func (r *report) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "status":
			r.Status, err = d.Str()
		case "checks":
			r.Checks = map[string]string{}
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				v, err := d.Str()
				r.Checks[string(key)] = v
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
}

func writeReport(w http.ResponseWriter, failed map[string]string) {
	r, status := report{Status: "ok"}, http.StatusOK
	if len(failed) > 0 {
		r, status = report{Status: "unhealthy", Checks: failed}, http.StatusServiceUnavailable
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	r.Encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
