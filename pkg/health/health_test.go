package health

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, handler http.HandlerFunc) (int, report) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var r report
	require.NoError(t, r.Decode(jx.DecodeBytes(w.Body.Bytes())))
	return w.Code, r
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	for _, tt := range []struct {
		name   string
		runs   int
		status int
		checks map[string]string
	}{
		{"NotRunYet", 0, http.StatusOK, nil},
		{"BelowThreshold", 2, http.StatusOK, nil},
		{"AtThreshold", 3, http.StatusServiceUnavailable, map[string]string{"postgres": "connection refused"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("gc", time.Second, passing)
			h.AddLivenessCheck("postgres", time.Second, failing("connection refused"))
			runN(h.checks[Liveness][1], tt.runs)

			status, r := serve(t, h.LiveEndpoint)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.checks, r.Checks)
			if tt.status == http.StatusOK {
				assert.Equal(t, "ok", r.Status)
			} else {
				assert.Equal(t, "unhealthy", r.Status)
			}
		})
	}
}

func TestLiveEndpoint_NoChecks(t *testing.T) {
	status, r := serve(t, New().LiveEndpoint)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", r.Status)
}

func TestReadyEndpoint_Draining(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing)

	status, r := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, map[string]string{drainingKey: "service is not ready"}, r.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(true)
	status, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	status, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, h.IsReady())
}

func TestReadyEndpoint_OneFailing(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing)
	h.AddReadinessCheck("psp", time.Second, failing("dial timeout"), WithThresholds(1, 1))
	h.SetReady(true)
	runN(h.checks[Readiness][1], 1)

	status, r := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, map[string]string{"psp": "dial timeout"}, r.Checks)
	assert.False(t, h.IsReady())
}

func TestCheck_Thresholds(t *testing.T) {
	c := &check{name: "db", failAfter: 2, passAfter: 2}
	c.healthy.Store(true)
	assert.Empty(t, c.failure())

	c.observe(errors.New("down"))
	assert.Empty(t, c.failure(), "one failure is tolerated")
	c.observe(errors.New("still down"))
	assert.Equal(t, "still down", c.failure())

	c.observe(nil)
	assert.Equal(t, "check is unhealthy", c.failure(), "needs two passes to recover")
	c.observe(errors.New("down"))
	c.observe(nil)
	c.observe(nil)
	assert.Empty(t, c.failure())
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithThresholds(1, 1))
	c := h.checks[Readiness][0]
	runN(c, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), c.failure())
}

func TestStartStop(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.AddLivenessCheck("tick", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), time.Hour)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check did not run on start")
	}
	h.Stop()
	h.Stop()
}

func TestConcurrentProbes(t *testing.T) {
	h := New()
	h.AddLivenessCheck("flaky", time.Second, failing("err"), WithThresholds(1, 1))
	h.AddReadinessCheck("postgres", time.Second, passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	ok := PingCheck("postgres", pingerFunc(func(context.Context) error { return nil }))
	require.NoError(t, ok(context.Background()))

	down := PingCheck("postgres", pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))
	assert.EqualError(t, down(context.Background()), "ping postgres: connection refused")
}

func TestRegister(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, failing("connection refused"))
	runN(h.checks[Readiness][0], 3)
	h.SetReady(true)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	live, err := http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	_ = live.Body.Close()
	assert.Equal(t, http.StatusOK, live.StatusCode)

	ready, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer func() { _ = ready.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, ready.StatusCode)

	data, err := io.ReadAll(ready.Body)
	require.NoError(t, err)
	var r report
	require.NoError(t, r.Decode(jx.DecodeBytes(data)))
	assert.Equal(t, map[string]string{"postgres": "connection refused"}, r.Checks)
}
