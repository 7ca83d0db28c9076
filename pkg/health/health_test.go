package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func runTimes(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func serve(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, passing())
	h.AddLivenessCheck("db", time.Second, failing("connection refused"))

	w := serve(h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, w.Code, "checks start healthy")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	runTimes(h.liveness[1], failureThreshold-1)
	assert.Equal(t, http.StatusOK, serve(h.LiveEndpoint, "/livez").Code)

	runTimes(h.liveness[1], 1)
	w = serve(h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"db":"connection refused"}}`, w.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing())

	w := serve(h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(h.ReadyEndpoint, "/readyz").Code)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h.ReadyEndpoint, "/readyz").Code)
	assert.False(t, h.IsReady())
}

func TestReadyEndpoint_OptionalCheckDegrades(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing())
	h.AddOptionalCheck("redis", time.Second, failing("dial tcp: i/o timeout"))
	h.SetReady(true)

	runTimes(h.readiness[1], failureThreshold)

	w := serve(h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"redis":"degraded: dial tcp: i/o timeout"}}`, w.Body.String())
	assert.True(t, h.IsReady())
}

func TestReadyEndpoint_RequiredCheckFails(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, failing("too many connections"))
	h.AddOptionalCheck("redis", time.Second, passing())
	h.SetReady(true)

	runTimes(h.readiness[0], failureThreshold)

	w := serve(h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"postgres":"too many connections"}}`, w.Body.String())
	assert.False(t, h.IsReady())
}

func TestCheck_Recovers(t *testing.T) {
	down := true
	c := newCheck("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, false)

	assert.Nil(t, c.err())
	runTimes(c, failureThreshold)
	assert.False(t, c.healthy.Load())
	assert.EqualError(t, c.err(), "down")

	down = false
	runTimes(c, successThreshold)
	assert.True(t, c.healthy.Load())
	assert.NoError(t, c.err())
}

func TestCheck_Timeout(t *testing.T) {
	c := newCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, false)

	c.run(context.Background())
	require.ErrorIs(t, c.err(), context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(100000))
	h.AddReadinessCheck("postgres", time.Second, failing("err"))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				serve(h.LiveEndpoint, "/livez")
				serve(h.ReadyEndpoint, "/readyz")
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckers(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(context.Background()), "exceeds threshold")

	assert.NoError(t, PingCheck("postgres", pingerFunc(func(context.Context) error { return nil }))(context.Background()))
	assert.ErrorContains(t,
		PingCheck("postgres", pingerFunc(func(context.Context) error { return errors.New("refused") }))(context.Background()),
		"ping postgres",
	)
}
