package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "matchwatch/pkg/logx"
)

func get(t *testing.T, url, token string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "matchwatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	var down atomic.Bool
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}, Sources{
		Health: func() Health {
			if down.Load() {
				return Health{Problems: []string{"store unreadable"}}
			}
			return Health{}
		},
		Status:   func() any { return map[string]int{"cycles": 3} },
		Gatherer: reg,
	}, logx.Nop())
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop(context.Background()) })
	base := "http://" + svc.Addr()

	resp, body := get(t, base+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"ok": true`)

	down.Store(true)
	resp, _ = get(t, base+"/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body = get(t, base+"/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st map[string]int
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, 3, st["cycles"])

	_, body = get(t, base+"/metrics", "")
	assert.Contains(t, body, "matchwatch_test_total 1")

	resp, _ = get(t, base+"/debug/pprof/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerTokenAndBindSafety(t *testing.T) {
	svc := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	require.ErrorIs(t, svc.Start(context.Background()), ErrInsecureBind)
	assert.Empty(t, svc.Addr())

	svc = New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}, Sources{}, logx.Nop())
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop(context.Background()) })
	base := "http://" + svc.Addr()

	resp, _ := get(t, base+"/healthz", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = get(t, base+"/healthz", "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, base+"/healthz?token=s3cret", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, base+"/debug/pprof/", "s3cret")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "pprof off by default")
}

func TestReconfigureStopsAndRestarts(t *testing.T) {
	svc := New(Config{}, Sources{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, svc.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}))
	first := svc.Addr()
	require.NotEmpty(t, first)

	require.NoError(t, svc.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}))
	require.NotEmpty(t, svc.Addr())

	require.NoError(t, svc.Reconfigure(ctx, Config{}))
	assert.Empty(t, svc.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	assert.True(t, isLoopbackAddr("127.0.0.1:6060"))
	assert.True(t, isLoopbackAddr("localhost:6060"))
	assert.True(t, isLoopbackAddr("[::1]:6060"))
	assert.False(t, isLoopbackAddr(":6060"))
	assert.False(t, isLoopbackAddr("0.0.0.0:6060"))
	assert.False(t, isLoopbackAddr("garbage"))
}
