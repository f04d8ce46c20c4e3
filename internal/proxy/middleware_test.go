package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wafgateway/internal/access"
	"wafgateway/internal/configcache"
	"wafgateway/internal/core"
	"wafgateway/internal/kv"
	"wafgateway/internal/ratelimiter"
	"wafgateway/internal/ruleengine"
	"wafgateway/internal/sink"
	"wafgateway/internal/telemetry"
)

func noopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

type fakeFetcher struct {
	cfg *core.TenantConfig
}

func (f *fakeFetcher) GetTenantConfig(_ context.Context, _ string) (*core.TenantConfig, error) {
	if f.cfg == nil {
		return nil, core.ErrNotConfigured
	}
	return f.cfg, nil
}

type fakeGeo struct{}

func (fakeGeo) GetGeolocation(context.Context, string) (*core.GeolocationRecord, error) {
	return &core.GeolocationRecord{CountryCode: "US"}, nil
}

type fakeEmitter struct{ calls int }

func (f *fakeEmitter) EmitSecurityEvent(context.Context, core.SecurityEvent) error {
	f.calls++
	return nil
}

func newTestMiddleware(t *testing.T, cfg *core.TenantConfig) (*Middleware, *fakeEmitter) {
	t.Helper()
	store := kv.NewMemoryStore()
	log := noopLogger()

	cache := configcache.New(store, &fakeFetcher{cfg: cfg}, 5*time.Minute, log)
	limiter := ratelimiter.New(store)
	controls := access.New(fakeGeo{}, log)
	engine := ruleengine.New(limiter, nil, log)
	hub := telemetry.New(log)
	emitter := &fakeEmitter{}
	evtSink := sink.New(emitter, log)

	return New(cache, controls, engine, hub, evtSink, log, 30*time.Second), emitter
}

func tenantConfig(target string) *core.TenantConfig {
	return &core.TenantConfig{
		TenantID:  "tenant-1",
		Host:      "app.example.com",
		TargetURL: target,
		Rules: []core.Rule{
			{ID: "r1", Kind: core.RuleSQLInjection, Value: "' OR '1'='1", Severity: core.SeverityCritical, Active: true},
		},
	}
}

func TestMiddleware_UnconfiguredHostReturns404JSON(t *testing.T) {
	mw, _ := newTestMiddleware(t, nil)

	r := httptest.NewRequest(http.MethodGet, "http://unknown.example.com/anything", nil)
	r.Host = "unknown.example.com"
	w := httptest.NewRecorder()

	mw.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "\"error\"")
}

func TestMiddleware_BlocksSQLInjectionWithoutReachingUpstream(t *testing.T) {
	upstreamHit := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	mw, emitter := newTestMiddleware(t, tenantConfig(upstream.URL))

	r := httptest.NewRequest(http.MethodGet, "http://app.example.com/search?q=%27+OR+%271%27%3D%271", nil)
	r.Host = "app.example.com"
	w := httptest.NewRecorder()

	mw.ServeHTTP(w, r)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.False(t, upstreamHit)
	require.Eventually(t, func() bool { return emitter.calls == 1 }, time.Second, 10*time.Millisecond)
}

func TestMiddleware_AllowsBenignRequestAndForwardsUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	mw, _ := newTestMiddleware(t, tenantConfig(upstream.URL))

	r := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	r.Host = "app.example.com"
	w := httptest.NewRecorder()

	mw.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello", w.Body.String())
}

func TestMiddleware_UpstreamUnreachableReturns503(t *testing.T) {
	mw, _ := newTestMiddleware(t, tenantConfig("http://127.0.0.1:1"))

	r := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	r.Host = "app.example.com"
	w := httptest.NewRecorder()

	mw.ServeHTTP(w, r)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIsSkipPath_MatchesSpecList(t *testing.T) {
	for _, p := range []string{"/health", "/metrics", "/docs", "/redoc", "/ws", "/static/app.js", "/verify-recaptcha", "/favicon.ico"} {
		require.True(t, IsSkipPath(p), p)
	}
	require.False(t, IsSkipPath("/search"))
}
