// Package proxy implements spec §4.6: the Proxy Middleware that
// orchestrates the pipeline per request, forwards allowed traffic, and
// renders denial responses. Grounded on the teacher's
// internal/proxy/proxy.go and internal/proxy/handler.go (dynamic
// httputil.ReverseProxy Director/ErrorHandler, rulesMutex-guarded reload
// cache) and original_source/waf_proxy/middleware.py for the pipeline
// ordering and skip-list.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wafgateway/internal/access"
	"wafgateway/internal/configcache"
	"wafgateway/internal/core"
	"wafgateway/internal/ruleengine"
	"wafgateway/internal/sink"
	"wafgateway/internal/telemetry"
	"wafgateway/pkg/response"
)

const maxBodyBytes = 1 << 20 // 1 MiB read cap; scan surface truncates further to 10,000 chars.

// skipPrefixes is the exact skip list from spec §4.6.
var skipPrefixes = []string{
	"/health", "/metrics", "/docs", "/redoc", "/ws", "/static/", "/verify-recaptcha", "/favicon.ico",
}

// IsSkipPath reports whether path bypasses the WAF pipeline entirely.
func IsSkipPath(path string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware is the Proxy Middleware component: the per-request
// orchestrator tying every other component together.
type Middleware struct {
	cache   *configcache.Cache
	access  *access.Controls
	engine  *ruleengine.Engine
	hub     *telemetry.Hub
	sink    *sink.Sink
	log     *zap.SugaredLogger
	timeout time.Duration
}

// New builds a Middleware. timeout is the total upstream-forward budget
// (spec §4.6: 30s default).
func New(cache *configcache.Cache, acc *access.Controls, engine *ruleengine.Engine, hub *telemetry.Hub, evtSink *sink.Sink, log *zap.SugaredLogger, timeout time.Duration) *Middleware {
	return &Middleware{cache: cache, access: acc, engine: engine, hub: hub, sink: evtSink, log: log, timeout: timeout}
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if IsSkipPath(r.URL.Path) {
		// /health, /ws and /verify-recaptcha are served by their own
		// handlers on the mux; the other skip-list paths (and sub-paths
		// of all of them) reach here. No WAF checks, no broadcast,
		// forwarded unchanged if a tenant is configured.
		host := configcache.NormalizeHost(r.Host)
		cfg, err := m.cache.Get(r.Context(), host)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		m.forward(w, r, cfg)
		return
	}

	arrived := time.Now()
	clientIP := ResolveClientIP(r)
	host := configcache.NormalizeHost(r.Host)

	ctx := r.Context()
	cfg, err := m.cache.Get(ctx, host)
	if errors.Is(err, core.ErrNotConfigured) {
		response.Error(w, m.log, http.StatusNotFound, "Service not configured", "No WAF configuration found for "+host)
		return
	}
	if err != nil {
		m.log.Warnw("config cache unavailable with no cached fallback", "host", host, "error", err)
		response.Error(w, m.log, http.StatusServiceUnavailable, "Service unavailable", "Configuration temporarily unavailable")
		return
	}

	rc := m.buildRequestContext(r, clientIP, host, arrived)

	decision := m.access.CheckIPBlacklist(clientIP, cfg)
	if !decision.Blocked {
		decision = m.access.CheckCountry(ctx, clientIP, cfg)
	}
	if !decision.Blocked {
		decision = m.engine.Check(ctx, rc, cfg.Rules)
	}

	m.hub.RecordRequest(arrived)

	if decision.Blocked {
		writeDenial(w, decision.Reason)
		m.emitBlockedAsync(cfg, rc, decision)
		m.broadcastAsync(cfg.TenantID, rc, decision)
		return
	}

	m.broadcastAsync(cfg.TenantID, rc, decision)
	m.forward(w, r, cfg)
}

// buildRequestContext reads the body non-destructively (restoring it for
// the upstream forward) and normalizes headers to lower-case keys.
func (m *Middleware) buildRequestContext(r *http.Request, clientIP, host string, arrived time.Time) core.RequestContext {
	var bodyStr string
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			// Malformed-input: unreadable body treated as empty, per spec §7.
			body = nil
		}
		bodyStr = string(body)
		r.Body = io.NopCloser(io.MultiReader(strings.NewReader(bodyStr), r.Body))
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	headers["host"] = r.Host

	return core.RequestContext{
		Method:      r.Method,
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		Body:        bodyStr,
		Headers:     headers,
		ClientIP:    clientIP,
		UserAgent:   r.Header.Get("User-Agent"),
		Host:        host,
		Arrived:     arrived,
	}
}

func (m *Middleware) emitBlockedAsync(cfg *core.TenantConfig, rc core.RequestContext, decision core.Decision) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.sink.Emit(ctx, core.SecurityEvent{
			ClientHost:  rc.Host,
			IPAddress:   rc.ClientIP,
			RequestPath: rc.Path,
			UserAgent:   rc.UserAgent,
			Reason:      decision.Reason,
			Method:      rc.Method,
			Blocked:     true,
		})
	}()
}

func (m *Middleware) broadcastAsync(tenantID string, rc core.RequestContext, decision core.Decision) {
	go m.hub.Broadcast(tenantID, telemetry.RequestEvent{
		ClientIP:   rc.ClientIP,
		Host:       rc.Host,
		Path:       rc.Path,
		Method:     rc.Method,
		UserAgent:  rc.UserAgent,
		WAFBlocked: decision.Blocked,
		ThreatType: decision.Reason,
		Timestamp:  rc.Arrived.Unix(),
		RuleID:     decision.RuleID,
	})
}

// forward proxies an allowed request to cfg.TargetURL, per spec §4.6:
// headers forwarded minus host/content-length, 30s total timeout, 503 on
// connect error, 500 on other upstream errors.
func (m *Middleware) forward(w http.ResponseWriter, r *http.Request, cfg *core.TenantConfig) {
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		response.Error(w, m.log, http.StatusInternalServerError, "Target URL not configured", "")
		return
	}

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
			req.Header.Del("Content-Length")
		},
		Transport: &http.Transport{ResponseHeaderTimeout: m.timeout},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(r.Context().Err(), context.Canceled) {
				return // client disconnected
			}
			if isConnectError(err) {
				http.Error(w, "upstream unreachable", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "upstream error", http.StatusInternalServerError)
		},
	}

	ctx, cancel := context.WithTimeout(r.Context(), m.timeout)
	defer cancel()
	rp.ServeHTTP(w, r.WithContext(ctx))
}

func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
