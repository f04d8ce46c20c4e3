// Package configcache implements spec §4.1: a KV-store-backed cache of
// per-host TenantConfig with positive and negative TTLs, so multiple
// proxy workers share warm entries instead of each hitting the control
// plane. Grounded on original_source/waf_proxy/services.py's
// get_client_configuration cache-key/TTL/corrupt-entry handling.
package configcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"wafgateway/internal/core"
	"wafgateway/internal/kv"
	"wafgateway/internal/logging"
)

const negativeSentinel = `{"error":"not_found"}`

// Fetcher is the subset of controlplane.Client the cache needs; an
// interface so tests can fake the control plane without HTTP.
type Fetcher interface {
	GetTenantConfig(ctx context.Context, host string) (*core.TenantConfig, error)
}

// Cache is the Config Cache component.
type Cache struct {
	store       kv.Store
	fetcher     Fetcher
	positiveTTL time.Duration
	negativeTTL time.Duration
	log         *zap.SugaredLogger
}

// New builds a Cache with the given positive TTL; the negative TTL is
// fixed at 60s per spec §3.
func New(store kv.Store, fetcher Fetcher, positiveTTL time.Duration, log *zap.SugaredLogger) *Cache {
	return &Cache{
		store:       store,
		fetcher:     fetcher,
		positiveTTL: positiveTTL,
		negativeTTL: 60 * time.Second,
		log:         log,
	}
}

// NormalizeHost lower-cases and strips the port from a Host header value.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		// only strip a trailing :port, not IPv6 colons without brackets
		if !strings.Contains(host[:idx], ":") || strings.HasSuffix(host[:idx], "]") {
			host = host[:idx]
		}
	}
	return host
}

func cacheKey(host string) string { return "waf:v1:config:" + host }

// Get returns the TenantConfig for host, core.ErrNotConfigured if the
// control plane has no tenant for it, or a wrapped
// core.ErrDependencyUnavailable on transient failure.
func (c *Cache) Get(ctx context.Context, host string) (*core.TenantConfig, error) {
	host = NormalizeHost(host)
	key := cacheKey(host)

	raw, err := c.store.Get(ctx, key)
	if err == nil {
		if raw == negativeSentinel {
			return nil, core.ErrNotConfigured
		}
		var cfg core.TenantConfig
		if decErr := json.Unmarshal([]byte(raw), &cfg); decErr != nil {
			// Corrupt cached entry: delete and treat as a miss.
			_ = c.store.Del(ctx, key)
			logging.DependencyWarn(c.log, "configcache", "kv", core.ErrCorruptCacheEntry, "host", host)
		} else {
			return &cfg, nil
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		logging.DependencyWarn(c.log, "configcache", "kv", err, "host", host)
	}

	return c.fetchAndStore(ctx, host, key)
}

func (c *Cache) fetchAndStore(ctx context.Context, host, key string) (*core.TenantConfig, error) {
	cfg, err := c.fetcher.GetTenantConfig(ctx, host)
	if errors.Is(err, core.ErrNotConfigured) {
		// Negative cache: concurrent misses on the same host racing this
		// write is fine, last writer wins per spec §4.1.
		if setErr := c.store.SetEX(ctx, key, negativeSentinel, c.negativeTTL); setErr != nil {
			logging.DependencyWarn(c.log, "configcache", "kv", setErr, "host", host)
		}
		return nil, core.ErrNotConfigured
	}
	if err != nil {
		// Transient transport error: never poison the cache.
		return nil, fmt.Errorf("configcache: %w", err)
	}

	if encoded, encErr := json.Marshal(cfg); encErr == nil {
		if setErr := c.store.SetEX(ctx, key, string(encoded), c.positiveTTL); setErr != nil {
			logging.DependencyWarn(c.log, "configcache", "kv", setErr, "host", host)
		}
	}
	return cfg, nil
}
