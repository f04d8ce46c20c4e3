// Package ratelimiter implements spec §4.3: a token bucket keyed by
// client IP, persisted in the shared KV store under rate_limit:<ip>.
// Algorithm grounded on original_source/waf_proxy/rules.py's
// _handle_rate_limit; the constructor/map idiom follows the teacher's
// internal/limiter/limiter.go, but the algorithm itself is new, the
// teacher's limiter is a sliding-window counter, not a token bucket.
package ratelimiter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wafgateway/internal/core"
	"wafgateway/internal/kv"
)

const ttl = 3600 * time.Second // per spec §3/§4.3

// Limiter is the Rate Limiter component.
type Limiter struct {
	store kv.Store
}

// New builds a Limiter backed by store.
func New(store kv.Store) *Limiter {
	return &Limiter{store: store}
}

// Allow runs the token-bucket algorithm for clientIP against a
// "rps:burst" configuration string. A malformed configuration yields a
// non-blocking Decision, per spec §4.3. On KV unavailability the limiter
// fails open and returns a wrapped error for the caller to log.
func (l *Limiter) Allow(ctx context.Context, clientIP, config string) (core.Decision, error) {
	rps, burst, ok := parseConfig(config)
	if !ok {
		return core.Allow(), nil
	}

	key := "rate_limit:" + clientIP

	now, err := l.store.Now(ctx)
	if err != nil {
		return core.Allow(), fmt.Errorf("%w: %v", core.ErrDependencyUnavailable, err)
	}
	nowSeconds := float64(now.UnixNano()) / 1e9

	raw, err := l.store.Get(ctx, key)
	lastUpdate, tokens := nowSeconds, burst
	if err == nil {
		if parsedLast, parsedTokens, ok := parseState(raw); ok {
			lastUpdate, tokens = parsedLast, parsedTokens
		}
	} else if err != kv.ErrNotFound {
		return core.Allow(), fmt.Errorf("%w: %v", core.ErrDependencyUnavailable, err)
	}

	elapsed := nowSeconds - lastUpdate
	tokens = tokens + elapsed*rps
	if tokens > burst {
		tokens = burst
	}

	if tokens >= 1.0 {
		tokens -= 1.0
		state := fmt.Sprintf("%f:%f", nowSeconds, tokens)
		if err := l.store.SetEX(ctx, key, state, ttl); err != nil {
			return core.Allow(), fmt.Errorf("%w: %v", core.ErrDependencyUnavailable, err)
		}
		return core.Allow(), nil
	}

	return core.Block(fmt.Sprintf("Rate limit exceeded for %s", clientIP), core.SeverityMedium, 1.0), nil
}

// parseConfig parses "rps:burst"; the spec normalizes this delimiter,
// so a value using "/" (the source's inconsistent alternate form) is
// rejected as malformed rather than accepted.
func parseConfig(config string) (rps, burst float64, ok bool) {
	parts := strings.Split(config, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	rps, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || rps <= 0 {
		return 0, 0, false
	}
	burstInt, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || burstInt <= 0 {
		return 0, 0, false
	}
	return rps, float64(burstInt), true
}

func parseState(raw string) (lastUpdate, tokens float64, ok bool) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lastUpdate, err1 := strconv.ParseFloat(parts[0], 64)
	tokens, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lastUpdate, tokens, true
}
