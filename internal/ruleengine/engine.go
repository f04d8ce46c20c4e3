// Package ruleengine implements spec §4.2: stateless evaluation of one
// request against a tenant's ordered rule list. Grounded on
// original_source/waf_proxy/rules.py for the algorithm (severity
// ordering, scan-surface construction, encoding-aware pattern matching,
// confidence values) and on the teacher's internal/service/detector/
// engine.go for the Go dispatch/body-buffering shape. Unlike the
// teacher's additive-score engine, this is first-match-wins by rule kind,
// matching spec's re-architecture guidance (§9: "re-implement as an
// exhaustive tagged variant with compile-time dispatch").
package ruleengine

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"wafgateway/internal/core"
	"wafgateway/internal/logging"
)

const maxScanSize = 10000

// scanHeaders are the header names whose decoded values join the scan
// surface, per spec §4.2.
var scanHeaders = []string{"cookie", "referer", "x-forwarded-for", "x-forwarded-host", "origin", "host"}

// confidence is the advisory value attached to each rule kind's Decision.
var confidence = map[core.RuleKind]float64{
	core.RuleSQLInjection:  0.9,
	core.RuleXSS:           0.8,
	core.RuleRCE:           0.8,
	core.RuleUABlock:       0.9,
	core.RulePathTraversal: 0.7,
	core.RuleRecaptcha:     0.5,
	core.RuleRateLimit:     1.0,
}

// RateLimitChecker is the subset of the Rate Limiter the engine dispatches
// rate_limit rules to; an interface so the engine doesn't import
// internal/kv directly.
type RateLimitChecker interface {
	Allow(ctx context.Context, clientIP, config string) (core.Decision, error)
}

// CaptchaChecker is the subset of the CAPTCHA Gate the engine dispatches
// recaptcha rules to.
type CaptchaChecker interface {
	IsSolved(ctx context.Context, clientIP string) (bool, error)
}

// Engine is the Rule Engine component.
type Engine struct {
	patterns *patternCache
	limiter  RateLimitChecker
	captcha  CaptchaChecker
	log      *zap.SugaredLogger
}

// New builds an Engine. limiter and captcha may be nil if those rule
// kinds are never used (rate_limit/recaptcha rules then fail open).
func New(limiter RateLimitChecker, captcha CaptchaChecker, log *zap.SugaredLogger) *Engine {
	return &Engine{
		patterns: newPatternCache(),
		limiter:  limiter,
		captcha:  captcha,
		log:      log,
	}
}

// BuildScanSurface concatenates path, decoded query, decoded body, and
// decoded scan headers, lower-cased and truncated to maxScanSize.
func BuildScanSurface(rc core.RequestContext) string {
	var b strings.Builder
	b.WriteString(rc.Path)
	b.WriteByte(' ')
	b.WriteString(decodeOrRaw(rc.QueryString))
	b.WriteByte(' ')
	b.WriteString(decodeOrRaw(rc.Body))

	for _, h := range scanHeaders {
		if v, ok := rc.Headers[h]; ok && v != "" {
			b.WriteByte(' ')
			b.WriteString(decodeOrRaw(v))
		}
	}

	surface := strings.ToLower(b.String())
	if len(surface) > maxScanSize {
		surface = surface[:maxScanSize]
	}
	return surface
}

func decodeOrRaw(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Check evaluates rc against rules: filters to active rules, sorts by
// severity priority, and returns the first blocking Decision. Unknown
// rule kinds and handler panics fail open for that rule; the function
// itself never panics out to the caller.
func (e *Engine) Check(ctx context.Context, rc core.RequestContext, rules []core.Rule) (decision core.Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warnw("rule engine panic, failing open", "panic", r)
			decision = core.Allow()
		}
	}()

	active := make([]core.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Severity.Index() < active[j].Severity.Index()
	})

	surface := BuildScanSurface(rc)

	for _, rule := range active {
		result := e.applyRule(ctx, rule, rc, surface)
		if result.Blocked {
			result.RuleID = rule.ID
			result.Severity = rule.Severity
			return result
		}
	}
	return core.Allow()
}

func (e *Engine) applyRule(ctx context.Context, rule core.Rule, rc core.RequestContext, surface string) (result core.Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warnw("rule handler panic, failing open for this rule", "rule_id", rule.ID, "panic", r)
			result = core.Allow()
		}
	}()

	switch rule.Kind {
	case core.RuleSQLInjection:
		return e.patternRule(rule.Value, surface, "SQL Injection pattern detected")
	case core.RuleXSS:
		return e.patternRule(rule.Value, surface, "XSS pattern detected")
	case core.RulePathTraversal, core.RuleLFI:
		return e.patternRule(rule.Value, surface, "Path traversal pattern detected")
	case core.RuleRCE, core.RuleRFI:
		return e.patternRule(rule.Value, surface, "RCE pattern detected")
	case core.RuleUABlock:
		return e.uaBlockRule(rule.Value, rc.UserAgent)
	case core.RuleRateLimit:
		return e.rateLimitRule(ctx, rule.Value, rc.ClientIP)
	case core.RuleRecaptcha:
		return e.recaptchaRule(ctx, rc.ClientIP)
	default:
		return core.Allow()
	}
}

func (e *Engine) patternRule(value, surface, label string) core.Decision {
	for _, pattern := range parsePatterns(value) {
		if safePatternMatch(e.patterns, pattern, surface) {
			kind := ruleKindForLabel(label)
			return core.Block(fmt.Sprintf("%s: %s", label, pattern), "", confidence[kind])
		}
	}
	return core.Allow()
}

func ruleKindForLabel(label string) core.RuleKind {
	switch label {
	case "SQL Injection pattern detected":
		return core.RuleSQLInjection
	case "XSS pattern detected":
		return core.RuleXSS
	case "Path traversal pattern detected":
		return core.RulePathTraversal
	case "RCE pattern detected":
		return core.RuleRCE
	default:
		return core.RuleSQLInjection
	}
}

func (e *Engine) uaBlockRule(value, userAgent string) core.Decision {
	if userAgent == "" {
		return core.Allow()
	}
	lowerUA := strings.ToLower(userAgent)
	for _, pattern := range parsePatterns(value) {
		if strings.Contains(lowerUA, strings.ToLower(pattern)) {
			return core.Block(fmt.Sprintf("Blocked User Agent: %s", pattern), "", confidence[core.RuleUABlock])
		}
	}
	return core.Allow()
}

func (e *Engine) rateLimitRule(ctx context.Context, value, clientIP string) core.Decision {
	if e.limiter == nil {
		return core.Allow()
	}
	decision, err := e.limiter.Allow(ctx, clientIP, value)
	if err != nil {
		logging.DependencyWarn(e.log, "ruleengine", "kv", err, "client_ip", clientIP)
		return core.Allow()
	}
	return decision
}

func (e *Engine) recaptchaRule(ctx context.Context, clientIP string) core.Decision {
	if e.captcha == nil {
		return core.Allow()
	}
	solved, err := e.captcha.IsSolved(ctx, clientIP)
	if err != nil {
		logging.DependencyWarn(e.log, "ruleengine", "kv", err, "client_ip", clientIP)
		return core.Allow()
	}
	if solved {
		return core.Allow()
	}
	return core.Block("reCAPTCHA required", "", confidence[core.RuleRecaptcha])
}
