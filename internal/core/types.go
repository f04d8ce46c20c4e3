// Package core holds the data model shared by every data-plane component:
// tenant configuration, rules, the per-request context, and decisions.
package core

import "time"

// RuleKind is the exhaustive set of rule behaviors the engine dispatches on.
// Unknown kinds (e.g. from a future control-plane rollout) are a no-op.
type RuleKind string

const (
	RuleSQLInjection  RuleKind = "sql_injection"
	RuleXSS           RuleKind = "xss"
	RuleRateLimit     RuleKind = "rate_limit"
	RuleUABlock       RuleKind = "ua_block"
	RulePathTraversal RuleKind = "path_traversal"
	RuleRCE           RuleKind = "rce"
	RuleLFI           RuleKind = "lfi"
	RuleRFI           RuleKind = "rfi"
	RuleRecaptcha     RuleKind = "recaptcha"
)

// Severity orders rules for first-match-wins evaluation; lower Index blocks first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityOrder mirrors original_source/waf_proxy/rules.py's severity_order dict.
var severityOrder = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:      1,
	SeverityMedium:    2,
	SeverityLow:       3,
}

// Index returns the sort priority for a severity, defaulting unknown values to medium.
func (s Severity) Index() int {
	if idx, ok := severityOrder[s]; ok {
		return idx
	}
	return severityOrder[SeverityMedium]
}

// Rule is one classification directive attached to a TenantConfig.
type Rule struct {
	ID       string   `json:"id"`
	Kind     RuleKind `json:"kind"`
	Value    string   `json:"value"`
	Severity Severity `json:"severity"`
	Active   bool     `json:"active"`
}

// TenantConfig is the per-host immutable snapshot consumed by one request.
type TenantConfig struct {
	TenantID    string   `json:"tenant_id"`
	Name        string   `json:"name"`
	Host        string   `json:"host"`
	TargetURL   string   `json:"target_url"`

	RateLimitingEnabled    bool `json:"rate_limiting_enabled"`
	CountryBlockingEnabled bool `json:"country_blocking_enabled"`
	IPBlacklistEnabled     bool `json:"ip_blacklist_enabled"`
	SSLEnabled             bool `json:"ssl_enabled"`

	BlockedCountries []string `json:"blocked_countries"`
	AllowedCountries []string `json:"allowed_countries"`
	IPBlacklist      []string `json:"ip_blacklist"`

	Rules []Rule `json:"rules"`
}

// RequestContext is built once per request and never mutated afterward.
type RequestContext struct {
	Method      string
	Path        string
	QueryString string
	Body        string
	Headers     map[string]string // lower-cased keys
	ClientIP    string
	UserAgent   string
	Host        string
	Arrived     time.Time
}

// Decision is the outcome of one component check. It never carries
// control-plane state, only what the middleware needs to respond and log.
type Decision struct {
	Blocked    bool
	Reason     string
	RuleID     string
	Severity   Severity
	Confidence float64
}

// Allow is the zero-value non-blocking decision, used as a default return.
func Allow() Decision { return Decision{} }

// Block builds a blocking decision with the standard fields set.
func Block(reason string, severity Severity, confidence float64) Decision {
	return Decision{Blocked: true, Reason: reason, Severity: severity, Confidence: confidence}
}

// TokenBucketState describes the token-bucket state for one client IP. The
// rate limiter does not encode this struct; it stores the same two values
// in the KV store as a "last_update:tokens" string.
type TokenBucketState struct {
	LastUpdate     float64 `json:"t"`
	TokensRemaining float64 `json:"tok"`
}

// SubscriberKind distinguishes admin dashboards (global view) from tenant
// dashboards (scoped to one tenant_id).
type SubscriberKind string

const (
	SubscriberAdmin  SubscriberKind = "admin"
	SubscriberTenant SubscriberKind = "tenant"
)

// GeolocationRecord is the only shape the core reads from the geolocation
// service; everything else in that response is opaque to the data plane.
type GeolocationRecord struct {
	CountryCode string `json:"country_code"`
}

// SecurityEvent is posted to the control plane for every blocked request.
type SecurityEvent struct {
	ClientHost  string `json:"client_host"`
	IPAddress   string `json:"ip_address"`
	CountryCode string `json:"country_code"`
	RequestPath string `json:"request_path"`
	UserAgent   string `json:"user_agent"`
	Reason      string `json:"reason"`
	Method      string `json:"method"`
	Blocked     bool   `json:"blocked"`
}
