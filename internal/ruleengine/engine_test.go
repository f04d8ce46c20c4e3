package ruleengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wafgateway/internal/core"
)

func noopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

// Scenario 1 from spec §8: SQL injection pattern via a URL-encoded query.
func TestEngine_BlocksSQLInjection(t *testing.T) {
	e := New(nil, nil, noopLogger())
	rules := []core.Rule{{
		ID: "r1", Kind: core.RuleSQLInjection, Value: "' OR '1'='1",
		Severity: core.SeverityHigh, Active: true,
	}}
	rc := core.RequestContext{
		Method: "GET", Path: "/login",
		QueryString: "user=admin%27%20OR%20%271%27%3D%271",
		Headers:     map[string]string{},
	}

	d := e.Check(context.Background(), rc, rules)
	require.True(t, d.Blocked)
	require.Contains(t, d.Reason, "SQL Injection pattern detected")
	require.Equal(t, "r1", d.RuleID)
}

// Scenario 2 from spec §8: a harmless POST body passes.
func TestEngine_AllowsBenignRequest(t *testing.T) {
	e := New(nil, nil, noopLogger())
	rules := []core.Rule{{
		ID: "r1", Kind: core.RuleSQLInjection, Value: "' OR '1'='1",
		Severity: core.SeverityHigh, Active: true,
	}}
	rc := core.RequestContext{
		Method: "POST", Path: "/submit",
		Body:    `{"comment":"hello"}`,
		Headers: map[string]string{},
	}

	d := e.Check(context.Background(), rc, rules)
	require.False(t, d.Blocked)
}

func TestEngine_InactiveRuleNeverBlocks(t *testing.T) {
	e := New(nil, nil, noopLogger())
	rules := []core.Rule{{
		ID: "r1", Kind: core.RuleSQLInjection, Value: "' OR '1'='1",
		Severity: core.SeverityHigh, Active: false,
	}}
	rc := core.RequestContext{Method: "GET", Path: "/x", QueryString: "' OR '1'='1"}

	d := e.Check(context.Background(), rc, rules)
	require.False(t, d.Blocked)
}

func TestEngine_SeverityOrderingBlocksLowestIndexFirst(t *testing.T) {
	e := New(nil, nil, noopLogger())
	rules := []core.Rule{
		{ID: "low", Kind: core.RuleUABlock, Value: "curl", Severity: core.SeverityLow, Active: true},
		{ID: "critical", Kind: core.RuleUABlock, Value: "curl", Severity: core.SeverityCritical, Active: true},
	}
	rc := core.RequestContext{Method: "GET", Path: "/", UserAgent: "curl/8.0"}

	d := e.Check(context.Background(), rc, rules)
	require.True(t, d.Blocked)
	require.Equal(t, "critical", d.RuleID)
}

func TestEngine_UABlockIsCaseInsensitiveSubstring(t *testing.T) {
	e := New(nil, nil, noopLogger())
	rules := []core.Rule{{ID: "r1", Kind: core.RuleUABlock, Value: "sqlmap\nnikto", Severity: core.SeverityMedium, Active: true}}
	rc := core.RequestContext{Method: "GET", Path: "/", UserAgent: "SQLMap/1.6"}

	d := e.Check(context.Background(), rc, rules)
	require.True(t, d.Blocked)
}

type fakeLimiter struct{ decision core.Decision }

func (f fakeLimiter) Allow(_ context.Context, _, _ string) (core.Decision, error) {
	return f.decision, nil
}

func TestEngine_DispatchesRateLimitRuleToLimiter(t *testing.T) {
	e := New(fakeLimiter{decision: core.Block("Rate limit exceeded for 1.2.3.4", core.SeverityMedium, 1.0)}, nil, noopLogger())
	rules := []core.Rule{{ID: "rl", Kind: core.RuleRateLimit, Value: "2:2", Severity: core.SeverityMedium, Active: true}}
	rc := core.RequestContext{Method: "GET", Path: "/", ClientIP: "1.2.3.4"}

	d := e.Check(context.Background(), rc, rules)
	require.True(t, d.Blocked)
	require.Contains(t, d.Reason, "Rate limit exceeded")
}

type fakeCaptcha struct{ solved bool }

func (f fakeCaptcha) IsSolved(_ context.Context, _ string) (bool, error) { return f.solved, nil }

func TestEngine_RecaptchaRuleBlocksUntilSolved(t *testing.T) {
	e := New(nil, fakeCaptcha{solved: false}, noopLogger())
	rules := []core.Rule{{ID: "cap", Kind: core.RuleRecaptcha, Severity: core.SeverityMedium, Active: true}}
	rc := core.RequestContext{Method: "GET", Path: "/", ClientIP: "198.51.100.20"}

	d := e.Check(context.Background(), rc, rules)
	require.True(t, d.Blocked)
	require.Equal(t, "reCAPTCHA required", d.Reason)

	e2 := New(nil, fakeCaptcha{solved: true}, noopLogger())
	d2 := e2.Check(context.Background(), rc, rules)
	require.False(t, d2.Blocked)
}
