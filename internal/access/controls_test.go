package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wafgateway/internal/core"
)

func noopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

type fakeGeo struct {
	rec *core.GeolocationRecord
	err error
}

func (f fakeGeo) GetGeolocation(_ context.Context, _ string) (*core.GeolocationRecord, error) {
	return f.rec, f.err
}

// Scenario 3 from spec §8.
func TestControls_IPBlacklistExactAndCIDR(t *testing.T) {
	c := New(fakeGeo{}, noopLogger())
	cfg := &core.TenantConfig{
		IPBlacklistEnabled: true,
		IPBlacklist:        []string{"10.0.0.0/24", "203.0.113.5"},
	}

	d := c.CheckIPBlacklist("203.0.113.5", cfg)
	require.True(t, d.Blocked)
	require.Equal(t, "IP 203.0.113.5 is blacklisted", d.Reason)

	d2 := c.CheckIPBlacklist("10.0.0.17", cfg)
	require.True(t, d2.Blocked)
	require.Contains(t, d2.Reason, "10.0.0.0/24")

	d3 := c.CheckIPBlacklist("8.8.8.8", cfg)
	require.False(t, d3.Blocked)
}

func TestControls_BlacklistDisabledNeverBlocks(t *testing.T) {
	c := New(fakeGeo{}, noopLogger())
	cfg := &core.TenantConfig{IPBlacklistEnabled: false, IPBlacklist: []string{"203.0.113.5"}}
	d := c.CheckIPBlacklist("203.0.113.5", cfg)
	require.False(t, d.Blocked)
}

// Scenario 5 from spec §8.
func TestControls_CountryBlock(t *testing.T) {
	c := New(fakeGeo{rec: &core.GeolocationRecord{CountryCode: "XX"}}, noopLogger())
	cfg := &core.TenantConfig{CountryBlockingEnabled: true, BlockedCountries: []string{"XX"}}

	d := c.CheckCountry(context.Background(), "203.0.113.9", cfg)
	require.True(t, d.Blocked)
	require.Contains(t, d.Reason, "XX")
}

func TestControls_CountryGeolocationUnreachableFailsOpen(t *testing.T) {
	c := New(fakeGeo{err: errors.New("timeout")}, noopLogger())
	cfg := &core.TenantConfig{CountryBlockingEnabled: true, BlockedCountries: []string{"XX"}}

	d := c.CheckCountry(context.Background(), "203.0.113.9", cfg)
	require.False(t, d.Blocked)
}

func TestControls_AllowListModeDominates(t *testing.T) {
	c := New(fakeGeo{rec: &core.GeolocationRecord{CountryCode: "FR"}}, noopLogger())
	cfg := &core.TenantConfig{
		CountryBlockingEnabled: true,
		AllowedCountries:       []string{"US"},
		BlockedCountries:       []string{"XX"},
	}

	d := c.CheckCountry(context.Background(), "203.0.113.9", cfg)
	require.True(t, d.Blocked)
	require.Contains(t, d.Reason, "not in allowed list")
}

func TestControls_PrivateIPSkipsCountryCheck(t *testing.T) {
	c := New(fakeGeo{err: errors.New("should not be called")}, noopLogger())
	cfg := &core.TenantConfig{CountryBlockingEnabled: true, BlockedCountries: []string{"XX"}}

	d := c.CheckCountry(context.Background(), "10.1.2.3", cfg)
	require.False(t, d.Blocked)
}
