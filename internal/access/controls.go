// Package access implements spec §4.4: IP blacklist (exact + CIDR) and
// country allow/block lists. Grounded on
// original_source/waf_proxy/middleware.py's _check_ip_blacklist,
// _check_country_blocking, _is_private_ip and _is_ip_in_range.
package access

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"wafgateway/internal/core"
	"wafgateway/internal/logging"
)

// GeoLookup is the subset of the control-plane client access controls
// needs for country checks.
type GeoLookup interface {
	GetGeolocation(ctx context.Context, ip string) (*core.GeolocationRecord, error)
}

// Controls is the Access Controls component.
type Controls struct {
	geo GeoLookup
	log *zap.SugaredLogger
}

// New builds Controls backed by geo for country lookups.
func New(geo GeoLookup, log *zap.SugaredLogger) *Controls {
	return &Controls{geo: geo, log: log}
}

// CheckIPBlacklist implements the exact-match and CIDR-range blacklist
// check. Malformed CIDR entries are skipped.
func (c *Controls) CheckIPBlacklist(clientIP string, cfg *core.TenantConfig) core.Decision {
	if !cfg.IPBlacklistEnabled {
		return core.Allow()
	}

	for _, entry := range cfg.IPBlacklist {
		if entry == clientIP {
			return core.Block(fmt.Sprintf("IP %s is blacklisted", clientIP), core.SeverityHigh, 1.0)
		}
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return core.Allow()
	}
	for _, entry := range cfg.IPBlacklist {
		if !containsSlash(entry) {
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			c.log.Warnw("skipping malformed blacklist CIDR entry", "entry", entry, "host", cfg.Host)
			continue
		}
		if network.Contains(ip) {
			return core.Block(fmt.Sprintf("IP %s is in blacklisted range %s", clientIP, entry), core.SeverityHigh, 1.0)
		}
	}
	return core.Allow()
}

func containsSlash(s string) bool {
	for _, r := range s {
		if r == '/' {
			return true
		}
	}
	return false
}

// CheckCountry implements the allow-list/block-list country check.
// Private/loopback/link-local IPs and geolocation-unavailable both pass
// (fail open for the geo dependency specifically).
func (c *Controls) CheckCountry(ctx context.Context, clientIP string, cfg *core.TenantConfig) core.Decision {
	if !cfg.CountryBlockingEnabled {
		return core.Allow()
	}
	if isPrivate(clientIP) {
		return core.Allow()
	}

	rec, err := c.geo.GetGeolocation(ctx, clientIP)
	if err != nil {
		logging.DependencyWarn(c.log, "access", "geolocation", err, "client_ip", clientIP)
		return core.Allow()
	}
	if rec == nil || rec.CountryCode == "" {
		return core.Allow()
	}
	code := rec.CountryCode

	if len(cfg.AllowedCountries) > 0 {
		for _, allowed := range cfg.AllowedCountries {
			if allowed == code {
				return core.Allow()
			}
		}
		return core.Block(fmt.Sprintf("Country %s not in allowed list", code), core.SeverityHigh, 1.0)
	}

	for _, blocked := range cfg.BlockedCountries {
		if blocked == code {
			return core.Block(fmt.Sprintf("Country %s is blocked", code), core.SeverityHigh, 1.0)
		}
	}
	return core.Allow()
}

// isPrivate reports whether ip is private, loopback, or link-local.
func isPrivate(clientIP string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}
