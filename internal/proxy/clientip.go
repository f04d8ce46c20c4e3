package proxy

import (
	"net"
	"net/http"
	"strings"
)

// ipHeaders is the exact precedence order from spec §3's RequestContext
// invariant, grounded on original_source/waf_proxy/middleware.py's
// _get_client_ip ip_headers list.
var ipHeaders = []string{
	"x-real-ip",
	"x-forwarded-for",
	"x-forwarded",
	"forwarded-for",
	"forwarded",
	"x-cluster-client-ip",
	"proxy-client-ip",
	"true-client-ip",
	"cf-connecting-ip",
}

// ResolveClientIP returns the first syntactically valid IP among the
// precedence-ordered proxy headers, falling back to the transport peer
// address. x-forwarded-for-style multi-IP values use the first entry.
// A header with a bogus IP is skipped in favor of the next one
// (Malformed-input handling per spec §7).
func ResolveClientIP(r *http.Request) string {
	for _, header := range ipHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		if idx := strings.Index(value, ","); idx != -1 {
			value = value[:idx]
		}
		value = strings.TrimSpace(value)
		if net.ParseIP(value) != nil {
			return value
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
