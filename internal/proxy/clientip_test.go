package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveClientIP_PrefersXRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("x-real-ip", "203.0.113.9")
	r.Header.Set("x-forwarded-for", "198.51.100.2")
	require.Equal(t, "203.0.113.9", ResolveClientIP(r))
}

func TestResolveClientIP_TakesFirstOfMultipleForwardedIPs(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("x-forwarded-for", "203.0.113.5, 198.51.100.2")
	require.Equal(t, "203.0.113.5", ResolveClientIP(r))
}

func TestResolveClientIP_SkipsBogusHeaderValue(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("x-real-ip", "not-an-ip")
	r.Header.Set("x-forwarded-for", "203.0.113.5")
	require.Equal(t, "203.0.113.5", ResolveClientIP(r))
}

func TestResolveClientIP_FallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:54321"
	require.Equal(t, "192.0.2.1", ResolveClientIP(r))
}
