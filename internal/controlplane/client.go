// Package controlplane is the HTTP client for the three external
// collaborators the data plane consumes: tenant configuration, IP
// geolocation, and the security-event sink. Grounded on
// original_source/services.py's DjangoAPIClient, with the pooled
// *http.Client idiom the teacher used in internal/api/system.go's
// fetchRemoteHealth.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wafgateway/internal/core"
)

// Client talks to the control plane's tenant-config, geolocation, and
// security-event endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client with pooled transport and the given total-request
// timeout used for tenant-config and geolocation calls. The
// security-event POST uses its own fixed 5s timeout per spec §4.8.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GetTenantConfig fetches the per-host configuration. Returns
// core.ErrNotConfigured on a 404; any other status than 200, or a transport
// error, is a transient Dependency-unavailable failure.
func (c *Client) GetTenantConfig(ctx context.Context, host string) (*core.TenantConfig, error) {
	url := fmt.Sprintf("%s/clients/api/v1/clients/%s/waf-config/", c.baseURL, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, core.ErrNotConfigured
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tenant-config status %d", core.ErrDependencyUnavailable, resp.StatusCode)
	}

	var cfg core.TenantConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDependencyUnavailable, err)
	}
	return &cfg, nil
}

// GetGeolocation looks up an IP's country. A non-200 response or
// transport error returns core.ErrDependencyUnavailable so callers can
// fail the country check open, per spec §4.4.
func (c *Client) GetGeolocation(ctx context.Context, ip string) (*core.GeolocationRecord, error) {
	url := fmt.Sprintf("%s/api/v1/ip-geolocation/%s/", c.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: geolocation status %d", core.ErrDependencyUnavailable, resp.StatusCode)
	}

	var rec core.GeolocationRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDependencyUnavailable, err)
	}
	return &rec, nil
}

// EmitSecurityEvent posts a blocked-request event. Failures are never
// surfaced to the caller; they return an error purely so the caller can
// log a warning, per spec §4.8 ("logs a warning but never raises").
func (c *Client) EmitSecurityEvent(ctx context.Context, event core.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/logs/api/v1/security-events/", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("security-event sink: status %d", resp.StatusCode)
	}
	return nil
}
