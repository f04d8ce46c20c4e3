// Package captcha implements spec §4.5: a short-lived "solved" marker per
// client IP in the shared KV store, verified against an external CAPTCHA
// provider. Grounded on original_source/waf_proxy/rules.py's
// _is_recaptcha_solved and original_source/main.py's /verify-recaptcha
// handler and Google siteverify call.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"wafgateway/internal/kv"
	"wafgateway/internal/logging"
)

const (
	solvedTTL = 300 * time.Second
	// testToken is the reserved debug bypass value. It only takes effect
	// when Gate.AllowDebugToken is true (spec §9 Open Question: the
	// source accepts it unconditionally, this is feature-flagged).
	testToken = "TEST_TOKEN"

	siteverifyURL = "https://www.google.com/recaptcha/api/siteverify"
)

func solvedKey(ip string) string { return "recaptcha:" + ip }

// Gate is the CAPTCHA Gate component.
type Gate struct {
	store    kv.Store
	http     *http.Client
	secret   string
	log      *zap.SugaredLogger

	// AllowDebugToken gates the TEST_TOKEN bypass; must be explicitly
	// enabled via WAF_ALLOW_TEST_TOKEN, never on by default.
	AllowDebugToken bool
}

// New builds a Gate. secret is the provider's server-side secret key used
// for siteverify calls.
func New(store kv.Store, secret string, log *zap.SugaredLogger) *Gate {
	return &Gate{
		store:  store,
		http:   &http.Client{Timeout: 10 * time.Second},
		secret: secret,
		log:    log,
	}
}

// IsSolved reports whether clientIP has a recent solved marker. On KV
// unavailability it fails open (returns true), per spec §4.5.
func (g *Gate) IsSolved(ctx context.Context, clientIP string) (bool, error) {
	exists, err := g.store.Exists(ctx, solvedKey(clientIP))
	if err != nil {
		logging.DependencyWarn(g.log, "captcha", "kv", err, "client_ip", clientIP)
		return true, nil
	}
	return exists, nil
}

// errProviderRejected is returned by MarkSolved when the provider itself
// rejected the token (success: false), as distinct from a provider being
// unreachable (which fails open).
var errProviderRejected = errors.New("captcha: provider rejected token")

// MarkSolved verifies token with the external provider and, on success,
// sets the solved marker. Provider errors fail open and set the marker
// anyway per spec §4.5 ("to avoid self-denial in degraded mode"); an
// explicit rejection (success: false) does not set it and is reported to
// the caller so the verification endpoint can return 403.
func (g *Gate) MarkSolved(ctx context.Context, clientIP, token string) error {
	if g.AllowDebugToken && token == testToken {
		return g.store.SetEX(ctx, solvedKey(clientIP), "1", solvedTTL)
	}

	ok, err := g.verifyWithProvider(ctx, clientIP, token)
	if err != nil {
		logging.DependencyWarn(g.log, "captcha", "provider", err, "client_ip", clientIP)
		// Fail open: set the marker so the caller is not denied due to a
		// degraded provider.
		return g.store.SetEX(ctx, solvedKey(clientIP), "1", solvedTTL)
	}
	if !ok {
		return errProviderRejected
	}
	return g.store.SetEX(ctx, solvedKey(clientIP), "1", solvedTTL)
}

// IsProviderRejection reports whether err is the provider's explicit
// rejection, as opposed to a degraded-provider fail-open case.
func IsProviderRejection(err error) bool {
	return errors.Is(err, errProviderRejected)
}

type siteverifyResponse struct {
	Success bool `json:"success"`
}

func (g *Gate) verifyWithProvider(ctx context.Context, clientIP, token string) (bool, error) {
	form := url.Values{
		"secret":   {g.secret},
		"response": {token},
		"remoteip": {clientIP},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, siteverifyURL, nil)
	if err != nil {
		return false, err
	}
	req.URL.RawQuery = form.Encode()

	resp, err := g.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, errors.New("captcha provider status " + strconv.Itoa(resp.StatusCode))
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Success, nil
}
