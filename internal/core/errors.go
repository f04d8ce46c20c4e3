package core

import "errors"

// ErrNotConfigured means the host has no tenant on the control plane.
// Callers translate this into a 404 with no broadcast and no security event.
var ErrNotConfigured = errors.New("host not configured")

// ErrCorruptCacheEntry means a cached value could not be decoded; the
// cache treats this the same as a miss after deleting the bad entry.
var ErrCorruptCacheEntry = errors.New("corrupt cache entry")

// ErrDependencyUnavailable wraps failures of KV, geolocation, control
// plane, or CAPTCHA provider calls. The per-request checks treat it as
// fail-open for that specific check; a config-cache failure with no cached
// entry is answered by the proxy with a 503.
var ErrDependencyUnavailable = errors.New("dependency unavailable")
