package ruleengine

import (
	"regexp"
	"strings"
	"sync"
)

// isSubstringCandidate mirrors original_source/waf_proxy/rules.py's
// _safe_pattern_match heuristic: short, plain patterns are matched as a
// literal case-insensitive substring; anything else is a regex.
func isSubstringCandidate(pattern string) bool {
	if len(pattern) >= 50 {
		return false
	}
	for _, r := range pattern {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-' || r == ' ':
		default:
			return false
		}
	}
	return true
}

// generateTestPatterns produces the encoding-aware family of test strings
// for one user pattern: the original, URL-encoded, double-URL-encoded,
// and HTML-entity-encoded variants. Any one matching blocks the request.
func generateTestPatterns(pattern string) []string {
	urlEncoded := urlEncode(pattern)
	return []string{
		pattern,
		urlEncoded,
		doubleURLEncode(urlEncoded),
		htmlEncode(pattern),
	}
}

func urlEncode(s string) string {
	r := strings.NewReplacer("'", "%27", " ", "%20", "=", "%3D")
	return r.Replace(s)
}

func doubleURLEncode(alreadyEncoded string) string {
	return strings.ReplaceAll(alreadyEncoded, "%", "%25")
}

func htmlEncode(s string) string {
	r := strings.NewReplacer("<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// patternCache compiles regex patterns once and reuses them across
// requests, per spec §9's design note ("cache compiled regex per
// TenantConfig version"). Keyed on the literal pattern text, which is
// sufficient since the same text always compiles to the same regex.
type patternCache struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

func newPatternCache() *patternCache {
	return &patternCache{cache: make(map[string]*regexp.Regexp)}
}

// compile returns a cached case-insensitive regex for pattern, or nil if
// the pattern fails to compile (callers skip it; no warning is logged).
func (p *patternCache) compile(pattern string) *regexp.Regexp {
	p.mu.RLock()
	re, ok := p.cache[pattern]
	p.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}

	p.mu.Lock()
	p.cache[pattern] = re
	p.mu.Unlock()
	return re
}

// safePatternMatch tests every encoding variant of pattern against data,
// using the substring heuristic or the compiled-regex cache as fitting.
func safePatternMatch(cache *patternCache, pattern, data string) bool {
	if pattern == "" {
		return false
	}

	if isSubstringCandidate(pattern) {
		for _, variant := range generateTestPatterns(pattern) {
			if strings.Contains(data, strings.ToLower(variant)) {
				return true
			}
		}
		return false
	}

	for _, variant := range generateTestPatterns(pattern) {
		re := cache.compile(variant)
		if re == nil {
			continue
		}
		if re.MatchString(data) {
			return true
		}
	}
	return false
}

// parsePatterns splits a rule's newline-separated pattern list.
func parsePatterns(value string) []string {
	lines := strings.Split(value, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
