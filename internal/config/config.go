// Package config loads process environment into a typed Settings struct.
// Grounded on the teacher's internal/config/config.go flat-struct-plus-
// getEnv pattern, field names matching original_source/waf_proxy/config.py.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the process-wide configuration, loaded once at startup.
type Settings struct {
	ListenAddr      string
	ControlPlaneURL string
	KVStoreURL      string
	WAFTimeout      time.Duration
	WAFCacheTTL     time.Duration
	LogLevel        string

	RecaptchaSiteKey   string
	RecaptchaSecretKey string
	AllowDebugCaptchaToken bool

	AllowedOrigins []string
}

// Load reads Settings from the process environment.
func Load() Settings {
	return Settings{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		ControlPlaneURL: getEnv("CONTROL_PLANE_URL", ""),
		KVStoreURL:      getEnv("KV_STORE_URL", ""),
		WAFTimeout:      time.Duration(getEnvInt("WAF_TIMEOUT", 30)) * time.Second,
		WAFCacheTTL:     time.Duration(getEnvInt("WAF_CACHE_TTL", 300)) * time.Second,
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		RecaptchaSiteKey:       getEnv("RECAPTCHA_SITE_KEY", ""),
		RecaptchaSecretKey:     getEnv("RECAPTCHA_SECRET_KEY", ""),
		AllowDebugCaptchaToken: getEnvBool("WAF_ALLOW_TEST_TOKEN", false),

		AllowedOrigins: splitCSV(getEnv("FRONTEND_URL", "")),
	}
}

// Validate fails startup loudly on missing required values; config loading
// is not on the fail-open data-plane path, so it errors instead of
// defaulting silently.
func (s Settings) Validate() error {
	if s.ControlPlaneURL == "" {
		return fmt.Errorf("config: CONTROL_PLANE_URL is required")
	}
	if s.KVStoreURL == "" {
		return fmt.Errorf("config: KV_STORE_URL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
