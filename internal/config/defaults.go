package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel          = "info"
	DefaultJSONLog           = false
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultHTTPTimeout       = 10 * time.Second
	DefaultRateLimitRPS      = 5.0
	DefaultRateLimitBurst    = 10
	DefaultMaxSessions       = 4
	DefaultMaxSessionsLimit  = 16
	DefaultHeadless          = true
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 800
	DefaultCacheTTL          = 5 * time.Minute
	DefaultCacheMaxSizeBytes = 100 * 1024 * 1024
	DefaultListenAddr        = "127.0.0.1:8377"
)
