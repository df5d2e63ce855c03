package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Config holds application configuration values.
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// Static HTTP path
	HTTPTimeout    time.Duration
	UserAgent      string
	Proxies        []string
	RateLimitRPS   float64
	RateLimitBurst int
	HarvestScripts bool

	// Browser sessions
	MaxSessions    int
	Headless       bool
	ChromePath     string
	ViewportWidth  int
	ViewportHeight int

	// Caching
	CacheTTL          time.Duration
	CacheMaxSizeBytes int64

	// Protocol server
	ListenAddr string

	// Config store
	ConfigDir string
}

// Load builds a Config from defaults, STUDIO_* environment variables, and
// CLI flags, in increasing precedence. Pass the root command so persistent
// flags can be read; nil skips the flag layer.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{
		LogLevel:          DefaultLogLevel,
		JSONLog:           DefaultJSONLog,
		HTTPTimeout:       DefaultHTTPTimeout,
		UserAgent:         DefaultUserAgent,
		RateLimitRPS:      DefaultRateLimitRPS,
		RateLimitBurst:    DefaultRateLimitBurst,
		MaxSessions:       DefaultMaxSessions,
		Headless:          DefaultHeadless,
		ViewportWidth:     DefaultViewportWidth,
		ViewportHeight:    DefaultViewportHeight,
		CacheTTL:          DefaultCacheTTL,
		CacheMaxSizeBytes: DefaultCacheMaxSizeBytes,
		ListenAddr:        DefaultListenAddr,
	}

	if v := os.Getenv("STUDIO_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("STUDIO_PROXIES"); v != "" {
		cfg.Proxies = splitList(v)
	}
	if v := os.Getenv("STUDIO_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("STUDIO_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STUDIO_CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	}
	if v := os.Getenv("STUDIO_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}

	if cmd != nil {
		applyFlags(cmd, cfg)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if f := flags.Lookup("user-agent"); f != nil && f.Changed {
		cfg.UserAgent = f.Value.String()
	}
	if f := flags.Lookup("proxy"); f != nil && f.Changed {
		cfg.Proxies = splitList(f.Value.String())
	}
	if f := flags.Lookup("timeout"); f != nil && f.Changed {
		if d, err := time.ParseDuration(f.Value.String()); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	if f := flags.Lookup("listen"); f != nil && f.Changed {
		cfg.ListenAddr = f.Value.String()
	}
	if f := flags.Lookup("max-sessions"); f != nil && f.Changed {
		if n, err := strconv.Atoi(f.Value.String()); err == nil {
			cfg.MaxSessions = n
		}
	}
	if f := flags.Lookup("headful"); f != nil && f.Value.String() == "true" {
		cfg.Headless = false
	}
	if f := flags.Lookup("json"); f != nil && f.Value.String() == "true" {
		cfg.JSONLog = true
	}
	if f := flags.Lookup("verbose"); f != nil && f.Value.String() == "true" {
		cfg.LogLevel = "debug"
	}
	if f := flags.Lookup("quiet"); f != nil && f.Value.String() == "true" {
		cfg.LogLevel = "error"
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
