package config

import "fmt"

func validate(c *Config) error {
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be > 0")
	}
	if c.MaxSessions <= 0 || c.MaxSessions > DefaultMaxSessionsLimit {
		return fmt.Errorf("max sessions must be between 1 and %d", DefaultMaxSessionsLimit)
	}
	if c.CacheMaxSizeBytes <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport dimensions must be > 0")
	}
	return nil
}
