// Package app wires the application together: logging, cache, rate limiter,
// static scraper, config store, credentials, and the lazily created browser
// session pool.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/auth"
	"github.com/scrape-studio/studio/internal/cache"
	"github.com/scrape-studio/studio/internal/config"
	"github.com/scrape-studio/studio/internal/extract"
	"github.com/scrape-studio/studio/internal/proxy"
	"github.com/scrape-studio/studio/internal/ratelimit"
	"github.com/scrape-studio/studio/internal/session"
	"github.com/scrape-studio/studio/internal/static"
	"github.com/scrape-studio/studio/internal/store"
	"github.com/scrape-studio/studio/pkg/models"
)

// Application holds all dependencies and manages their lifecycle. Created
// once at startup, shared across CLI commands, torn down via Close.
type Application struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Cache       cache.Cache
	RateLimiter ratelimit.RateLimiter
	HTTPClient  *http.Client
	Static      *static.Scraper
	Store       *store.Store
	Credentials *auth.Store
	Proxies     *proxy.Pool

	poolMu sync.Mutex
	pool   *session.Pool

	startTime time.Time
}

// New creates and initializes an Application. The browser session pool is
// NOT started here; it launches on first use via EnsurePool so commands that
// never touch a browser never pay for one.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logLevel := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logWriter io.Writer = zerolog.NewConsoleWriter()
	if cfg.JSONLog {
		logWriter = os.Stderr
	}
	logger := log.Output(logWriter).With().Timestamp().Logger()
	log.Logger = logger

	memCache := cache.NewMemory(cfg.CacheMaxSizeBytes)
	limiter := ratelimit.NewDomainLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	proxies := proxy.NewPool(cfg.Proxies)
	creds := auth.NewStore()

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxies.Size() > 0 {
		transport.Proxy = proxies.ProxyFunc()
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport}

	staticScraper := static.New(static.Options{
		Client:         httpClient,
		Cache:          memCache,
		Limiter:        limiter,
		UserAgent:      cfg.UserAgent,
		CacheTTL:       cfg.CacheTTL,
		HarvestScripts: cfg.HarvestScripts,
	})

	configStore, err := store.New(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open config store: %w", err)
	}

	app := &Application{
		Config:      cfg,
		Logger:      &logger,
		Cache:       memCache,
		RateLimiter: limiter,
		HTTPClient:  httpClient,
		Static:      staticScraper,
		Store:       configStore,
		Credentials: creds,
		Proxies:     proxies,
		startTime:   time.Now(),
	}

	logger.Debug().
		Str("config_dir", configStore.Dir()).
		Int("max_sessions", cfg.MaxSessions).
		Msg("Application initialized")
	return app, nil
}

// EnsurePool creates the browser session pool on first use.
func (a *Application) EnsurePool(ctx context.Context) (*session.Pool, error) {
	a.poolMu.Lock()
	defer a.poolMu.Unlock()
	if a.pool != nil {
		return a.pool, nil
	}

	pool, err := session.NewPool(session.PoolOptions{
		MaxSessions: a.Config.MaxSessions,
		Headless:    a.Config.Headless,
		UserAgent:   a.Config.UserAgent,
		ChromePath:  a.Config.ChromePath,
		Proxies:     a.Proxies,
		Heuristics:  extract.DefaultHeuristics(),
		Credentials: a.Credentials,
		Viewport: models.Viewport{
			Width:  a.Config.ViewportWidth,
			Height: a.Config.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start browser pool: %w", err)
	}
	a.pool = pool
	a.Logger.Info().Int("max_sessions", pool.Max()).Msg("Browser pool started")
	return pool, nil
}

// Close shuts down the application. Safe to call once after any command.
func (a *Application) Close(ctx context.Context) error {
	a.poolMu.Lock()
	pool := a.pool
	a.pool = nil
	a.poolMu.Unlock()

	if pool != nil {
		pool.Close()
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}

	a.Logger.Debug().Dur("uptime", time.Since(a.startTime)).Msg("Application shutdown complete")
	return nil
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
