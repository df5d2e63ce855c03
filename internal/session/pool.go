// internal/session/pool.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/internal/extract"
	"github.com/scrape-studio/studio/internal/proxy"
	"github.com/scrape-studio/studio/pkg/models"
)

// Pool errors.
var (
	ErrCapacityExceeded = errors.New("session pool capacity exceeded")
	ErrSessionNotFound  = errors.New("session not found")
	ErrPoolClosed       = errors.New("session pool is closed")
)

// PageFactory opens a new tab under the pool's browser process. Tests
// substitute a fake; production uses browser.NewPage over the shared
// chromedp allocator.
type PageFactory func(ctx context.Context) (browser.Page, error)

// PoolOptions configures the session pool.
type PoolOptions struct {
	MaxSessions int
	Headless    bool
	UserAgent   string
	ChromePath  string
	Proxies     *proxy.Pool
	Heuristics  extract.Heuristics
	Credentials extract.CredentialResolver
	Viewport    models.Viewport

	// CaptchaWindow bounds how long a session may sit in the captcha state
	// before it is failed. Zero means DefaultCaptchaWindow.
	CaptchaWindow time.Duration

	// NewPage overrides tab creation (tests). When nil the pool launches a
	// shared Chrome process and opens real tabs.
	NewPage PageFactory
}

// Pool is the bounded collection of sessions sharing one browser process.
// All slot accounting happens under one mutex: session creation and
// destruction are mutually exclusive, and creation beyond the fixed tab
// ceiling fails fast with ErrCapacityExceeded instead of queueing.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Session
	max      int
	closed   bool

	newPage     PageFactory
	allocCtx    context.Context
	allocCancel context.CancelFunc

	h          extract.Heuristics
	creds      extract.CredentialResolver
	vp         models.Viewport
	captchaWin time.Duration
}

// NewPool creates the pool and, unless a PageFactory is injected, the
// shared Chrome exec allocator behind it.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 4
	}
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		opts.Viewport = models.Viewport{Width: 1280, Height: 800}
	}
	if opts.CaptchaWindow <= 0 {
		opts.CaptchaWindow = DefaultCaptchaWindow
	}

	p := &Pool{
		sessions:   make(map[string]*Session),
		max:        opts.MaxSessions,
		h:          opts.Heuristics,
		creds:      opts.Credentials,
		vp:         opts.Viewport,
		captchaWin: opts.CaptchaWindow,
	}

	if opts.NewPage != nil {
		p.newPage = opts.NewPage
		return p, nil
	}

	chromePath := opts.ChromePath
	if chromePath == "" {
		chromePath = browser.FindChrome()
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", fmt.Sprintf("%d,%d", opts.Viewport.Width, opts.Viewport.Height)),
	}
	if chromePath != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(chromePath)}, allocOpts...)
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Proxies != nil {
		if addr := opts.Proxies.GetNext(); addr != "" {
			allocOpts = append(allocOpts, chromedp.ProxyServer(addr))
		}
	}

	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	p.newPage = func(ctx context.Context) (browser.Page, error) {
		return browser.NewPage(p.allocCtx)
	}

	log.Info().Int("max_sessions", opts.MaxSessions).Msg("Session pool ready")
	return p, nil
}

// Create opens a new session, failing fast when the tab budget is spent.
func (p *Pool) Create(ctx context.Context, sink Sink) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.sessions) >= p.max {
		p.mu.Unlock()
		log.Warn().Int("max", p.max).Msg("Session create rejected: pool full")
		return nil, ErrCapacityExceeded
	}
	// Reserve the slot before the (slow) tab launch so concurrent creates
	// cannot overshoot the ceiling.
	placeholder := &Session{}
	reserveID := fmt.Sprintf("reserve-%p", placeholder)
	p.sessions[reserveID] = placeholder
	p.mu.Unlock()

	page, err := p.newPage(ctx)
	if err != nil {
		p.mu.Lock()
		delete(p.sessions, reserveID)
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	s := newSession(context.Background(), page, sink, p.h, p.creds, p.vp)
	s.captchaWindow = p.captchaWin

	p.mu.Lock()
	delete(p.sessions, reserveID)
	if p.closed {
		p.mu.Unlock()
		s.Close()
		return nil, ErrPoolClosed
	}
	p.sessions[s.ID] = s
	p.mu.Unlock()

	s.markReady()
	log.Info().Str("session", s.ID).Int("active", p.Active()).Msg("Session created")
	return s, nil
}

// Get returns the session by id.
func (p *Pool) Get(id string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Destroy closes the session and releases its slot. Idempotent: destroying
// an unknown or already-destroyed id is a no-op.
func (p *Pool) Destroy(id string) {
	p.mu.Lock()
	s, ok := p.sessions[id]
	if ok {
		delete(p.sessions, id)
	}
	p.mu.Unlock()
	if ok && s.page != nil {
		s.Close()
		log.Info().Str("session", id).Msg("Session destroyed")
	}
}

// Active returns the number of live sessions.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Max returns the tab ceiling.
func (p *Pool) Max() int {
	return p.max
}

// Close destroys every session and tears down the shared browser process.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	for _, s := range sessions {
		if s.page != nil {
			s.Close()
		}
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	log.Info().Msg("Session pool closed")
}
