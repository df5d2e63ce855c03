// Package session owns the concurrent browser-session lifecycle: each
// Session exclusively owns one remote page handle, serializes every
// operation against it, and exposes the status machine the protocol layer
// drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/internal/extract"
	"github.com/scrape-studio/studio/pkg/models"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusReady        Status = "ready"
	StatusStreaming    Status = "streaming"
	StatusScraping     Status = "scraping"
	StatusCaptcha      Status = "captcha"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// DefaultCaptchaWindow bounds how long a session may sit in the captcha
// state before escalating to error.
const DefaultCaptchaWindow = 2 * time.Minute

// ErrBusy is returned when an operation is not accepted in the session's
// current state.
var ErrBusy = errors.New("session is busy")

// Sink receives session output: binary frames and JSON events, both tagged
// with the owning session id. The protocol server implements it.
type Sink interface {
	SendFrame(sessionID string, data []byte)
	SendEvent(sessionID, eventType string, payload any)
}

// Session owns exactly one remote page handle for its entire lifetime. All
// page operations go through withPage, so no two protocol calls against the
// same tab ever run concurrently.
type Session struct {
	ID        string
	CreatedAt time.Time

	page  browser.Page
	sink  Sink
	h     extract.Heuristics
	creds extract.CredentialResolver

	captchaWindow time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	pageMu sync.Mutex // serializes operations against the page handle

	mu           sync.Mutex // guards the fields below
	status       Status
	currentURL   string
	viewport     models.Viewport
	captchaTimer *time.Timer
	closed       bool

	relay *Relay
}

func newSession(parent context.Context, page browser.Page, sink Sink, h extract.Heuristics, creds extract.CredentialResolver, vp models.Viewport) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:            uuid.New().String(),
		CreatedAt:     time.Now(),
		page:          page,
		sink:          sink,
		h:             h,
		creds:         creds,
		captchaWindow: DefaultCaptchaWindow,
		ctx:           ctx,
		cancel:        cancel,
		status:        StatusConnecting,
		viewport:      vp,
	}
	s.relay = newRelay(s)
	return s
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentURL returns the last navigated URL.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

// Viewport returns the session's emulated viewport.
func (s *Session) Viewport() models.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// SetViewport resizes the tab's emulated viewport and records the new
// natural size for input rescaling.
func (s *Session) SetViewport(ctx context.Context, vp models.Viewport) error {
	if vp.Width <= 0 || vp.Height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d", vp.Width, vp.Height)
	}
	err := s.withPage(func(page browser.Page) error {
		return page.SetViewport(ctx, vp.Width, vp.Height)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()
	return nil
}

// setStatus applies a transition, enforcing the lifecycle machine. Invalid
// transitions are logged and dropped rather than applied.
func (s *Session) setStatus(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(next)
}

func (s *Session) setStatusLocked(next Status) {
	if s.status == next {
		return
	}
	if !validTransition(s.status, next) {
		log.Warn().
			Str("session", s.ID).
			Str("from", string(s.status)).
			Str("to", string(next)).
			Msg("Invalid session status transition dropped")
		return
	}
	log.Debug().Str("session", s.ID).Str("from", string(s.status)).Str("to", string(next)).Msg("Session status")
	s.status = next
	if s.sink != nil {
		s.sink.SendEvent(s.ID, "session:status", map[string]string{"status": string(next)})
	}
}

// validTransition encodes the state machine: connecting -> ready ->
// {streaming|scraping}; ready/streaming -> captcha; captcha -> ready or
// error; anything -> disconnected.
func validTransition(from, to Status) bool {
	if to == StatusDisconnected || to == StatusError {
		return true
	}
	switch from {
	case StatusConnecting:
		return to == StatusReady
	case StatusReady:
		return to == StatusStreaming || to == StatusScraping || to == StatusCaptcha
	case StatusStreaming:
		return to == StatusReady || to == StatusScraping || to == StatusCaptcha
	case StatusScraping:
		return to == StatusReady || to == StatusStreaming
	case StatusCaptcha:
		return to == StatusReady
	case StatusError, StatusDisconnected:
		return false
	}
	return false
}

// withPage serializes an operation against the session's page handle.
func (s *Session) withPage(fn func(page browser.Page) error) error {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	return fn(s.page)
}

// Navigate loads a URL in the session's tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	switch s.Status() {
	case StatusReady, StatusStreaming:
	default:
		return ErrBusy
	}
	err := s.withPage(func(page browser.Page) error {
		navCtx, cancel := context.WithTimeout(ctx, s.h.NavigationTimeout)
		defer cancel()
		return page.Navigate(navCtx, url)
	})
	if err == nil {
		s.mu.Lock()
		s.currentURL = url
		s.mu.Unlock()
	}
	return err
}

// Scrape runs one extraction against the session's page. While it runs the
// session is in the scraping state and the relay drops interactive input:
// extraction owns the page, and raw input must never interleave with an
// in-flight extraction call.
func (s *Session) Scrape(ctx context.Context, cfg *models.ScraperConfig) *models.ScrapeResult {
	s.mu.Lock()
	prev := s.status
	if prev != StatusReady && prev != StatusStreaming {
		s.mu.Unlock()
		return &models.ScrapeResult{
			Success: false,
			Items:   []models.ScrapedItem{},
			Errors:  []string{ErrBusy.Error()},
		}
	}
	s.setStatusLocked(StatusScraping)
	s.mu.Unlock()

	var result *models.ScrapeResult
	_ = s.withPage(func(page browser.Page) error {
		engine := extract.New(page,
			extract.WithHeuristics(s.h),
			extract.WithCredentials(s.creds),
		)
		result = engine.Execute(ctx, cfg)
		return nil
	})
	if result == nil {
		// The session was torn down before the engine could run.
		result = &models.ScrapeResult{
			Success: false,
			Items:   []models.ScrapedItem{},
			Errors:  []string{"session closed"},
		}
	}

	s.mu.Lock()
	if s.status == StatusScraping {
		s.setStatusLocked(prev)
	}
	s.mu.Unlock()
	return result
}

// ValidateConfig checks a config against the live page without extracting.
func (s *Session) ValidateConfig(ctx context.Context, cfg *models.ScraperConfig) error {
	return s.withPage(func(page browser.Page) error {
		engine := extract.New(page, extract.WithHeuristics(s.h))
		return engine.ValidateConfig(ctx, cfg)
	})
}

// Evaluate runs a script in the session's page, serialized like any other
// page operation. Used by the thin protocol layer for selector tests and
// element highlighting.
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	return s.withPage(func(page browser.Page) error {
		return page.Evaluate(ctx, expr, out)
	})
}

// Relay exposes the session's frame/input relay.
func (s *Session) Relay() *Relay {
	return s.relay
}

// ReportCaptcha moves the session into the captcha state and arms the
// bounded resolution window. A session stuck past the window goes to error.
func (s *Session) ReportCaptcha() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusCaptcha {
		return
	}
	s.setStatusLocked(StatusCaptcha)
	if s.status != StatusCaptcha {
		return
	}
	s.captchaTimer = time.AfterFunc(s.captchaWindow, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status == StatusCaptcha {
			log.Warn().Str("session", s.ID).Msg("Captcha unresolved past window, failing session")
			s.setStatusLocked(StatusError)
		}
	})
}

// ResolveCaptcha returns the session to ready after a human cleared the
// challenge.
func (s *Session) ResolveCaptcha() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusCaptcha {
		return
	}
	if s.captchaTimer != nil {
		s.captchaTimer.Stop()
		s.captchaTimer = nil
	}
	s.setStatusLocked(StatusReady)
}

// markReady completes session startup.
func (s *Session) markReady() {
	s.setStatus(StatusReady)
}

// Close tears the session down: it cancels the session context (aborting
// any in-flight protocol call) and releases the page handle. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.captchaTimer != nil {
		s.captchaTimer.Stop()
		s.captchaTimer = nil
	}
	s.setStatusLocked(StatusDisconnected)
	s.mu.Unlock()

	s.relay.StopStream()
	s.cancel()
	if err := s.page.Close(); err != nil {
		log.Debug().Err(err).Str("session", s.ID).Msg("Page close reported error")
	}
	log.Debug().Str("session", s.ID).Msg("Session closed")
}
