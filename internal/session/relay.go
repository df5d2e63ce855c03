// internal/session/relay.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/pkg/models"
)

const (
	// frameInterval is the screenshot polling cadence.
	frameInterval = 100 * time.Millisecond
	// frameQuality is the JPEG quality for streamed frames.
	frameQuality = 60
	// scrollCoalesceWindow sums scroll deltas arriving in a burst: the
	// first event goes out immediately, the rest are flushed once.
	scrollCoalesceWindow = 16 * time.Millisecond
	// inputDispatchTimeout bounds a single input protocol call.
	inputDispatchTimeout = 2 * time.Second
)

// Relay turns captured frames into outbound binary messages and inbound
// pointer/key/scroll messages into protocol input calls. Inputs are never
// retried: a send failure is dropped and surfaced only through
// connection-level error events.
type Relay struct {
	session *Session

	mu         sync.Mutex
	streamStop context.CancelFunc

	scroll scrollCoalescer
}

func newRelay(s *Session) *Relay {
	r := &Relay{session: s}
	r.scroll.window = scrollCoalesceWindow
	r.scroll.flush = r.dispatchScroll
	return r
}

// StartStream begins the frame capture loop. The session moves to the
// streaming state; frames are delivered to the sink as binary messages
// tagged with the session id.
func (r *Relay) StartStream() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streamStop != nil {
		return
	}
	r.session.setStatus(StatusStreaming)
	ctx, cancel := context.WithCancel(r.session.ctx)
	r.streamStop = cancel
	go r.streamLoop(ctx)
}

// StopStream halts frame capture and returns the session to ready.
func (r *Relay) StopStream() {
	r.mu.Lock()
	stop := r.streamStop
	r.streamStop = nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	if r.session.Status() == StatusStreaming {
		r.session.setStatus(StatusReady)
	}
}

func (r *Relay) streamLoop(ctx context.Context) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// While extraction owns the page, screenshot polling would
		// interleave protocol calls with the in-flight execute; skip.
		if r.session.Status() != StatusStreaming {
			continue
		}
		var frame []byte
		err := r.session.withPage(func(page browser.Page) error {
			capCtx, cancel := context.WithTimeout(ctx, inputDispatchTimeout)
			defer cancel()
			var err error
			frame, err = page.Screenshot(capCtx, frameQuality)
			return err
		})
		if err != nil {
			log.Debug().Err(err).Str("session", r.session.ID).Msg("Frame capture failed")
			continue
		}
		if r.session.sink != nil {
			r.session.sink.SendFrame(r.session.ID, frame)
		}
	}
}

// acceptingInput reports whether interactive input may touch the page.
// During scraping, input is accepted but dropped by policy: the relay must
// never interleave raw input dispatch with an in-flight extraction.
func (r *Relay) acceptingInput() bool {
	switch r.session.Status() {
	case StatusReady, StatusStreaming, StatusCaptcha:
		return true
	default:
		return false
	}
}

// HandleMouse rescales and dispatches one pointer event.
func (r *Relay) HandleMouse(ev browser.MouseEvent, displayed models.Viewport) {
	if !r.acceptingInput() {
		log.Debug().Str("session", r.session.ID).Msg("Dropping mouse input: extraction owns the page")
		return
	}
	scaled := ScaleMouse(ev, r.session.Viewport(), displayed)
	err := r.session.withPage(func(page browser.Page) error {
		ctx, cancel := context.WithTimeout(r.session.ctx, inputDispatchTimeout)
		defer cancel()
		return page.DispatchMouse(ctx, scaled)
	})
	if err != nil {
		log.Debug().Err(err).Str("session", r.session.ID).Msg("Mouse dispatch failed, dropped")
	}
}

// HandleKey dispatches one keyboard event.
func (r *Relay) HandleKey(ev browser.KeyEvent) {
	if !r.acceptingInput() {
		log.Debug().Str("session", r.session.ID).Msg("Dropping key input: extraction owns the page")
		return
	}
	err := r.session.withPage(func(page browser.Page) error {
		ctx, cancel := context.WithTimeout(r.session.ctx, inputDispatchTimeout)
		defer cancel()
		return page.DispatchKey(ctx, ev)
	})
	if err != nil {
		log.Debug().Err(err).Str("session", r.session.ID).Msg("Key dispatch failed, dropped")
	}
}

// HandleScroll rescales and coalesces one scroll event.
func (r *Relay) HandleScroll(ev browser.ScrollEvent, displayed models.Viewport) {
	if !r.acceptingInput() {
		log.Debug().Str("session", r.session.ID).Msg("Dropping scroll input: extraction owns the page")
		return
	}
	r.scroll.Add(ScaleScroll(ev, r.session.Viewport(), displayed))
}

func (r *Relay) dispatchScroll(ev browser.ScrollEvent) {
	err := r.session.withPage(func(page browser.Page) error {
		ctx, cancel := context.WithTimeout(r.session.ctx, inputDispatchTimeout)
		defer cancel()
		return page.DispatchScroll(ctx, ev)
	})
	if err != nil {
		log.Debug().Err(err).Str("session", r.session.ID).Msg("Scroll dispatch failed, dropped")
	}
}

// ScaleMouse rescales client-reported coordinates by the viewport ratio
// (natural size over displayed size), the devicePixelRatio equivalent for a
// downscaled video element.
func ScaleMouse(ev browser.MouseEvent, natural, displayed models.Viewport) browser.MouseEvent {
	sx, sy := viewportScale(natural, displayed)
	ev.X *= sx
	ev.Y *= sy
	return ev
}

// ScaleScroll rescales scroll coordinates and deltas the same way.
func ScaleScroll(ev browser.ScrollEvent, natural, displayed models.Viewport) browser.ScrollEvent {
	sx, sy := viewportScale(natural, displayed)
	ev.X *= sx
	ev.Y *= sy
	ev.DeltaX *= sx
	ev.DeltaY *= sy
	return ev
}

func viewportScale(natural, displayed models.Viewport) (float64, float64) {
	sx, sy := 1.0, 1.0
	if displayed.Width > 0 && natural.Width > 0 {
		sx = float64(natural.Width) / float64(displayed.Width)
	}
	if displayed.Height > 0 && natural.Height > 0 {
		sy = float64(natural.Height) / float64(displayed.Height)
	}
	return sx, sy
}

// scrollCoalescer forwards the first scroll event of a burst immediately
// and sums subsequent deltas within the window into a single flush.
type scrollCoalescer struct {
	mu       sync.Mutex
	window   time.Duration
	flush    func(browser.ScrollEvent)
	pending  browser.ScrollEvent
	hasPend  bool
	timer    *time.Timer
	lastSent time.Time
}

// Add feeds one scroll event into the coalescer.
func (c *scrollCoalescer) Add(ev browser.ScrollEvent) {
	c.mu.Lock()
	if !c.hasPend && time.Since(c.lastSent) >= c.window {
		c.lastSent = time.Now()
		c.mu.Unlock()
		c.flush(ev)
		return
	}
	if c.hasPend {
		c.pending.DeltaX += ev.DeltaX
		c.pending.DeltaY += ev.DeltaY
		c.pending.X = ev.X
		c.pending.Y = ev.Y
	} else {
		c.pending = ev
		c.hasPend = true
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.flushPending)
	}
	c.mu.Unlock()
}

func (c *scrollCoalescer) flushPending() {
	c.mu.Lock()
	ev := c.pending
	had := c.hasPend
	c.hasPend = false
	c.timer = nil
	c.lastSent = time.Now()
	c.mu.Unlock()
	if had {
		c.flush(ev)
	}
}
