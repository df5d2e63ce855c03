// Package server is the WebSocket boundary of the scraper engine. It is
// deliberately thin: every message is decoded, validated, and forwarded into
// the session pool; no extraction or heuristic logic lives here.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/internal/extract"
	"github.com/scrape-studio/studio/internal/session"
	"github.com/scrape-studio/studio/pkg/models"
)

const (
	writeTimeout = 10 * time.Second
	// demoClickSettle is how long a demo click gets to trigger navigation
	// before the server samples the page URL for pattern detection.
	demoClickSettle = 2 * time.Second
)

// Server accepts WebSocket clients and routes their messages into the
// session pool.
type Server struct {
	pool     *session.Pool
	upgrader websocket.Upgrader
}

// New creates a Server over the given pool.
func New(pool *session.Pool) *Server {
	return &Server{
		pool: pool,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The engine is a local tool; cross-origin pages may host the
			// client UI during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler for the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

// Run serves the WebSocket endpoint at /ws until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Protocol server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		server:   s,
		conn:     conn,
		sessions: make(map[string]struct{}),
		recorded: make(map[string][]models.RecorderAction),
		demoBase: make(map[string]string),
	}
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("Client connected")
	c.readLoop(r.Context())
}

// client is one WebSocket connection. It implements session.Sink so frames
// and events from the sessions it created land on its socket. Writes are
// serialized by writeMu; gorilla connections do not allow concurrent writers.
type client struct {
	server *Server
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]struct{}
	recorded map[string][]models.RecorderAction
	demoBase map[string]string
}

// SendFrame implements session.Sink. Frames go out as binary messages
// prefixed with the session id: one length byte, the id bytes, then JPEG
// data.
func (c *client) SendFrame(sessionID string, data []byte) {
	buf := make([]byte, 0, 1+len(sessionID)+len(data))
	buf = append(buf, byte(len(sessionID)))
	buf = append(buf, sessionID...)
	buf = append(buf, data...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		log.Debug().Err(err).Str("session", sessionID).Msg("Frame write failed")
	}
}

// SendEvent implements session.Sink.
func (c *client) SendEvent(sessionID, eventType string, payload any) {
	c.send(eventType, sessionID, payload)
}

func (c *client) send(msgType, sessionID string, payload any) {
	env, err := newEnvelope(msgType, sessionID, payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("Failed to encode envelope")
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(env); err != nil {
		log.Debug().Err(err).Str("type", msgType).Msg("Envelope write failed")
	}
}

func (c *client) sendError(sessionID, message string) {
	c.send(MsgError, sessionID, errorPayload{Message: message})
}

func (c *client) readLoop(ctx context.Context) {
	defer c.teardown()
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Client connection dropped")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError("", "malformed envelope: "+err.Error())
			continue
		}
		c.handle(ctx, &env)
	}
}

// teardown destroys every session this connection created. Session slots are
// owned by their connection; a dropped client must never leak tabs.
func (c *client) teardown() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.sessions = make(map[string]struct{})
	c.mu.Unlock()

	for _, id := range ids {
		c.server.pool.Destroy(id)
	}
	_ = c.conn.Close()
	log.Info().Int("sessions", len(ids)).Msg("Client disconnected")
}

func (c *client) handle(ctx context.Context, env *Envelope) {
	switch env.Type {
	case MsgSessionCreate:
		c.handleCreate(ctx, env)
	case MsgSessionDestroy:
		c.handleDestroy(env)
	case MsgNavigate:
		c.handleNavigate(ctx, env)
	case MsgInputMouse:
		c.handleMouse(env)
	case MsgInputKeyboard:
		c.handleKeyboard(env)
	case MsgInputScroll:
		c.handleScroll(env)
	case MsgDOMSelect, MsgSelectorTest:
		c.handleSelectorTest(ctx, env)
	case MsgDOMHighlight:
		c.handleHighlight(ctx, env)
	case MsgRecorderStart:
		c.handleRecorderStart(env)
	case MsgRecorderAction:
		c.handleRecorderAction(env)
	case MsgRecorderStop:
		c.handleRecorderStop(env)
	case MsgPaginationDetect:
		c.handlePaginationDetect(env)
	case MsgPaginationStartDemo:
		c.handleStartDemo(ctx, env)
	case MsgPaginationDemoScroll:
		c.handleScroll(env)
	case MsgPaginationDemoClick:
		c.handleDemoClick(ctx, env)
	case MsgScrapeExecute:
		c.handleScrapeExecute(ctx, env)
	case MsgCaptchaDetected:
		c.withSession(env, func(s *session.Session) { s.ReportCaptcha() })
	case MsgCaptchaResolved:
		c.withSession(env, func(s *session.Session) { s.ResolveCaptcha() })
	default:
		c.sendError(env.SessionID, "unknown message type: "+env.Type)
	}
}

func (c *client) withSession(env *Envelope, fn func(*session.Session)) {
	s, err := c.server.pool.Get(env.SessionID)
	if err != nil {
		c.sendError(env.SessionID, err.Error())
		return
	}
	fn(s)
}

func decode[T any](env *Envelope) (T, error) {
	var p T
	if len(env.Payload) == 0 {
		return p, nil
	}
	err := json.Unmarshal(env.Payload, &p)
	return p, err
}

func (c *client) handleCreate(ctx context.Context, env *Envelope) {
	p, err := decode[createPayload](env)
	if err != nil {
		c.sendError("", "bad session:create payload: "+err.Error())
		return
	}
	s, err := c.server.pool.Create(ctx, c)
	if err != nil {
		c.sendError("", err.Error())
		return
	}
	c.mu.Lock()
	c.sessions[s.ID] = struct{}{}
	c.mu.Unlock()

	if p.Viewport != nil {
		if err := s.SetViewport(ctx, *p.Viewport); err != nil {
			log.Debug().Err(err).Str("session", s.ID).Msg("Client viewport rejected, keeping pool default")
		}
	}
	c.send(MsgSessionCreated, s.ID, createdPayload{SessionID: s.ID, Viewport: s.Viewport()})
	s.Relay().StartStream()
}

func (c *client) handleDestroy(env *Envelope) {
	c.mu.Lock()
	delete(c.sessions, env.SessionID)
	c.mu.Unlock()
	c.server.pool.Destroy(env.SessionID)
}

func (c *client) handleNavigate(ctx context.Context, env *Envelope) {
	p, err := decode[navigatePayload](env)
	if err != nil || p.URL == "" {
		c.sendError(env.SessionID, "bad navigate payload")
		return
	}
	c.withSession(env, func(s *session.Session) {
		if err := s.Navigate(ctx, p.URL); err != nil {
			c.sendError(env.SessionID, "navigation failed: "+err.Error())
		}
	})
}

func (c *client) handleMouse(env *Envelope) {
	p, err := decode[mousePayload](env)
	if err != nil {
		c.sendError(env.SessionID, "bad input:mouse payload")
		return
	}
	c.withSession(env, func(s *session.Session) {
		s.Relay().HandleMouse(browser.MouseEvent{
			Type:   p.Type,
			X:      p.X,
			Y:      p.Y,
			Button: p.Button,
			Clicks: p.Clicks,
		}, models.Viewport{Width: p.Displayed.Width, Height: p.Displayed.Height})
	})
}

func (c *client) handleKeyboard(env *Envelope) {
	p, err := decode[keyboardPayload](env)
	if err != nil {
		c.sendError(env.SessionID, "bad input:keyboard payload")
		return
	}
	c.withSession(env, func(s *session.Session) {
		s.Relay().HandleKey(browser.KeyEvent{Type: p.Type, Key: p.Key, Code: p.Code, Text: p.Text})
	})
}

func (c *client) handleScroll(env *Envelope) {
	p, err := decode[scrollPayload](env)
	if err != nil {
		c.sendError(env.SessionID, "bad input:scroll payload")
		return
	}
	c.withSession(env, func(s *session.Session) {
		s.Relay().HandleScroll(browser.ScrollEvent{
			X: p.X, Y: p.Y, DeltaX: p.DeltaX, DeltaY: p.DeltaY,
		}, models.Viewport{Width: p.Displayed.Width, Height: p.Displayed.Height})
	})
}

// handleSelectorTest counts live matches for a client-supplied selector.
// dom:select shares the path: selector construction happens client-side and
// the server only verifies, replying dom:selected.
func (c *client) handleSelectorTest(ctx context.Context, env *Envelope) {
	p, err := decode[selectorPayload](env)
	if err != nil || p.Selector == "" {
		c.sendError(env.SessionID, "bad selector payload")
		return
	}
	reply := MsgSelectorResult
	if env.Type == MsgDOMSelect {
		reply = MsgDOMSelected
	}
	c.withSession(env, func(s *session.Session) {
		var count int
		expr := fmt.Sprintf("document.querySelectorAll(%s).length", strconv.Quote(p.Selector))
		if err := s.Evaluate(ctx, expr, &count); err != nil {
			c.sendError(env.SessionID, "selector test failed: "+err.Error())
			return
		}
		c.send(reply, env.SessionID, selectorResultPayload{Selector: p.Selector, Count: count})
	})
}

func (c *client) handleHighlight(ctx context.Context, env *Envelope) {
	p, err := decode[selectorPayload](env)
	if err != nil || p.Selector == "" {
		c.sendError(env.SessionID, "bad dom:highlight payload")
		return
	}
	c.withSession(env, func(s *session.Session) {
		expr := fmt.Sprintf(
			"document.querySelectorAll(%s).forEach(el => el.style.outline = '2px solid #f60'); undefined",
			strconv.Quote(p.Selector))
		if err := s.Evaluate(ctx, expr, nil); err != nil {
			log.Debug().Err(err).Str("session", env.SessionID).Msg("Highlight failed")
		}
	})
}

func (c *client) handleRecorderStart(env *Envelope) {
	c.withSession(env, func(s *session.Session) {
		c.mu.Lock()
		c.recorded[s.ID] = []models.RecorderAction{}
		c.mu.Unlock()
	})
}

func (c *client) handleRecorderAction(env *Envelope) {
	p, err := decode[recorderActionPayload](env)
	if err != nil {
		c.sendError(env.SessionID, "bad recorder:action payload")
		return
	}
	c.mu.Lock()
	if _, ok := c.recorded[env.SessionID]; !ok {
		c.mu.Unlock()
		c.sendError(env.SessionID, "recorder not started")
		return
	}
	c.recorded[env.SessionID] = append(c.recorded[env.SessionID], p.Action)
	c.mu.Unlock()
}

func (c *client) handleRecorderStop(env *Envelope) {
	c.mu.Lock()
	actions := c.recorded[env.SessionID]
	delete(c.recorded, env.SessionID)
	c.mu.Unlock()
	if actions == nil {
		actions = []models.RecorderAction{}
	}
	c.send(MsgRecorderDone, env.SessionID, recorderDonePayload{Actions: actions})
}

// handlePaginationDetect infers a URL pattern from two URLs supplied by the
// client (typically start page and observed second page).
func (c *client) handlePaginationDetect(env *Envelope) {
	p, err := decode[paginationDetectPayload](env)
	if err != nil || p.BaseURL == "" || p.NextURL == "" {
		c.sendError(env.SessionID, "bad pagination:detect payload")
		return
	}
	pattern, ok := extract.DetectURLPattern(p.BaseURL, p.NextURL)
	if !ok {
		pattern = nil
	}
	c.send(MsgPaginationCandidates, env.SessionID, paginationCandidatesPayload{Pattern: pattern})
}

// handleStartDemo records the session's current URL as the detection base
// for a subsequent demo click.
func (c *client) handleStartDemo(ctx context.Context, env *Envelope) {
	c.withSession(env, func(s *session.Session) {
		base := s.CurrentURL()
		var href string
		if err := s.Evaluate(ctx, "location.href", &href); err == nil && href != "" {
			base = href
		}
		c.mu.Lock()
		c.demoBase[s.ID] = base
		c.mu.Unlock()
	})
}

// handleDemoClick forwards the click, waits for any navigation it triggers
// to settle, and compares the resulting URL with the demo base.
func (c *client) handleDemoClick(ctx context.Context, env *Envelope) {
	p, err := decode[mousePayload](env)
	if err != nil {
		c.sendError(env.SessionID, "bad pagination:demoClick payload")
		return
	}
	c.mu.Lock()
	base := c.demoBase[env.SessionID]
	c.mu.Unlock()
	if base == "" {
		c.sendError(env.SessionID, "pagination demo not started")
		return
	}
	c.withSession(env, func(s *session.Session) {
		displayed := models.Viewport{Width: p.Displayed.Width, Height: p.Displayed.Height}
		s.Relay().HandleMouse(browser.MouseEvent{
			Type: "mousePressed", X: p.X, Y: p.Y, Button: "left", Clicks: 1,
		}, displayed)
		s.Relay().HandleMouse(browser.MouseEvent{
			Type: "mouseReleased", X: p.X, Y: p.Y, Button: "left", Clicks: 1,
		}, displayed)

		go func() {
			timer := time.NewTimer(demoClickSettle)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			var href string
			if err := s.Evaluate(ctx, "location.href", &href); err != nil || href == "" {
				c.send(MsgPaginationCandidates, env.SessionID, paginationCandidatesPayload{})
				return
			}
			pattern, ok := extract.DetectURLPattern(base, href)
			if !ok {
				pattern = nil
			}
			c.send(MsgPaginationCandidates, env.SessionID, paginationCandidatesPayload{Pattern: pattern})
		}()
	})
}

// handleScrapeExecute runs the extraction asynchronously; the session state
// machine keeps the tab exclusive for the duration.
func (c *client) handleScrapeExecute(ctx context.Context, env *Envelope) {
	p, err := decode[scrapeExecutePayload](env)
	if err != nil || p.Config.StartURL == "" {
		c.sendError(env.SessionID, "bad scrape:execute payload")
		return
	}
	c.withSession(env, func(s *session.Session) {
		go func() {
			cfg := p.Config
			result := s.Scrape(ctx, &cfg)
			c.send(MsgScrapeResult, env.SessionID, result)
		}()
	})
}
