// internal/server/server_test.go
package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/internal/session"
	"github.com/scrape-studio/studio/pkg/models"
)

// wsPage is a minimal Page for protocol round-trip tests.
type wsPage struct {
	html    string
	current string
}

func (p *wsPage) Navigate(_ context.Context, url string) error {
	p.current = url
	return nil
}

func (p *wsPage) WaitNavigation(context.Context, time.Duration) (bool, error) { return true, nil }

func (p *wsPage) Evaluate(_ context.Context, expr string, out any) error {
	switch v := out.(type) {
	case *int:
		*v = 7
	case *string:
		*v = p.current
	case *bool:
		*v = false
	}
	return nil
}

func (p *wsPage) HTML(context.Context) (string, error)                 { return p.html, nil }
func (p *wsPage) URL(context.Context) (string, error)                  { return p.current, nil }
func (p *wsPage) Click(context.Context, string) error                  { return nil }
func (p *wsPage) Type(context.Context, string, string) error           { return nil }
func (p *wsPage) SelectOption(context.Context, string, string) error   { return nil }
func (p *wsPage) ScrollTo(context.Context, float64, float64) error     { return nil }
func (p *wsPage) InstallShim(context.Context, string) error            { return nil }
func (p *wsPage) GuardNavigation(context.Context) (func(), error)      { return func() {}, nil }
func (p *wsPage) Screenshot(context.Context, int) ([]byte, error)      { return []byte{0xff, 0xd8}, nil }
func (p *wsPage) DispatchMouse(context.Context, browser.MouseEvent) error {
	return nil
}
func (p *wsPage) DispatchKey(context.Context, browser.KeyEvent) error       { return nil }
func (p *wsPage) DispatchScroll(context.Context, browser.ScrollEvent) error { return nil }
func (p *wsPage) SetViewport(context.Context, int, int) error               { return nil }
func (p *wsPage) Close() error                                              { return nil }

const wsListingHTML = `<html><body>
<div class="product-card"><span class="name">A</span><span class="price">$1</span></div>
<div class="product-card"><span class="name">B</span><span class="price">$2</span></div>
<div class="product-card"><span class="name">C</span><span class="price">$3</span></div>
</body></html>`

func dialTestServer(t *testing.T) (*websocket.Conn, *session.Pool) {
	t.Helper()
	pool, err := session.NewPool(session.PoolOptions{
		MaxSessions: 2,
		NewPage: func(context.Context) (browser.Page, error) {
			return &wsPage{html: wsListingHTML}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	srv := httptest.NewServer(New(pool).Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, pool
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType, sessionID string, payload any) {
	t.Helper()
	env, err := newEnvelope(msgType, sessionID, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", msgType, err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// awaitEnvelope reads until a text envelope of the wanted type arrives,
// skipping binary frames and interleaved status events.
func awaitEnvelope(t *testing.T, conn *websocket.Conn, want string) *Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("awaiting %s: %v", want, err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		if env.Type == want {
			return &env
		}
	}
	t.Fatalf("no %s envelope arrived", want)
	return nil
}

func createSession(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	sendMsg(t, conn, MsgSessionCreate, "", createPayload{})
	env := awaitEnvelope(t, conn, MsgSessionCreated)
	var p createdPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("created payload: %v", err)
	}
	if p.SessionID == "" {
		t.Fatal("empty session id")
	}
	return p.SessionID
}

func TestServerSessionCreateDestroy(t *testing.T) {
	conn, pool := dialTestServer(t)

	id := createSession(t, conn)
	if pool.Active() != 1 {
		t.Errorf("active = %d", pool.Active())
	}

	sendMsg(t, conn, MsgSessionDestroy, id, nil)
	deadline := time.Now().Add(2 * time.Second)
	for pool.Active() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pool.Active() != 0 {
		t.Errorf("active = %d after destroy", pool.Active())
	}
}

func TestServerSessionCreateViewport(t *testing.T) {
	conn, _ := dialTestServer(t)

	sendMsg(t, conn, MsgSessionCreate, "", createPayload{
		Viewport: &models.Viewport{Width: 640, Height: 400},
	})
	env := awaitEnvelope(t, conn, MsgSessionCreated)
	var p createdPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("created payload: %v", err)
	}
	if p.Viewport.Width != 640 || p.Viewport.Height != 400 {
		t.Errorf("viewport = %+v", p.Viewport)
	}
}

func TestServerFrameFraming(t *testing.T) {
	conn, _ := dialTestServer(t)
	id := createSession(t, conn)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("awaiting frame: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(data) < 1+len(id) {
			t.Fatalf("frame too short: %d bytes", len(data))
		}
		if int(data[0]) != len(id) {
			t.Fatalf("id length prefix = %d, want %d", data[0], len(id))
		}
		if string(data[1:1+len(id)]) != id {
			t.Fatalf("frame session id = %q", data[1:1+len(id)])
		}
		return
	}
}

func TestServerUnknownMessageType(t *testing.T) {
	conn, _ := dialTestServer(t)

	sendMsg(t, conn, "no:such:thing", "", nil)
	env := awaitEnvelope(t, conn, MsgError)
	var p errorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if !strings.Contains(p.Message, "unknown message type") {
		t.Errorf("message = %q", p.Message)
	}
}

func TestServerUnknownSession(t *testing.T) {
	conn, _ := dialTestServer(t)

	sendMsg(t, conn, MsgNavigate, "not-a-session", navigatePayload{URL: "https://x.example/"})
	env := awaitEnvelope(t, conn, MsgError)
	var p errorPayload
	_ = json.Unmarshal(env.Payload, &p)
	if !strings.Contains(p.Message, "not found") {
		t.Errorf("message = %q", p.Message)
	}
}

func TestServerSelectorTest(t *testing.T) {
	conn, _ := dialTestServer(t)
	id := createSession(t, conn)

	sendMsg(t, conn, MsgSelectorTest, id, selectorPayload{Selector: ".product-card"})
	env := awaitEnvelope(t, conn, MsgSelectorResult)
	var p selectorResultPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("result payload: %v", err)
	}
	if p.Selector != ".product-card" || p.Count != 7 {
		t.Errorf("result = %+v", p)
	}

	// dom:select takes the same path with a different reply type.
	sendMsg(t, conn, MsgDOMSelect, id, selectorPayload{Selector: ".name"})
	env = awaitEnvelope(t, conn, MsgDOMSelected)
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("selected payload: %v", err)
	}
	if p.Count != 7 {
		t.Errorf("count = %d", p.Count)
	}
}

func TestServerRecorderFlow(t *testing.T) {
	conn, _ := dialTestServer(t)
	id := createSession(t, conn)

	sendMsg(t, conn, MsgRecorderStart, id, nil)
	sendMsg(t, conn, MsgRecorderAction, id, recorderActionPayload{
		Action: models.RecorderAction{Type: models.ActionClick, Selector: "#cookie-accept"},
	})
	sendMsg(t, conn, MsgRecorderAction, id, recorderActionPayload{
		Action: models.RecorderAction{Type: models.ActionType, Selector: "#search", Value: "widgets"},
	})
	sendMsg(t, conn, MsgRecorderStop, id, nil)

	env := awaitEnvelope(t, conn, MsgRecorderDone)
	var p recorderDonePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("done payload: %v", err)
	}
	if len(p.Actions) != 2 {
		t.Fatalf("actions = %+v", p.Actions)
	}
	if p.Actions[0].Selector != "#cookie-accept" || p.Actions[1].Value != "widgets" {
		t.Errorf("actions = %+v", p.Actions)
	}
}

func TestServerRecorderActionWithoutStart(t *testing.T) {
	conn, _ := dialTestServer(t)
	id := createSession(t, conn)

	sendMsg(t, conn, MsgRecorderAction, id, recorderActionPayload{
		Action: models.RecorderAction{Type: models.ActionClick, Selector: "#x"},
	})
	env := awaitEnvelope(t, conn, MsgError)
	var p errorPayload
	_ = json.Unmarshal(env.Payload, &p)
	if !strings.Contains(p.Message, "recorder not started") {
		t.Errorf("message = %q", p.Message)
	}
}

func TestServerPaginationDetect(t *testing.T) {
	conn, _ := dialTestServer(t)

	sendMsg(t, conn, MsgPaginationDetect, "", paginationDetectPayload{
		BaseURL: "https://shop.example/items?page=1",
		NextURL: "https://shop.example/items?page=2",
	})
	env := awaitEnvelope(t, conn, MsgPaginationCandidates)
	var p paginationCandidatesPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("candidates payload: %v", err)
	}
	if p.Pattern == nil || p.Pattern.Pattern != "?page={page}" {
		t.Errorf("pattern = %+v", p.Pattern)
	}

	// Ambiguous URLs yield a null pattern, not an error.
	sendMsg(t, conn, MsgPaginationDetect, "", paginationDetectPayload{
		BaseURL: "https://shop.example/a",
		NextURL: "https://shop.example/b",
	})
	env = awaitEnvelope(t, conn, MsgPaginationCandidates)
	p = paginationCandidatesPayload{}
	_ = json.Unmarshal(env.Payload, &p)
	if p.Pattern != nil {
		t.Errorf("pattern = %+v", p.Pattern)
	}
}

func TestServerScrapeExecute(t *testing.T) {
	conn, _ := dialTestServer(t)
	id := createSession(t, conn)

	cfg := models.ScraperConfig{
		Name:     "cards",
		StartURL: "https://shop.example/",
		Selectors: []models.AssignedSelector{
			{Role: models.RoleTitle, CSS: ".name", ExtractionType: models.ExtractText},
			{Role: models.RolePrice, CSS: ".price", ExtractionType: models.ExtractText},
		},
	}
	sendMsg(t, conn, MsgScrapeExecute, id, scrapeExecutePayload{Config: cfg})

	env := awaitEnvelope(t, conn, MsgScrapeResult)
	var res models.ScrapeResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		t.Fatalf("result payload: %v", err)
	}
	if !res.Success {
		t.Fatalf("scrape failed: %v", res.Errors)
	}
	if len(res.Items) != 3 || res.PagesScraped != 1 {
		t.Errorf("items = %d, pages = %d", len(res.Items), res.PagesScraped)
	}
}
