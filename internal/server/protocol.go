// internal/server/protocol.go
package server

import (
	"encoding/json"
	"time"

	"github.com/scrape-studio/studio/pkg/models"
)

// Envelope is the JSON wire format for every text message in both
// directions. Binary WebSocket messages carry frame data out-of-band and
// never use this envelope.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Message types. Client-to-server unless noted.
const (
	MsgSessionCreate  = "session:create"
	MsgSessionCreated = "session:created" // server -> client
	MsgSessionDestroy = "session:destroy"
	MsgSessionStatus  = "session:status" // server -> client

	MsgNavigate = "navigate"

	MsgInputMouse    = "input:mouse"
	MsgInputKeyboard = "input:keyboard"
	MsgInputScroll   = "input:scroll"

	MsgDOMSelect    = "dom:select"
	MsgDOMHighlight = "dom:highlight"
	MsgDOMSelected  = "dom:selected" // server -> client

	MsgSelectorTest   = "selector:test"
	MsgSelectorResult = "selector:result" // server -> client

	MsgRecorderStart  = "recorder:start"
	MsgRecorderAction = "recorder:action"
	MsgRecorderStop   = "recorder:stop"
	MsgRecorderDone   = "recorder:done" // server -> client

	MsgPaginationDetect     = "pagination:detect"
	MsgPaginationCandidates = "pagination:candidates" // server -> client
	MsgPaginationStartDemo  = "pagination:startDemo"
	MsgPaginationDemoScroll = "pagination:demoScroll"
	MsgPaginationDemoClick  = "pagination:demoClick"

	MsgScrapeExecute = "scrape:execute"
	MsgScrapeResult  = "scrape:result" // server -> client

	MsgCaptchaDetected = "captcha:detected"
	MsgCaptchaResolved = "captcha:resolved"

	MsgError = "error" // server -> client
)

func newEnvelope(msgType, sessionID string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:      msgType,
		SessionID: sessionID,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

type createPayload struct {
	Viewport *models.Viewport `json:"viewport,omitempty"`
}

type createdPayload struct {
	SessionID string          `json:"sessionId"`
	Viewport  models.Viewport `json:"viewport"`
}

type navigatePayload struct {
	URL string `json:"url"`
}

// viewportPayload is the client's displayed size, used to rescale input
// coordinates to the tab's natural viewport.
type viewportPayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type mousePayload struct {
	Type      string          `json:"type"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Button    string          `json:"button,omitempty"`
	Clicks    int             `json:"clickCount,omitempty"`
	Displayed viewportPayload `json:"displayed"`
}

type keyboardPayload struct {
	Type string `json:"type"`
	Key  string `json:"key"`
	Code string `json:"code,omitempty"`
	Text string `json:"text,omitempty"`
}

type scrollPayload struct {
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	DeltaX    float64         `json:"deltaX"`
	DeltaY    float64         `json:"deltaY"`
	Displayed viewportPayload `json:"displayed"`
}

type selectorPayload struct {
	Selector string `json:"selector"`
}

type selectorResultPayload struct {
	Selector string `json:"selector"`
	Count    int    `json:"count"`
}

type recorderActionPayload struct {
	Action models.RecorderAction `json:"action"`
}

type recorderDonePayload struct {
	Actions []models.RecorderAction `json:"actions"`
}

type paginationDetectPayload struct {
	BaseURL string `json:"baseUrl"`
	NextURL string `json:"nextUrl"`
}

type paginationCandidatesPayload struct {
	Pattern *models.PaginationPattern `json:"pattern"`
}

type scrapeExecutePayload struct {
	Config models.ScraperConfig `json:"config"`
}

type errorPayload struct {
	Message string `json:"message"`
}
