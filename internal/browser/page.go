// Package browser provides the remote page handle: a narrow capability
// interface over one real browser tab, plus its chromedp implementation.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrEvalException is returned when remotely evaluated script threw. The
// extraction engine treats this as fatal for the calling operation.
var ErrEvalException = errors.New("script evaluation exception")

// MouseEvent is a protocol-level pointer event in page coordinates.
type MouseEvent struct {
	Type   string  // "mousePressed", "mouseReleased", "mouseMoved"
	X      float64
	Y      float64
	Button string // "left", "right", "middle", "none"
	Clicks int
}

// KeyEvent is a protocol-level keyboard event.
type KeyEvent struct {
	Type string // "keyDown", "keyUp", "char"
	Key  string
	Code string
	Text string
}

// ScrollEvent is a wheel event in page coordinates.
type ScrollEvent struct {
	X      float64
	Y      float64
	DeltaX float64
	DeltaY float64
}

// Page is the capability surface the engine and session layer depend on.
// One Page is one real browser tab; callers must serialize access (the
// session owns that discipline). Every blocking call takes a context and
// observes teardown of the underlying tab as an error.
type Page interface {
	// Navigate loads the URL and waits for the load event or ctx deadline.
	Navigate(ctx context.Context, url string) error

	// WaitNavigation blocks until a navigation completes or the timeout
	// elapses. A timeout is not an error; it returns false.
	WaitNavigation(ctx context.Context, timeout time.Duration) (bool, error)

	// Evaluate runs the expression in the page and unmarshals the result
	// into out (out may be nil). A thrown exception yields an error
	// wrapping ErrEvalException.
	Evaluate(ctx context.Context, expr string, out any) error

	// HTML returns the full serialized document.
	HTML(ctx context.Context) (string, error)

	// URL returns the page's current location.
	URL(ctx context.Context) (string, error)

	// Click, Type and SelectOption act on the first element matching the
	// selector. They fail if no element matches.
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, value string) error

	// ScrollTo sets the window scroll position.
	ScrollTo(ctx context.Context, x, y float64) error

	// InstallShim registers a script evaluated on every new document before
	// any page code runs.
	InstallShim(ctx context.Context, script string) error

	// GuardNavigation blocks cross-page navigations until the returned
	// release function is called. Same-document navigation stays allowed.
	GuardNavigation(ctx context.Context) (release func(), err error)

	// Screenshot captures the viewport as JPEG at the given quality.
	Screenshot(ctx context.Context, quality int) ([]byte, error)

	// Input dispatch. Coordinates are page CSS pixels; the relay owns any
	// client-side rescaling.
	DispatchMouse(ctx context.Context, ev MouseEvent) error
	DispatchKey(ctx context.Context, ev KeyEvent) error
	DispatchScroll(ctx context.Context, ev ScrollEvent) error

	// SetViewport resizes the emulated viewport.
	SetViewport(ctx context.Context, width, height int) error

	// Close tears the tab down, aborting any in-flight calls.
	Close() error
}
