// internal/browser/chrome.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// chromePage implements Page over a chromedp tab context.
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPage opens a fresh tab under the given allocator/browser context and
// warms it on about:blank.
func NewPage(parent context.Context) (Page, error) {
	ctx, cancel := chromedp.NewContext(parent)
	if err := chromedp.Run(ctx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to warm up tab: %w", err)
	}
	return &chromePage{ctx: ctx, cancel: cancel}, nil
}

// run executes chromedp actions against the tab while honoring the caller's
// context for cancellation. The tab context owns the target; the caller
// context only bounds this call.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, urlStr string) error {
	return p.run(ctx, chromedp.Navigate(urlStr))
}

func (p *chromePage) WaitNavigation(ctx context.Context, timeout time.Duration) (bool, error) {
	navigated := make(chan struct{}, 1)
	lctx, lcancel := context.WithCancel(p.ctx)
	defer lcancel()

	chromedp.ListenTarget(lctx, func(ev interface{}) {
		if _, ok := ev.(*cdppage.EventFrameNavigated); ok {
			select {
			case navigated <- struct{}{}:
			default:
			}
		}
	})

	select {
	case <-navigated:
		return true, nil
	case <-time.After(timeout):
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-p.ctx.Done():
		return false, p.ctx.Err()
	}
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, out any) error {
	err := p.run(ctx, chromedp.Evaluate(expr, out))
	if err != nil {
		var exc *runtime.ExceptionDetails
		if errors.As(err, &exc) {
			return fmt.Errorf("%w: %s", ErrEvalException, exc.Error())
		}
	}
	return err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (p *chromePage) SelectOption(ctx context.Context, selector, value string) error {
	return p.run(ctx,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(
			`(() => { const el = document.querySelector(%q); if (el) el.dispatchEvent(new Event('change', {bubbles: true})); })()`,
			selector), nil),
	)
}

func (p *chromePage) ScrollTo(ctx context.Context, x, y float64) error {
	return p.Evaluate(ctx, fmt.Sprintf("window.scrollTo(%f, %f)", x, y), nil)
}

func (p *chromePage) InstallShim(ctx context.Context, script string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

func (p *chromePage) GuardNavigation(ctx context.Context) (func(), error) {
	current, err := p.URL(ctx)
	if err != nil {
		return nil, err
	}

	lctx, lcancel := context.WithCancel(p.ctx)
	chromedp.ListenTarget(lctx, func(ev interface{}) {
		nav, ok := ev.(*cdppage.EventFrameRequestedNavigation)
		if !ok || samePage(current, nav.URL) {
			return
		}
		log.Debug().Str("url", nav.URL).Msg("Aborting cross-page navigation during replay")
		// Stop the load from a goroutine: chromedp listeners must not block.
		go func() {
			_ = chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
				return cdppage.StopLoading().Do(ctx)
			}))
		}()
	})
	return lcancel, nil
}

// samePage reports whether navigating from a to b stays on the same page
// (only the fragment differs, or the URLs are identical).
func samePage(a, b string) bool {
	if a == b {
		return true
	}
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	ua.Fragment = ""
	ub.Fragment = ""
	return ua.String() == ub.String()
}

func (p *chromePage) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	}))
	return buf, err
}

func (p *chromePage) DispatchMouse(ctx context.Context, ev MouseEvent) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		dispatch := input.DispatchMouseEvent(input.MouseType(ev.Type), ev.X, ev.Y)
		if ev.Button != "" {
			dispatch = dispatch.WithButton(input.MouseButton(ev.Button))
		}
		if ev.Clicks > 0 {
			dispatch = dispatch.WithClickCount(int64(ev.Clicks))
		}
		return dispatch.Do(ctx)
	}))
}

func (p *chromePage) DispatchKey(ctx context.Context, ev KeyEvent) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		dispatch := input.DispatchKeyEvent(input.KeyType(ev.Type))
		if ev.Key != "" {
			dispatch = dispatch.WithKey(ev.Key)
		}
		if ev.Code != "" {
			dispatch = dispatch.WithCode(ev.Code)
		}
		if ev.Text != "" {
			dispatch = dispatch.WithText(ev.Text)
		}
		return dispatch.Do(ctx)
	}))
}

func (p *chromePage) DispatchScroll(ctx context.Context, ev ScrollEvent) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, ev.X, ev.Y).
			WithDeltaX(ev.DeltaX).
			WithDeltaY(ev.DeltaY).
			Do(ctx)
	}))
}

func (p *chromePage) SetViewport(ctx context.Context, width, height int) error {
	return p.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
