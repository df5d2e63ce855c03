// internal/session/pool_test.go
package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/scrape-studio/studio/internal/browser"
)

// stubPage is an inert Page implementation for lifecycle tests.
type stubPage struct {
	mu      sync.Mutex
	html    string
	current string
	navs    []string
	navErr  error
	closed  bool

	mouse   int
	keys    int
	scrolls int
	vpW     int
	vpH     int
}

var _ browser.Page = (*stubPage)(nil)

func (p *stubPage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navErr != nil {
		return p.navErr
	}
	p.current = url
	p.navs = append(p.navs, url)
	return nil
}

func (p *stubPage) WaitNavigation(context.Context, time.Duration) (bool, error) { return true, nil }
func (p *stubPage) Evaluate(context.Context, string, any) error                 { return nil }

func (p *stubPage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *stubPage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *stubPage) Click(context.Context, string) error                { return nil }
func (p *stubPage) Type(context.Context, string, string) error         { return nil }
func (p *stubPage) SelectOption(context.Context, string, string) error { return nil }
func (p *stubPage) ScrollTo(context.Context, float64, float64) error   { return nil }
func (p *stubPage) InstallShim(context.Context, string) error          { return nil }
func (p *stubPage) GuardNavigation(context.Context) (func(), error)    { return func() {}, nil }

func (p *stubPage) Screenshot(context.Context, int) ([]byte, error) {
	return []byte{0xff, 0xd8, 0xff}, nil
}

func (p *stubPage) DispatchMouse(context.Context, browser.MouseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mouse++
	return nil
}

func (p *stubPage) DispatchKey(context.Context, browser.KeyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys++
	return nil
}

func (p *stubPage) DispatchScroll(context.Context, browser.ScrollEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

func (p *stubPage) SetViewport(_ context.Context, w, h int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vpW, p.vpH = w, h
	return nil
}

func (p *stubPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *stubPage) mouseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mouse
}

// recordSink captures session output for assertions.
type recordSink struct {
	mu     sync.Mutex
	frames int
	events []string
}

func (s *recordSink) SendFrame(string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
}

func (s *recordSink) SendEvent(_ string, eventType string, _ any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
}

func (s *recordSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func stubPool(t *testing.T, max int) *Pool {
	t.Helper()
	p, err := NewPool(PoolOptions{
		MaxSessions: max,
		NewPage: func(context.Context) (browser.Page, error) {
			return &stubPage{}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func TestPoolCapacity(t *testing.T) {
	p := stubPool(t, 2)
	defer p.Close()

	ctx := context.Background()
	first, err := p.Create(ctx, nil)
	if err != nil {
		t.Fatalf("create 1: %v", err)
	}
	if _, err := p.Create(ctx, nil); err != nil {
		t.Fatalf("create 2: %v", err)
	}

	// The third create must fail fast, not queue.
	if _, err := p.Create(ctx, nil); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("create 3: %v, want ErrCapacityExceeded", err)
	}

	// Destroying one frees the slot.
	p.Destroy(first.ID)
	if _, err := p.Create(ctx, nil); err != nil {
		t.Fatalf("create after destroy: %v", err)
	}
}

func TestPoolGet(t *testing.T) {
	p := stubPool(t, 2)
	defer p.Close()

	s, err := p.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := p.Get(s.ID)
	if err != nil || got != s {
		t.Errorf("Get = %v, %v", got, err)
	}
	if _, err := p.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown id: %v, want ErrSessionNotFound", err)
	}
}

func TestPoolDestroyIdempotent(t *testing.T) {
	p := stubPool(t, 2)
	defer p.Close()

	s, err := p.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	page := s.page.(*stubPage)

	p.Destroy(s.ID)
	p.Destroy(s.ID)
	p.Destroy("never-existed")

	if p.Active() != 0 {
		t.Errorf("active = %d", p.Active())
	}
	page.mu.Lock()
	closed := page.closed
	page.mu.Unlock()
	if !closed {
		t.Error("page not released")
	}
	if s.Status() != StatusDisconnected {
		t.Errorf("status = %s", s.Status())
	}
}

func TestPoolCreateFactoryFailure(t *testing.T) {
	boom := errors.New("no tab for you")
	p, err := NewPool(PoolOptions{
		MaxSessions: 1,
		NewPage: func(context.Context) (browser.Page, error) {
			return nil, boom
		},
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	if _, err := p.Create(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("create: %v", err)
	}
	// The reserved slot must be released on failure.
	if p.Active() != 0 {
		t.Errorf("active = %d after failed create", p.Active())
	}
}

func TestPoolCaptchaWindowOption(t *testing.T) {
	p, err := NewPool(PoolOptions{
		MaxSessions:   1,
		CaptchaWindow: 42 * time.Millisecond,
		NewPage: func(context.Context) (browser.Page, error) {
			return &stubPage{}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	s, err := p.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.captchaWindow != 42*time.Millisecond {
		t.Errorf("captchaWindow = %v", s.captchaWindow)
	}

	// The default applies when the option is unset.
	d := stubPool(t, 1)
	defer d.Close()
	ds, err := d.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ds.captchaWindow != DefaultCaptchaWindow {
		t.Errorf("default captchaWindow = %v", ds.captchaWindow)
	}
}

func TestPoolClose(t *testing.T) {
	p := stubPool(t, 2)

	s, err := p.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p.Close()

	if _, err := p.Create(context.Background(), nil); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("create after close: %v, want ErrPoolClosed", err)
	}
	if s.Status() != StatusDisconnected {
		t.Errorf("status = %s", s.Status())
	}
	// Closing again is a no-op.
	p.Close()
}
