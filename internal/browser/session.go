package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/domlens/apiscout/capture"
)

// Session adapts a Manager's Chrome instance to capture.BrowserSession.
type Session struct {
	mgr *Manager
}

// NewSession wraps mgr as a capture.BrowserSession. mgr must already have
// been Start-ed.
func NewSession(mgr *Manager) *Session {
	return &Session{mgr: mgr}
}

// NewContext creates an isolated (incognito) browser context so concurrent
// or back-to-back runs never share cookies/local storage.
func (s *Session) NewContext(ctx context.Context, opts capture.ContextOptions) (capture.Context, error) {
	b := s.mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito context: %w", err)
	}

	if opts.StorageStatePath != "" {
		if err := loadStorageState(incognito, opts.StorageStatePath); err != nil {
			s.mgr.cfg.Logger.Warn("browser: load storage state failed", "path", opts.StorageStatePath, "error", err)
		}
	}

	return &Context{
		browser:          incognito,
		opts:             opts,
		logger:           s.mgr.cfg.Logger,
		resourceBlocking: s.mgr.cfg.ResourceBlocking,
	}, nil
}

// Close shuts down the underlying Chrome process.
func (s *Session) Close() error {
	return s.mgr.Close()
}

// Context adapts an incognito rod.Browser to capture.Context.
type Context struct {
	browser          *rod.Browser
	opts             capture.ContextOptions
	logger           *slog.Logger
	resourceBlocking []string
}

// NewPage opens a stealth-patched page in this context.
func (c *Context) NewPage(ctx context.Context) (capture.Page, error) {
	page, err := stealth.Page(c.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: new page: %w", err)
	}

	if c.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.opts.UserAgent}); err != nil {
			c.logger.Warn("browser: set user agent failed", "error", err)
		}
	}

	applyResourceBlocking(page, c.resourceBlocking)

	return &Page{page: page}, nil
}

// StorageState serializes cookies as an opaque JSON blob, optionally
// writing it to path, per spec.md §6's "opaque blob passed through".
func (c *Context) StorageState(ctx context.Context, path string) ([]byte, error) {
	cookies, err := c.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return nil, fmt.Errorf("browser: marshal storage state: %w", err)
	}
	if path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("browser: write storage state: %w", err)
		}
	}
	return data, nil
}

// Close closes this incognito context and all its pages.
func (c *Context) Close() error {
	return c.browser.Close()
}

func loadStorageState(b *rod.Browser, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("browser: read storage state: %w", err)
	}
	var cookies []*proto.NetworkCookieParam
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("browser: parse storage state: %w", err)
	}
	if err := b.SetCookies(cookies); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

// Page adapts a rod.Page to capture.Page.
type Page struct {
	page *rod.Page
}

// Goto navigates then waits for the requested load state.
func (p *Page) Goto(ctx context.Context, url string, waitUntil capture.LoadState, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return p.WaitForLoadState(ctx, waitUntil, timeout)
}

// WaitForLoadState waits on the page for the given capture.LoadState.
// LoadStateNetworkIdle uses rod's WaitIdle, which returns at the page's next
// requestIdleCallback; it does not track in-flight network requests. Every
// other state, LoadStateDOMContentLoaded included, waits for the window load
// event (rod's WaitLoad), which fires after DOMContentLoaded.
func (p *Page) WaitForLoadState(ctx context.Context, state capture.LoadState, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pg := p.page.Context(waitCtx)
	switch state {
	case capture.LoadStateNetworkIdle:
		if err := pg.WaitIdle(timeout); err != nil {
			return fmt.Errorf("browser: wait network idle: %w", err)
		}
	default:
		if err := pg.WaitLoad(); err != nil {
			return fmt.Errorf("browser: wait dom content loaded: %w", err)
		}
	}
	return nil
}

// WaitForURL polls the page's current URL against predicate until it
// matches or timeout elapses.
func (p *Page) WaitForURL(ctx context.Context, predicate func(url string) bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if predicate(p.URL()) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browser: wait for url: timed out after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// OnResponse begins delivering response events to handler. It never blocks
// the caller and never awaits handler; handler must enqueue and return
// immediately, per spec.md §4.8's capture-window rule.
func (p *Page) OnResponse(handler func(capture.ResponseEvent)) (unsubscribe func()) {
	unsub, err := watchResponses(p.page, handler)
	if err != nil {
		return func() {}
	}
	return unsub
}

// Frames returns the page's frames. Only the main frame is currently
// observed; iframe traversal for interstitial dismissal would need CDP
// Page.getFrameTree wiring, which no current interstitial handler needs.
func (p *Page) Frames() []capture.Frame {
	return []capture.Frame{&Frame{url: p.URL()}}
}

// URL returns the page's current URL.
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close closes the underlying page.
func (p *Page) Close() error {
	return p.page.Close()
}

// Frame adapts a page (or, eventually, a real CDP frame) to capture.Frame.
type Frame struct {
	url string
}

// URL returns the frame's URL.
func (f *Frame) URL() string { return f.url }
