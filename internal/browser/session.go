package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// Session wraps one page with the bounded-wait and synthetic-input
// primitives the acquisition pipeline relies on. Ownership is exclusive to
// the orchestrator goroutine; Session is not safe for concurrent use.
type Session struct {
	browser *rod.Browser
	page    *rod.Page
	wait    time.Duration
	logger  *slog.Logger
}

func newSession(b *rod.Browser, p *rod.Page, wait time.Duration, logger *slog.Logger) *Session {
	return &Session{browser: b, page: p, wait: wait, logger: logger}
}

// Page exposes the underlying page for operations not covered by helpers.
func (s *Session) Page() *rod.Page { return s.page }

// Navigate loads the URL and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.wait)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		s.logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Reload refreshes the page.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.page.Context(ctx).Timeout(s.wait).Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	return nil
}

// URL returns the current page URL.
func (s *Session) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// WaitElement waits until an element matching sel is present and returns it.
// The wait is bounded by the session's condition deadline; exceeding it is
// an error the retry layers treat as recoverable.
func (s *Session) WaitElement(ctx context.Context, sel string) (*rod.Element, error) {
	el, err := s.page.Context(ctx).Timeout(s.wait).Element(sel)
	if err != nil {
		return nil, fmt.Errorf("browser: wait element %q: %w", sel, err)
	}
	return el, nil
}

// WaitElementFor is WaitElement with an explicit deadline, for the short
// "is this popup here" probes.
func (s *Session) WaitElementFor(ctx context.Context, sel string, d time.Duration) (*rod.Element, error) {
	el, err := s.page.Context(ctx).Timeout(d).Element(sel)
	if err != nil {
		return nil, fmt.Errorf("browser: wait element %q: %w", sel, err)
	}
	return el, nil
}

// WaitVisible waits for presence and visibility of sel.
func (s *Session) WaitVisible(ctx context.Context, sel string) (*rod.Element, error) {
	el, err := s.WaitElement(ctx, sel)
	if err != nil {
		return nil, err
	}
	if err := el.Timeout(s.wait).WaitVisible(); err != nil {
		return nil, fmt.Errorf("browser: wait visible %q: %w", sel, err)
	}
	return el, nil
}

// Elements returns all elements matching sel without waiting.
func (s *Session) Elements(ctx context.Context, sel string) (rod.Elements, error) {
	els, err := s.page.Context(ctx).Elements(sel)
	if err != nil {
		return nil, fmt.Errorf("browser: elements %q: %w", sel, err)
	}
	return els, nil
}

// MoveAndClick scrolls the element into view, moves the pointer to a
// slightly randomized point inside it, and clicks. The jitter keeps the
// pointer trace from landing on the exact element center every time.
func (s *Session) MoveAndClick(ctx context.Context, el *rod.Element) error {
	el = el.Context(ctx).Timeout(s.wait)
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("browser: scroll into view: %w", err)
	}
	pt, err := el.WaitInteractable()
	if err != nil {
		return fmt.Errorf("browser: wait interactable: %w", err)
	}

	target := proto.Point{
		X: pt.X + float64(rand.Intn(7)-3),
		Y: pt.Y + float64(rand.Intn(7)-3),
	}
	if err := s.page.Mouse.MoveTo(target); err != nil {
		return fmt.Errorf("browser: mouse move: %w", err)
	}
	if err := s.page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: mouse click: %w", err)
	}
	return nil
}

// ClickViaScript clicks through the DOM, bypassing pointer interception by
// overlays. Used where the original flow needs it (popup close buttons,
// select options).
func (s *Session) ClickViaScript(ctx context.Context, el *rod.Element) error {
	if _, err := el.Context(ctx).Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("browser: script click: %w", err)
	}
	return nil
}

// Input types text into the element and presses Enter.
func (s *Session) Input(ctx context.Context, el *rod.Element, text string) error {
	el = el.Context(ctx).Timeout(s.wait)
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: input: %w", err)
	}
	if err := s.page.Keyboard.Press(input.Enter); err != nil {
		return fmt.Errorf("browser: press enter: %w", err)
	}
	return nil
}

// TabSnapshot returns the ids of the currently open pages, taken before an
// action that may open new tabs so CloseNewTabs can diff against it.
func (s *Session) TabSnapshot() (map[proto.TargetTargetID]bool, error) {
	pages, err := s.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	ids := make(map[proto.TargetTargetID]bool, len(pages))
	for _, p := range pages {
		ids[p.TargetID] = true
	}
	return ids, nil
}

// CloseNewTabs closes every page opened since snapshot, letting each settle
// first, and returns focus to this session's page. Terminal actions open
// external links in a new tab; the pipeline must come back. Target
// enumeration order is unspecified by the devtools protocol, so pages are
// identified by id, never by slice position.
func (s *Session) CloseNewTabs(ctx context.Context, snapshot map[proto.TargetTargetID]bool, settle time.Duration) error {
	pages, err := s.browser.Pages()
	if err != nil {
		return fmt.Errorf("browser: list pages: %w", err)
	}
	current := make([]proto.TargetTargetID, 0, len(pages))
	byID := make(map[proto.TargetTargetID]*rod.Page, len(pages))
	for _, p := range pages {
		current = append(current, p.TargetID)
		byID[p.TargetID] = p
	}

	for _, id := range tabsToClose(current, s.page.TargetID, snapshot) {
		tab := byID[id]
		if err := tab.Context(ctx).Timeout(settle).WaitLoad(); err != nil {
			s.logger.Warn("browser: new tab load timeout", "error", err)
		}
		if err := tab.Close(); err != nil {
			return fmt.Errorf("browser: close tab: %w", err)
		}
	}
	if _, err := s.page.Activate(); err != nil {
		return fmt.Errorf("browser: activate original tab: %w", err)
	}
	return nil
}

// tabsToClose selects the pages absent from snapshot, never the session's
// own page.
func tabsToClose(current []proto.TargetTargetID, self proto.TargetTargetID, snapshot map[proto.TargetTargetID]bool) []proto.TargetTargetID {
	var out []proto.TargetTargetID
	for _, id := range current {
		if id == self || snapshot[id] {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Cookies returns all browser cookies.
func (s *Session) Cookies() ([]*proto.NetworkCookie, error) {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}
	return cookies, nil
}

// SetCookies installs cookies into the browser.
func (s *Session) SetCookies(cookies []*proto.NetworkCookieParam) error {
	if err := s.browser.SetCookies(cookies); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}
