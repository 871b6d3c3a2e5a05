package yandex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/Andromeda-12/statify/internal/acquire"
	"github.com/Andromeda-12/statify/internal/browser"
	"github.com/Andromeda-12/statify/internal/config"
	"github.com/Andromeda-12/statify/internal/pick"
)

// MapsURL is the entry page of the maps UI.
const MapsURL = "https://yandex.ru/maps"

// Driver implements acquire.Driver on a live browser session. It keeps the
// rod element handles of the last materialized list so interaction calls can
// address entries by index; the handles are invalidated by every reload.
type Driver struct {
	session *browser.Session
	picker  pick.Chooser

	scrollPause      time.Duration
	settlePause      time.Duration
	reviewIterations int

	sleep  func(ctx context.Context, d time.Duration)
	logger *slog.Logger

	snippets rod.Elements
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithDriverLogger sets a custom logger.
func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithScrollPause sets the pause between scroll-and-measure steps.
// Default: 2s.
func WithScrollPause(p time.Duration) DriverOption {
	return func(d *Driver) { d.scrollPause = p }
}

// WithReviewIterations sets how many times the review-sort browsing loop
// runs per entry. Default: 2.
func WithReviewIterations(n int) DriverOption {
	return func(d *Driver) { d.reviewIterations = n }
}

// WithDriverSleep replaces the pause primitive (tests).
func WithDriverSleep(fn func(ctx context.Context, d time.Duration)) DriverOption {
	return func(d *Driver) { d.sleep = fn }
}

// NewDriver creates a maps driver over an authenticated session.
func NewDriver(session *browser.Session, picker pick.Chooser, opts ...DriverOption) *Driver {
	d := &Driver{
		session:          session,
		picker:           picker,
		scrollPause:      2 * time.Second,
		settlePause:      3 * time.Second,
		reviewIterations: 2,
		sleep:            sleepCtx,
		logger:           slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SubmitLocation centers the map near the target by searching its
// coordinates.
func (d *Driver) SubmitLocation(ctx context.Context, coords config.Coordinates) error {
	in, err := d.session.WaitVisible(ctx, selSearchInput)
	if err != nil {
		return fmt.Errorf("yandex: search input: %w", err)
	}
	if err := in.SelectAllText(); err != nil {
		return fmt.Errorf("yandex: clear search input: %w", err)
	}
	text := fmt.Sprintf("%v,%v", coords.Lat, coords.Lon)
	if err := d.session.Input(ctx, in, text); err != nil {
		return fmt.Errorf("yandex: submit coordinates: %w", err)
	}
	d.sleep(ctx, d.settlePause)
	d.closeTooltipPopup(ctx)
	return nil
}

// SubmitQuery runs a free-text search from the current map position.
func (d *Driver) SubmitQuery(ctx context.Context, query string) error {
	in, err := d.session.WaitVisible(ctx, selSearchInput)
	if err != nil {
		return fmt.Errorf("yandex: search input: %w", err)
	}
	if err := in.SelectAllText(); err != nil {
		return fmt.Errorf("yandex: clear search input: %w", err)
	}
	if err := d.session.Input(ctx, in, query); err != nil {
		return fmt.Errorf("yandex: submit query: %w", err)
	}
	d.sleep(ctx, d.settlePause)
	return nil
}

// OpenQueryURL embeds the query into the current page URL and navigates to
// it, then resets the map with a zoom-out/zoom-in cycle. Alternate entry
// path for establishments where the search-box flow misbehaves.
func (d *Driver) OpenQueryURL(ctx context.Context, query string) error {
	current, err := d.session.URL(ctx)
	if err != nil {
		return err
	}
	target, err := RewriteQueryURL(current, query)
	if err != nil {
		return err
	}
	if err := d.session.Navigate(ctx, target); err != nil {
		return err
	}
	d.sleep(ctx, d.settlePause)

	// Zoom reset forces the result layer to re-render for the embedded query.
	if err := d.clickZoom(ctx, selZoomOut, 1); err != nil {
		d.logger.Warn("yandex: zoom-out reset failed", "error", err)
	}
	if err := d.clickZoom(ctx, selZoomIn, 1); err != nil {
		d.logger.Warn("yandex: zoom-in reset failed", "error", err)
	}
	return nil
}

// ZoomIn clicks the zoom-in control steps times.
func (d *Driver) ZoomIn(ctx context.Context, steps int) error {
	return d.clickZoom(ctx, selZoomIn, steps)
}

func (d *Driver) clickZoom(ctx context.Context, sel string, times int) error {
	btn, err := d.session.WaitVisible(ctx, sel)
	if err != nil {
		return fmt.Errorf("yandex: zoom control: %w", err)
	}
	for i := 0; i < times; i++ {
		if err := d.session.MoveAndClick(ctx, btn); err != nil {
			return fmt.Errorf("yandex: zoom click: %w", err)
		}
		d.sleep(ctx, 500*time.Millisecond)
	}
	return nil
}

// SingleResultTitle reports the heading of a direct single-result card.
func (d *Driver) SingleResultTitle(ctx context.Context) (string, bool) {
	el, err := d.session.WaitElementFor(ctx, selCardHeader, 5*time.Second)
	if err != nil {
		return "", false
	}
	title, err := el.Text()
	if err != nil {
		d.logger.Warn("yandex: card header text", "error", err)
		return "", false
	}
	return title, true
}

// Reload refreshes the page. Any previously materialized entry handles are
// invalid afterwards.
func (d *Driver) Reload(ctx context.Context) error {
	d.snippets = nil
	return d.session.Reload(ctx)
}

// closeTooltipPopup dismisses the promotional "Взгляните!" tooltip when it
// covers the result list.
func (d *Driver) closeTooltipPopup(ctx context.Context) {
	el, err := d.session.WaitElementFor(ctx,
		`.tooltip-content-view__title`, 3*time.Second)
	if err != nil {
		return
	}
	popup, err := el.Parent()
	if err != nil {
		return
	}
	closeBtn, err := popup.Element(`button.close-button`)
	if err != nil {
		d.logger.Warn("yandex: tooltip close button not found", "error", err)
		return
	}
	if err := d.session.ClickViaScript(ctx, closeBtn); err != nil {
		d.logger.Warn("yandex: tooltip close failed", "error", err)
		return
	}
	d.logger.Info("yandex: tooltip popup closed")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// compile-time contract check
var _ acquire.Driver = (*Driver)(nil)
