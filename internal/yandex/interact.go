package yandex

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoTerminalAction reports that none of the configured terminal actions
// could be performed on the target card.
var ErrNoTerminalAction = errors.New("yandex: no terminal action succeeded")

// defaultActionOrder is used when the establishment does not configure one.
var defaultActionOrder = []string{"whatsapp", "telegram", "site"}

// BrowseDecoy opens the list entry at index and browses it plausibly:
// card, photos, a couple of review-sort interactions.
func (d *Driver) BrowseDecoy(ctx context.Context, index int) error {
	if err := d.openCard(ctx, index); err != nil {
		return err
	}
	d.checkModalWindow(ctx)
	d.browsePhotos(ctx)
	d.browseReviews(ctx)
	return nil
}

// InteractTarget browses the target entry like a decoy, opens its overview
// tab and performs the first configured terminal action that succeeds. The
// tab the action opens is closed before returning.
func (d *Driver) InteractTarget(ctx context.Context, index int, actionOrder []string) error {
	if err := d.BrowseDecoy(ctx, index); err != nil {
		return err
	}
	d.openOverview(ctx)
	return d.performTerminalAction(ctx, actionOrder)
}

// InteractCardTarget is the single-result-card variant: no list entry to
// click, the card is already open.
func (d *Driver) InteractCardTarget(ctx context.Context, actionOrder []string) error {
	d.checkModalWindow(ctx)
	d.browsePhotos(ctx)
	d.browseReviews(ctx)
	d.openOverview(ctx)
	return d.performTerminalAction(ctx, actionOrder)
}

func (d *Driver) openCard(ctx context.Context, index int) error {
	if index < 0 || index >= len(d.snippets) {
		return fmt.Errorf("yandex: entry index %d out of range (list size %d)", index, len(d.snippets))
	}
	if err := d.session.MoveAndClick(ctx, d.snippets[index]); err != nil {
		return fmt.Errorf("yandex: open card %d: %w", index, err)
	}
	if _, err := d.session.WaitElement(ctx, selBusinessCard); err != nil {
		return fmt.Errorf("yandex: card did not open: %w", err)
	}
	d.logger.Info("yandex: card opened", "index", index)
	return nil
}

// checkModalWindow closes the fullscreen promo dialog when it appears over
// a freshly opened card.
func (d *Driver) checkModalWindow(ctx context.Context) {
	if _, err := d.session.WaitElementFor(ctx, selModalDialog, 5*time.Second); err != nil {
		return
	}
	closeBtn, err := d.session.WaitElementFor(ctx, selModalClose, 5*time.Second)
	if err != nil {
		d.logger.Warn("yandex: modal close button not found", "error", err)
		return
	}
	if err := d.session.ClickViaScript(ctx, closeBtn); err != nil {
		d.logger.Warn("yandex: modal close failed", "error", err)
		return
	}
	d.logger.Info("yandex: modal dialog closed")
}

// browsePhotos opens the gallery tab, views one photo and closes it.
// Best effort throughout: a missing tab just ends the step.
func (d *Driver) browsePhotos(ctx context.Context) {
	tab, err := d.session.WaitElementFor(ctx, selGalleryTab, 10*time.Second)
	if err != nil {
		d.logger.Info("yandex: no gallery tab")
		return
	}
	d.hideCarouselArrows(ctx)
	if err := d.session.MoveAndClick(ctx, tab); err != nil {
		d.logger.Warn("yandex: gallery tab click failed", "error", err)
		return
	}
	d.sleep(ctx, d.settlePause)

	photo, err := d.session.WaitElementFor(ctx, selMediaWrapper, 10*time.Second)
	if err != nil {
		d.logger.Info("yandex: no photo element")
		return
	}
	d.hideCarouselArrows(ctx)
	if err := d.session.MoveAndClick(ctx, photo); err != nil {
		d.logger.Warn("yandex: photo click failed", "error", err)
		return
	}
	d.sleep(ctx, d.settlePause)

	closeBtn, err := d.session.WaitElementFor(ctx, selMediaClose, 10*time.Second)
	if err != nil {
		d.logger.Warn("yandex: photo close button not found", "error", err)
		return
	}
	if err := d.session.MoveAndClick(ctx, closeBtn); err != nil {
		d.logger.Warn("yandex: photo close failed", "error", err)
		return
	}
	d.logger.Info("yandex: photos browsed")
}

// browseReviews opens the reviews tab and toggles the sort order a few
// times, picking a random option each pass.
func (d *Driver) browseReviews(ctx context.Context) {
	for i := 0; i < d.reviewIterations; i++ {
		if err := d.browseReviewsOnce(ctx); err != nil {
			d.logger.Warn("yandex: review browsing failed",
				"iteration", i+1, "error", err)
		}
	}
}

func (d *Driver) browseReviewsOnce(ctx context.Context) error {
	tab, err := d.session.WaitElementFor(ctx, selReviewsTab, 10*time.Second)
	if err != nil {
		d.logger.Info("yandex: no reviews tab")
		return nil
	}
	d.hideCarouselArrows(ctx)
	if err := d.session.MoveAndClick(ctx, tab); err != nil {
		return fmt.Errorf("reviews tab: %w", err)
	}
	d.sleep(ctx, d.settlePause)

	sortSel, err := d.session.WaitElementFor(ctx, selReviewSort, 20*time.Second)
	if err != nil {
		d.logger.Info("yandex: no review sort select")
		return nil
	}
	if err := d.session.MoveAndClick(ctx, sortSel); err != nil {
		return fmt.Errorf("sort select: %w", err)
	}
	if _, err := d.session.WaitElementFor(ctx, selReviewSortPopup, 10*time.Second); err != nil {
		return fmt.Errorf("sort popup: %w", err)
	}

	options, err := d.session.Elements(ctx, selReviewSortOption)
	if err != nil || len(options) == 0 {
		return fmt.Errorf("sort options: %w", err)
	}
	opt := options[d.picker.Index(len(options))]
	if err := d.session.ClickViaScript(ctx, opt); err != nil {
		return fmt.Errorf("sort option: %w", err)
	}
	d.sleep(ctx, d.settlePause)
	d.logger.Info("yandex: reviews browsed")
	return nil
}

// openOverview returns the card to its overview tab so contact links are in
// view for the terminal action.
func (d *Driver) openOverview(ctx context.Context) {
	tab, err := d.session.WaitElementFor(ctx, selOverviewTab, 10*time.Second)
	if err != nil {
		d.logger.Warn("yandex: no overview tab")
		return
	}
	d.hideCarouselArrows(ctx)
	if err := d.session.MoveAndClick(ctx, tab); err != nil {
		d.logger.Warn("yandex: overview tab click failed", "error", err)
		return
	}
	d.sleep(ctx, d.settlePause)
}

// performTerminalAction tries each configured action in order and returns
// after the first success, closing the tab the link opened. All actions
// failing is a hard failure of the repetition attempt.
func (d *Driver) performTerminalAction(ctx context.Context, actionOrder []string) error {
	order := actionOrder
	if len(order) == 0 {
		order = defaultActionOrder
	}

	// Pages open at this point survive; whatever the action opens is closed
	// by diffing against this snapshot.
	snapshot, err := d.session.TabSnapshot()
	if err != nil {
		d.logger.Warn("yandex: tab snapshot failed", "error", err)
	}

	for _, action := range order {
		var ok bool
		switch normalizeAction(action) {
		case "whatsapp":
			ok = d.clickContactLink(ctx, selWhatsAppLink, "whatsapp")
		case "telegram":
			ok = d.clickContactLink(ctx, selTelegramLink, "telegram")
		case "site":
			ok = d.clickWebsiteLink(ctx)
		default:
			d.logger.Warn("yandex: unknown terminal action", "action", action)
			continue
		}
		if ok {
			d.logger.Info("yandex: terminal action performed", "action", action)
			if err := d.session.CloseNewTabs(ctx, snapshot, 5*time.Second); err != nil {
				d.logger.Warn("yandex: closing action tab failed", "error", err)
			}
			return nil
		}
	}
	return ErrNoTerminalAction
}

func (d *Driver) clickContactLink(ctx context.Context, sel, name string) bool {
	link, err := d.session.WaitElementFor(ctx, sel, 5*time.Second)
	if err != nil {
		d.logger.Warn("yandex: contact link not found", "action", name)
		return false
	}
	if err := d.session.MoveAndClick(ctx, link); err != nil {
		d.logger.Warn("yandex: contact link click failed", "action", name, "error", err)
		return false
	}
	return true
}

// clickWebsiteLink scrolls the sidebar to the top first; the site link sits
// in the card header.
func (d *Driver) clickWebsiteLink(ctx context.Context) bool {
	sidebar, err := d.session.WaitElementFor(ctx, selSearchSidebar, 5*time.Second)
	if err == nil {
		if container, err := sidebar.Element(selScrollContainer); err == nil {
			if _, err := container.Eval(`() => { this.scrollTop = 0; }`); err != nil {
				d.logger.Warn("yandex: sidebar scroll reset failed", "error", err)
			}
		}
	}
	link, err := d.session.WaitElementFor(ctx, selWebsiteLink, 5*time.Second)
	if err != nil {
		d.logger.Warn("yandex: website link not found")
		return false
	}
	if err := d.session.MoveAndClick(ctx, link); err != nil {
		d.logger.Warn("yandex: website link click failed", "error", err)
		return false
	}
	return true
}

// hideCarouselArrows removes the floating carousel arrows that intercept
// pointer events aimed at the tabs underneath.
func (d *Driver) hideCarouselArrows(ctx context.Context) {
	for _, sel := range []string{selCarouselNext, selCarouselPrev} {
		arrow, err := d.session.WaitElementFor(ctx, sel, 1*time.Second)
		if err != nil {
			continue
		}
		if _, err := arrow.Eval(`() => { this.style.display = 'none'; }`); err != nil {
			d.logger.Warn("yandex: hiding carousel arrow failed", "error", err)
		}
	}
}

func normalizeAction(a string) string {
	return trimLower(a)
}
