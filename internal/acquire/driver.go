package acquire

import (
	"context"

	"github.com/Andromeda-12/statify/internal/config"
)

// Driver is the narrow contract the acquisition state machine needs from the
// map UI. The production implementation drives a real browser
// (internal/yandex); tests substitute a fake. Every call blocks with a
// bounded timeout inside the implementation; a timeout surfaces as an error
// that the relevant retry layer treats as recoverable.
type Driver interface {
	// SubmitLocation enters the establishment coordinates into the map's
	// location-search input so results are anchored near the target.
	SubmitLocation(ctx context.Context, coords config.Coordinates) error

	// SubmitQuery runs a free-text search in the normal search box.
	SubmitQuery(ctx context.Context, query string) error

	// OpenQueryURL is the alternate entry path for unique-case
	// establishments: rewrite the current page URL to embed the query,
	// navigate to it, and reset the map with a zoom-out/zoom-in cycle.
	OpenQueryURL(ctx context.Context, query string) error

	// ZoomIn clicks the zoom-in control the given number of times.
	ZoomIn(ctx context.Context, steps int) error

	// MaterializeList scrolls the virtualized result container to its fixed
	// point and returns the extracted entries in DOM order. An empty slice
	// (with nil error) means the page exposed no results within the wait.
	MaterializeList(ctx context.Context) ([]Entry, error)

	// SingleResultTitle reports the title of a single-result card when the
	// map navigated directly to one instead of showing a list.
	SingleResultTitle(ctx context.Context) (string, bool)

	// Reload refreshes the page and waits for it to settle.
	Reload(ctx context.Context) error

	// BrowseDecoy performs the plausible-browsing sequence on the list
	// entry at index: open card, photos, reviews. Best effort.
	BrowseDecoy(ctx context.Context, index int) error

	// InteractTarget runs the full interaction on the target entry at
	// index, finishing with the first terminal action in actionOrder that
	// succeeds. The browser tab a terminal action opens is closed before
	// returning. All actions failing is an error.
	InteractTarget(ctx context.Context, index int, actionOrder []string) error

	// InteractCardTarget is InteractTarget for the single-result-card
	// short-circuit, where there is no list to index into.
	InteractCardTarget(ctx context.Context, actionOrder []string) error
}
