package yandex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/Andromeda-12/statify/internal/acquire"
)

// MaterializeList forces the virtualized result container to load fully and
// extracts the entries in DOM order.
//
// The container streams entries in as it is scrolled, so the materializer
// iterates scroll-to-bottom / pause / re-measure until the content extent
// stops growing. Extent is assumed monotonic non-decreasing while loading.
// The scroll position is reset to top before extraction so downstream
// indexing is stable.
func (d *Driver) MaterializeList(ctx context.Context) ([]acquire.Entry, error) {
	d.snippets = nil

	container, err := d.session.WaitElementFor(ctx, selScrollContainer, 10*time.Second)
	if err != nil {
		// No container within the wait: the page exposes no list. The
		// caller treats this as retryable, not fatal.
		d.logger.Warn("yandex: result container not found")
		return nil, nil
	}

	if err := d.scrollToFixedPoint(ctx, container); err != nil {
		return nil, fmt.Errorf("yandex: scroll result list: %w", err)
	}

	if _, err := container.Eval(`() => { this.scrollTop = 0; }`); err != nil {
		return nil, fmt.Errorf("yandex: reset scroll: %w", err)
	}

	return d.extractEntries(ctx)
}

func (d *Driver) scrollToFixedPoint(ctx context.Context, container *rod.Element) error {
	_, err := fixedPointExtent(ctx,
		func() error {
			_, err := container.Eval(`() => { this.scrollTop = this.scrollHeight; }`)
			return err
		},
		func() (int, error) { return contentExtent(container) },
		func(ctx context.Context) { d.sleep(ctx, d.scrollPause) },
	)
	return err
}

// fixedPointExtent iterates scroll-to-end / settle / re-measure until two
// consecutive extent measurements agree, and returns the converged extent.
// Once converged, re-running against an unchanged container yields the same
// value: the loop terminates on equality, so a stable extent is a fixed
// point of the iteration.
func fixedPointExtent(ctx context.Context, scrollToEnd func() error, extent func() (int, error), settle func(ctx context.Context)) (int, error) {
	prev, err := extent()
	if err != nil {
		return 0, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := scrollToEnd(); err != nil {
			return 0, err
		}
		settle(ctx)

		cur, err := extent()
		if err != nil {
			return 0, err
		}
		if cur == prev {
			return cur, nil
		}
		prev = cur
	}
}

func contentExtent(container *rod.Element) (int, error) {
	res, err := container.Eval(`() => this.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// extractEntries collects the business snippets, filtering out curated
// collections mixed into the result stream, and keeps the element handles
// for interaction by index.
func (d *Driver) extractEntries(ctx context.Context) ([]acquire.Entry, error) {
	els, err := d.session.Elements(ctx, selSnippet)
	if err != nil {
		return nil, err
	}

	var entries []acquire.Entry
	var handles rod.Elements
	for _, el := range els {
		body, err := el.Element(selSnippetBody)
		if err != nil {
			continue
		}
		class, err := body.Attribute("class")
		if err != nil || class == nil || !strings.Contains(*class, classBusiness) {
			continue
		}

		entry, err := snippetEntry(el)
		if err != nil {
			d.logger.Warn("yandex: snippet text extraction failed", "error", err)
			continue
		}
		entries = append(entries, entry)
		handles = append(handles, el)
	}

	d.snippets = handles
	d.logger.Info("yandex: result list materialized", "entries", len(entries))
	return entries, nil
}

func snippetEntry(el *rod.Element) (acquire.Entry, error) {
	titleEl, err := el.Element(selSnippetTitle)
	if err != nil {
		return acquire.Entry{}, fmt.Errorf("title: %w", err)
	}
	title, err := titleEl.Text()
	if err != nil {
		return acquire.Entry{}, fmt.Errorf("title text: %w", err)
	}

	addrEl, err := el.Element(selSnippetAddress)
	if err != nil {
		return acquire.Entry{}, fmt.Errorf("address: %w", err)
	}
	addr, err := addrEl.Text()
	if err != nil {
		return acquire.Entry{}, fmt.Errorf("address text: %w", err)
	}

	return acquire.Entry{Title: title, Address: addr}, nil
}
