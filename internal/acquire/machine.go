// Package acquire implements the target-acquisition core: a nested retry
// state machine that materializes a virtualized result list, locates the
// target establishment in it, simulates decoy browsing, and performs the
// terminal interaction — plus the outer orchestrator that retries whole
// establishments and feeds outcomes to the ranking aggregator.
//
// Three budgets bound the retries at independent granularities: list
// retrieval (innermost), target localization, and whole-establishment
// processing (outermost). Exhausting one scope escalates to the next-outer
// one; nothing aborts the overall run.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Andromeda-12/statify/internal/config"
	"github.com/Andromeda-12/statify/internal/pick"
	"github.com/Andromeda-12/statify/internal/ranking"
)

// ErrTargetNotFound reports that the locate budget ran out without the
// target appearing in any materialized list.
var ErrTargetNotFound = errors.New("acquire: target not found")

// Machine drives the coordinates → query → list → locate → interact pipeline
// for one establishment within one repetition.
type Machine struct {
	driver      Driver
	picker      pick.Chooser
	attempts    config.AttemptsConfig
	reloadPause time.Duration
	sleep       func(ctx context.Context, d time.Duration)
	logger      *slog.Logger
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = l }
}

// WithReloadPause sets the settle time after a recovery reload. Default: 5s.
func WithReloadPause(d time.Duration) MachineOption {
	return func(m *Machine) { m.reloadPause = d }
}

// WithSleep replaces the pause primitive, so tests run without real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration)) MachineOption {
	return func(m *Machine) { m.sleep = fn }
}

// NewMachine creates an acquisition state machine over the given driver.
func NewMachine(driver Driver, picker pick.Chooser, attempts config.AttemptsConfig, opts ...MachineOption) *Machine {
	m := &Machine{
		driver:      driver,
		picker:      picker,
		attempts:    attempts,
		reloadPause: 5 * time.Second,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run executes one acquisition attempt for est. It always returns an
// outcome; a non-nil error marks the attempt as failed so the outer retry
// layer can count it against the process budget.
func (m *Machine) Run(ctx context.Context, est config.Establishment) (ranking.Outcome, error) {
	var query string

	for attempt := 0; attempt < m.attempts.TargetLocate; attempt++ {
		lastAttempt := attempt == m.attempts.TargetLocate-1

		// One query string is chosen per attempt, not per run, so repeated
		// runs exercise the whole query set.
		query = est.Queries[m.picker.Index(len(est.Queries))]
		m.logger.Info("acquire: locate attempt",
			"establishment", est.Name, "query", query,
			"attempt", attempt+1, "of", m.attempts.TargetLocate)

		if err := m.driver.SubmitLocation(ctx, est.Coordinates); err != nil {
			return m.failed(est, query), fmt.Errorf("acquire: submit location: %w", err)
		}

		if est.UniqueCase {
			// The normal query flow misbehaves for this establishment;
			// embed the query in the URL and reset the map instead.
			if err := m.driver.OpenQueryURL(ctx, query); err != nil {
				return m.failed(est, query), fmt.Errorf("acquire: open query url: %w", err)
			}
		} else {
			if err := m.driver.SubmitQuery(ctx, query); err != nil {
				return m.failed(est, query), fmt.Errorf("acquire: submit query: %w", err)
			}
			// First attempt may be too zoomed-out for the target to stand
			// out among wide-radius results; each retry zooms in further.
			steps := attempt + 1
			if steps > m.attempts.MaxZoom {
				steps = m.attempts.MaxZoom
			}
			if err := m.driver.ZoomIn(ctx, steps); err != nil {
				return m.failed(est, query), fmt.Errorf("acquire: zoom in: %w", err)
			}
		}

		entries := m.materialize(ctx)

		if len(entries) == 0 {
			if lastAttempt {
				if out, ok, err := m.trySingleResult(ctx, est, query); ok {
					return out, err
				}
				break
			}
			m.logger.Warn("acquire: empty result list, reloading",
				"establishment", est.Name)
			m.recover(ctx)
			continue
		}

		res := Locate(entries, est.Name, est.Address)
		if res.Found {
			m.logger.Info("acquire: target located",
				"establishment", est.Name, "position", res.Index+1,
				"list_size", len(entries))
			return m.interact(ctx, est, query, res.Index)
		}

		if !lastAttempt {
			m.logger.Warn("acquire: target not in list, reloading",
				"establishment", est.Name, "list_size", len(entries))
			m.recover(ctx)
		}
	}

	return m.failed(est, query), fmt.Errorf("%w: %s after %d attempts",
		ErrTargetNotFound, est.Name, m.attempts.TargetLocate)
}

// materialize retries the list materializer within the list-retrieval
// budget, reloading the page between attempts. Exhaustion yields an empty
// list, which the locate layer interprets.
func (m *Machine) materialize(ctx context.Context) []Entry {
	for attempt := 0; attempt < m.attempts.ListRetrieve; attempt++ {
		entries, err := m.driver.MaterializeList(ctx)
		if err == nil && len(entries) > 0 {
			return entries
		}
		if err != nil {
			m.logger.Warn("acquire: list materialization failed",
				"attempt", attempt+1, "of", m.attempts.ListRetrieve, "error", err)
		}
		if attempt < m.attempts.ListRetrieve-1 {
			m.recover(ctx)
		}
	}
	return nil
}

// trySingleResult handles the case where the map navigated directly to a
// single-result card instead of a list. ok is false when the short-circuit
// does not apply and the normal not-found path should proceed.
func (m *Machine) trySingleResult(ctx context.Context, est config.Establishment, query string) (ranking.Outcome, bool, error) {
	title, ok := m.driver.SingleResultTitle(ctx)
	if !ok || foldTrim(title) != foldTrim(est.Name) {
		return ranking.Outcome{}, false, nil
	}

	m.logger.Info("acquire: single-result card matches target, short-circuit",
		"establishment", est.Name)
	if err := m.driver.InteractCardTarget(ctx, est.ActionOrder); err != nil {
		return m.failed(est, query), true, fmt.Errorf("acquire: card interaction: %w", err)
	}
	return ranking.Outcome{
		EstablishmentID: est.ID,
		Query:           query,
		Found:           true,
		Position:        1,
		Interacted:      true,
	}, true, nil
}

// interact browses decoys preceding the target best-effort, then performs
// the full target interaction including the terminal action.
func (m *Machine) interact(ctx context.Context, est config.Establishment, query string, index int) (ranking.Outcome, error) {
	first := index - m.attempts.MaxDecoys
	if first < 0 {
		first = 0
	}
	for i := first; i < index; i++ {
		if err := m.driver.BrowseDecoy(ctx, i); err != nil {
			// Reduced decoy coverage only; the run proceeds.
			m.logger.Warn("acquire: decoy browsing failed",
				"index", i, "error", err)
		}
	}

	if err := m.driver.InteractTarget(ctx, index, est.ActionOrder); err != nil {
		return m.failed(est, query), fmt.Errorf("acquire: target interaction: %w", err)
	}

	return ranking.Outcome{
		EstablishmentID: est.ID,
		Query:           query,
		Found:           true,
		Position:        index + 1,
		Interacted:      true,
	}, nil
}

func (m *Machine) recover(ctx context.Context) {
	if err := m.driver.Reload(ctx); err != nil {
		m.logger.Warn("acquire: reload failed", "error", err)
	}
	m.sleep(ctx, m.reloadPause)
}

func (m *Machine) failed(est config.Establishment, query string) ranking.Outcome {
	return ranking.Outcome{
		EstablishmentID: est.ID,
		Query:           query,
		Found:           false,
		Position:        ranking.Unranked,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
