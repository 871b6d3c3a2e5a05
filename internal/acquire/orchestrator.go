package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Andromeda-12/statify/internal/config"
	"github.com/Andromeda-12/statify/internal/notify"
	"github.com/Andromeda-12/statify/internal/ranking"
)

// Runner executes one acquisition attempt for one establishment. Satisfied
// by *Machine; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, est config.Establishment) (ranking.Outcome, error)
}

// Sink consumes finalized outcomes. Satisfied by *ranking.Aggregator.
type Sink interface {
	Merge(out ranking.Outcome, date time.Time) ranking.Record
}

// Orchestrator wraps the state machine in the outermost retry budget. Within
// one repetition it round-robins over unsatisfied establishments so a
// persistently failing one never starves the others.
type Orchestrator struct {
	runner   Runner
	sink     Sink
	attempts int // process budget per establishment per repetition
	progress *Progress
	logger   *slog.Logger
	now      func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets a custom logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces the date source for outcome merging.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates the outer retry orchestrator.
func NewOrchestrator(runner Runner, sink Sink, processAttempts int, progress *Progress, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		runner:   runner,
		sink:     sink,
		attempts: processAttempts,
		progress: progress,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunRepetition processes every establishment due for this repetition index
// until each is satisfied or has exhausted its process budget. Budget
// exhaustion is critical-logged and merged as an unsuccessful outcome;
// it never aborts the repetition.
func (o *Orchestrator) RunRepetition(ctx context.Context, ests []config.Establishment, repetition int) error {
	o.progress.SetRepetition(repetition)

	satisfied := make(map[string]bool)
	attempts := make(map[string]int)
	due := make([]config.Establishment, 0, len(ests))
	for _, est := range ests {
		if repetition < est.Repeats {
			due = append(due, est)
		}
	}

	for o.shouldContinue(due, satisfied, attempts) {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, est := range due {
			if satisfied[est.ID] || attempts[est.ID] >= o.attempts {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			o.logger.Info("acquire: processing establishment",
				"establishment", est.Name, "niche", est.Niche,
				"repetition", repetition+1,
				"attempt", attempts[est.ID]+1, "of", o.attempts)

			out, err := o.runSafely(ctx, est)
			if err == nil {
				satisfied[est.ID] = true
				o.progress.RecordSuccess(est.ID)
				o.sink.Merge(out, o.now())
				o.logger.Info("acquire: establishment processed",
					"establishment", est.Name, "position", out.Position)
				continue
			}

			attempts[est.ID]++
			o.logger.Error("acquire: establishment attempt failed",
				"establishment", est.Name, "error", err,
				"attempt", attempts[est.ID], "of", o.attempts)

			if attempts[est.ID] >= o.attempts {
				o.sink.Merge(out, o.now())
				o.logger.Log(ctx, notify.LevelCritical,
					fmt.Sprintf("acquire: giving up on %s after %d attempts (niche %s, coordinates %v,%v)",
						est.Name, o.attempts, est.Niche,
						est.Coordinates.Lat, est.Coordinates.Lon),
					"error", err)
			}
		}
	}

	o.logRepetitionResult(ctx, due, satisfied, repetition)
	return nil
}

// runSafely converts a panicking collaborator (stale element handles after a
// reload, driver protocol hiccups) into an ordinary failed attempt.
func (o *Orchestrator) runSafely(ctx context.Context, est config.Establishment) (out ranking.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ranking.Outcome{EstablishmentID: est.ID, Position: ranking.Unranked}
			err = fmt.Errorf("acquire: recovered panic processing %s: %v", est.Name, r)
		}
	}()
	return o.runner.Run(ctx, est)
}

func (o *Orchestrator) shouldContinue(due []config.Establishment, satisfied map[string]bool, attempts map[string]int) bool {
	for _, est := range due {
		if !satisfied[est.ID] && attempts[est.ID] < o.attempts {
			return true
		}
	}
	return false
}

func (o *Orchestrator) logRepetitionResult(ctx context.Context, due []config.Establishment, satisfied map[string]bool, repetition int) {
	var unprocessed []string
	for _, est := range due {
		if !satisfied[est.ID] {
			unprocessed = append(unprocessed, est.Name)
		}
	}

	if len(unprocessed) == 0 {
		o.logger.Info("acquire: repetition complete, all establishments processed",
			"repetition", repetition+1)
		return
	}
	o.logger.Warn("acquire: repetition complete with failures",
		"repetition", repetition+1,
		"unprocessed", strings.Join(unprocessed, ", "))
}
