package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Andromeda-12/statify/internal/config"
	"github.com/Andromeda-12/statify/internal/pick"
	"github.com/Andromeda-12/statify/internal/ranking"
)

// fakeRunner fails each establishment a scripted number of times before
// succeeding, and records the processing order.
type fakeRunner struct {
	failures map[string]int
	calls    map[string]int
	order    []string
	panicFor string
}

func newFakeRunner(failures map[string]int) *fakeRunner {
	return &fakeRunner{failures: failures, calls: make(map[string]int)}
}

func (r *fakeRunner) Run(ctx context.Context, est config.Establishment) (ranking.Outcome, error) {
	r.order = append(r.order, est.ID)
	r.calls[est.ID]++
	if est.ID == r.panicFor {
		panic("stale element handle")
	}
	if r.calls[est.ID] <= r.failures[est.ID] {
		return ranking.Outcome{EstablishmentID: est.ID, Position: ranking.Unranked},
			errors.New("attempt failed")
	}
	return ranking.Outcome{
		EstablishmentID: est.ID,
		Query:           est.Queries[0],
		Found:           true,
		Position:        3,
		Interacted:      true,
	}, nil
}

type mergeCall struct {
	out  ranking.Outcome
	date time.Time
}

type fakeSink struct {
	merges []mergeCall
}

func (s *fakeSink) Merge(out ranking.Outcome, date time.Time) ranking.Record {
	s.merges = append(s.merges, mergeCall{out, date})
	return ranking.Record{}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeEstablishments(ids ...string) []config.Establishment {
	ests := make([]config.Establishment, 0, len(ids))
	for _, id := range ids {
		ests = append(ests, config.Establishment{
			ID:      id,
			Name:    "est " + id,
			Queries: []string{"кофе"},
			Repeats: 1,
		})
	}
	return ests
}

func TestOrchestrator_AllSucceed(t *testing.T) {
	ests := makeEstablishments("a", "b", "c")
	runner := newFakeRunner(nil)
	sink := &fakeSink{}
	progress := NewProgress(ests, 1)
	orch := NewOrchestrator(runner, sink, 5, progress,
		WithOrchestratorLogger(quietLogger()))

	if err := orch.RunRepetition(context.Background(), ests, 0); err != nil {
		t.Fatalf("RunRepetition: %v", err)
	}
	if len(sink.merges) != 3 {
		t.Fatalf("merges: got %d, want 3", len(sink.merges))
	}
	for _, id := range []string{"a", "b", "c"} {
		if got := progress.Successes(id); got != 1 {
			t.Errorf("successes[%s]: got %d, want 1", id, got)
		}
	}
}

func TestOrchestrator_FailingEstablishmentDoesNotStarveOthers(t *testing.T) {
	ests := makeEstablishments("a", "b", "c")
	// b fails more times than the process budget allows.
	runner := newFakeRunner(map[string]int{"b": 10})
	sink := &fakeSink{}
	progress := NewProgress(ests, 1)
	orch := NewOrchestrator(runner, sink, 3, progress,
		WithOrchestratorLogger(quietLogger()))

	if err := orch.RunRepetition(context.Background(), ests, 0); err != nil {
		t.Fatalf("RunRepetition: %v", err)
	}

	if got := runner.calls["b"]; got != 3 {
		t.Errorf("calls[b]: got %d, want 3 (process budget)", got)
	}
	if runner.calls["a"] != 1 || runner.calls["c"] != 1 {
		t.Errorf("calls: a=%d c=%d, want 1 each", runner.calls["a"], runner.calls["c"])
	}

	// 2 successes merged immediately plus b's failure merged on exhaustion.
	if len(sink.merges) != 3 {
		t.Fatalf("merges: got %d, want 3", len(sink.merges))
	}
	var failureMerges int
	for _, m := range sink.merges {
		if !m.out.Found {
			failureMerges++
			if m.out.EstablishmentID != "b" {
				t.Errorf("failure merge for %q, want b", m.out.EstablishmentID)
			}
		}
	}
	if failureMerges != 1 {
		t.Errorf("failure merges: got %d, want 1 (only on budget exhaustion)", failureMerges)
	}
	if progress.Successes("b") != 0 {
		t.Errorf("successes[b]: got %d, want 0", progress.Successes("b"))
	}
}

func TestOrchestrator_RoundRobinRetries(t *testing.T) {
	ests := makeEstablishments("a", "b")
	// a fails twice before succeeding; b succeeds first try.
	runner := newFakeRunner(map[string]int{"a": 2})
	sink := &fakeSink{}
	orch := NewOrchestrator(runner, sink, 5, NewProgress(ests, 1),
		WithOrchestratorLogger(quietLogger()))

	if err := orch.RunRepetition(context.Background(), ests, 0); err != nil {
		t.Fatalf("RunRepetition: %v", err)
	}

	// The failing establishment is revisited on subsequent passes, not
	// hammered in place while b waits.
	want := []string{"a", "b", "a", "a"}
	if len(runner.order) != len(want) {
		t.Fatalf("processing order: got %v, want %v", runner.order, want)
	}
	for i := range want {
		if runner.order[i] != want[i] {
			t.Errorf("processing order: got %v, want %v", runner.order, want)
			break
		}
	}
}

func TestOrchestrator_SkipsEstablishmentsPastTheirRepeats(t *testing.T) {
	ests := makeEstablishments("a", "b")
	ests[1].Repeats = 2
	runner := newFakeRunner(nil)
	sink := &fakeSink{}
	orch := NewOrchestrator(runner, sink, 5, NewProgress(ests, 2),
		WithOrchestratorLogger(quietLogger()))

	// Second repetition: only b is still due.
	if err := orch.RunRepetition(context.Background(), ests, 1); err != nil {
		t.Fatalf("RunRepetition: %v", err)
	}
	if runner.calls["a"] != 0 {
		t.Errorf("calls[a]: got %d, want 0 (repeats exhausted)", runner.calls["a"])
	}
	if runner.calls["b"] != 1 {
		t.Errorf("calls[b]: got %d, want 1", runner.calls["b"])
	}
}

func TestOrchestrator_PanicCountsAsFailedAttempt(t *testing.T) {
	ests := makeEstablishments("a")
	runner := newFakeRunner(nil)
	runner.panicFor = "a"
	sink := &fakeSink{}
	orch := NewOrchestrator(runner, sink, 2, NewProgress(ests, 1),
		WithOrchestratorLogger(quietLogger()))

	if err := orch.RunRepetition(context.Background(), ests, 0); err != nil {
		t.Fatalf("RunRepetition: %v (panics must stay contained)", err)
	}
	if runner.calls["a"] != 2 {
		t.Errorf("calls[a]: got %d, want 2 (panic consumed the budget)", runner.calls["a"])
	}
	if len(sink.merges) != 1 || sink.merges[0].out.Found {
		t.Errorf("merges: got %+v, want one failure merge", sink.merges)
	}
}

func TestOrchestrator_ContextCancellationStopsRepetition(t *testing.T) {
	ests := makeEstablishments("a", "b")
	runner := newFakeRunner(nil)
	sink := &fakeSink{}
	orch := NewOrchestrator(runner, sink, 5, NewProgress(ests, 1),
		WithOrchestratorLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := orch.RunRepetition(ctx, ests, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunRepetition: err=%v, want context.Canceled", err)
	}
	if len(runner.order) != 0 {
		t.Errorf("processing order: got %v, want none after cancellation", runner.order)
	}
}

// Full pipeline over two repetitions: machine, orchestrator and aggregator
// wired together, with the driver placing the target at position 5 in the
// first repetition and position 3 in the second.
func TestOrchestrator_TwoRepetitionsAggregate(t *testing.T) {
	est := config.Establishment{
		ID:      "romashka",
		Name:    "Кафе Ромашка",
		Address: "Гурьянова, 30",
		Queries: []string{"кофе"},
		Repeats: 2,
	}
	ests := []config.Establishment{est}

	listWithTargetAt := func(pos int) []Entry {
		list := make([]Entry, pos)
		for i := 0; i < pos-1; i++ {
			list[i] = Entry{Title: "Другое", Address: "ул. Мира, 1"}
		}
		list[pos-1] = Entry{Title: "Кафе Ромашка", Address: "ул. Гурьянова, 30"}
		return list
	}

	date := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	agg := ranking.NewAggregator(quietLogger())
	progress := NewProgress(ests, 2)

	for rep, pos := range []int{5, 3} {
		d := &fakeDriver{lists: [][]Entry{listWithTargetAt(pos)}}
		m := NewMachine(d, pick.Fixed(0), testAttempts(),
			WithLogger(quietLogger()), WithSleep(noSleep))
		orch := NewOrchestrator(m, agg, 5, progress,
			WithOrchestratorLogger(quietLogger()),
			WithClock(func() time.Time { return date }))
		if err := orch.RunRepetition(context.Background(), ests, rep); err != nil {
			t.Fatalf("repetition %d: %v", rep, err)
		}
	}

	recs := agg.Records()
	if len(recs) != 1 {
		t.Fatalf("records: got %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Date != "27.08.2026" {
		t.Errorf("Date: got %q, want 27.08.2026", rec.Date)
	}
	if rec.Frequency != 2 {
		t.Errorf("Frequency: got %d, want 2", rec.Frequency)
	}
	if rec.BestPosition != 3 {
		t.Errorf("BestPosition: got %d, want 3 (min of 5 and 3)", rec.BestPosition)
	}
	if progress.Successes(est.ID) != 2 {
		t.Errorf("successes: got %d, want 2", progress.Successes(est.ID))
	}
}
