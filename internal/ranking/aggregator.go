// Package ranking aggregates per-run acquisition outcomes into date-indexed
// frequency/position records and persists them across process runs.
package ranking

import (
	"log/slog"
	"sort"
	"time"
)

// Unranked marks a position that was never observed. Any concrete 1-based
// position improves on it.
const Unranked = 0

// DateFormat is the report-facing day key, e.g. "27.08.2026".
const DateFormat = "02.01.2006"

// Outcome is the result of one acquisition run for one
// (establishment, query, repetition) triple. Consumed immediately by Merge.
type Outcome struct {
	EstablishmentID string
	Query           string
	Found           bool
	Position        int // 1-based; Unranked when not found
	Interacted      bool
}

// Key identifies one aggregated record.
type Key struct {
	Date            string
	EstablishmentID string
	Query           string
}

// Record is the aggregate for one key. Frequency accumulates additively;
// BestPosition only ever decreases (improves) once set.
type Record struct {
	Date            string
	EstablishmentID string
	Query           string
	Frequency       int
	BestPosition    int
}

// Aggregator merges outcomes in memory. It is not safe for concurrent use;
// the pipeline is single-threaded by construction.
type Aggregator struct {
	records map[Key]*Record
	logger  *slog.Logger
}

// NewAggregator creates an empty aggregator.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{records: make(map[Key]*Record), logger: logger}
}

// Merge folds one outcome into the record for (date, establishment, query).
// A successful outcome increments Frequency and converges BestPosition to
// the minimum observed. An unsuccessful outcome changes nothing and is only
// logged. Merge returns the record after the update.
func (a *Aggregator) Merge(out Outcome, date time.Time) Record {
	key := Key{
		Date:            date.Format(DateFormat),
		EstablishmentID: out.EstablishmentID,
		Query:           out.Query,
	}

	if !out.Found {
		// No record is created for a failure: a run that never found the
		// target leaves no row, only a log line.
		a.logger.Info("ranking: unsuccessful outcome, counters untouched",
			"establishment", out.EstablishmentID, "query", out.Query, "date", key.Date)
		if rec, ok := a.records[key]; ok {
			return *rec
		}
		return Record{
			Date:            key.Date,
			EstablishmentID: key.EstablishmentID,
			Query:           key.Query,
			BestPosition:    Unranked,
		}
	}

	rec, ok := a.records[key]
	if !ok {
		rec = &Record{
			Date:            key.Date,
			EstablishmentID: key.EstablishmentID,
			Query:           key.Query,
			BestPosition:    Unranked,
		}
		a.records[key] = rec
	}

	rec.Frequency++
	if betterPosition(out.Position, rec.BestPosition) {
		rec.BestPosition = out.Position
	}

	a.logger.Info("ranking: merged outcome",
		"establishment", out.EstablishmentID, "query", out.Query,
		"position", out.Position, "frequency", rec.Frequency,
		"best_position", rec.BestPosition)
	return *rec
}

// Records returns all aggregated records in a stable order.
func (a *Aggregator) Records() []Record {
	out := make([]Record, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EstablishmentID != out[j].EstablishmentID {
			return out[i].EstablishmentID < out[j].EstablishmentID
		}
		if out[i].Query != out[j].Query {
			return out[i].Query < out[j].Query
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// betterPosition reports whether candidate improves on current, treating
// Unranked as +infinity.
func betterPosition(candidate, current int) bool {
	if candidate == Unranked {
		return false
	}
	return current == Unranked || candidate < current
}
