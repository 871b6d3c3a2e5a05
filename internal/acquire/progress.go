package acquire

import (
	"sync"

	"github.com/Andromeda-12/statify/internal/config"
)

// Progress tracks per-establishment success counts across repetitions. The
// orchestrator writes it; the status endpoint and the final report message
// read snapshots concurrently.
type Progress struct {
	mu         sync.RWMutex
	repetition int
	maxRepeats int
	order      []string
	names      map[string]string
	required   map[string]int
	success    map[string]int
}

// EstablishmentProgress is one row of a progress snapshot.
type EstablishmentProgress struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Success  int    `json:"success"`
	Required int    `json:"required"`
}

// Snapshot is a point-in-time view of the run.
type Snapshot struct {
	Repetition     int                     `json:"repetition"`
	MaxRepetitions int                     `json:"max_repetitions"`
	Establishments []EstablishmentProgress `json:"establishments"`
}

// NewProgress initializes tracking for the given establishments.
func NewProgress(ests []config.Establishment, maxRepeats int) *Progress {
	p := &Progress{
		maxRepeats: maxRepeats,
		names:      make(map[string]string, len(ests)),
		required:   make(map[string]int, len(ests)),
		success:    make(map[string]int, len(ests)),
	}
	for _, est := range ests {
		p.order = append(p.order, est.ID)
		p.names[est.ID] = est.Name
		p.required[est.ID] = est.Repeats
	}
	return p
}

// SetRepetition records the current repetition index (0-based).
func (p *Progress) SetRepetition(n int) {
	p.mu.Lock()
	p.repetition = n
	p.mu.Unlock()
}

// RecordSuccess increments the success count for an establishment.
func (p *Progress) RecordSuccess(id string) {
	p.mu.Lock()
	p.success[id]++
	p.mu.Unlock()
}

// Successes returns the success count for an establishment.
func (p *Progress) Successes(id string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.success[id]
}

// Snapshot returns a consistent copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := Snapshot{
		Repetition:     p.repetition + 1,
		MaxRepetitions: p.maxRepeats,
	}
	for _, id := range p.order {
		snap.Establishments = append(snap.Establishments, EstablishmentProgress{
			ID:       id,
			Name:     p.names[id],
			Success:  p.success[id],
			Required: p.required[id],
		})
	}
	return snap
}
