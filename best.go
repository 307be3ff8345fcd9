package lgptune

import (
	"math"
	"sync"
)

// BestRecord is the best (score, params) pair of a session.
type BestRecord struct {
	Score  float64
	Params string
}

// BestTracker is the thread-safe record of the best result seen in a
// session. One tracker is shared by every worker of the session.
//
// Thread safety:
// - Update, Snapshot and Reset are serialized by one mutex, so updates are
// never lost and snapshots are never torn.
type BestTracker struct {
	mu     sync.Mutex
	set    bool
	score  float64
	params string
}

// NewBestTracker returns an unset tracker.
func NewBestTracker() *BestTracker {
	return &BestTracker{}
}

// Update replaces the record when score is strictly greater than the current
// one. An unset record counts as negative infinity. NaN never updates.
//
// Returns:
// - bool: whether the record was replaced.
func (b *BestTracker) Update(score float64, params string) bool {
	if math.IsNaN(score) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := math.Inf(-1)
	if b.set {
		current = b.score
	}

	if score <= current {
		return false
	}

	b.set = true
	b.score = score
	b.params = params

	return true
}

// Snapshot returns a copy of the record, and false while unset.
func (b *BestTracker) Snapshot() (BestRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.set {
		return BestRecord{}, false
	}

	return BestRecord{Score: b.score, Params: b.params}, true
}

// Reset clears the record.
func (b *BestTracker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.set = false
	b.score = 0
	b.params = ""
}

// bestScore returns the current best score, NaN while unset.
func (b *BestTracker) bestScore() float64 {
	if rec, ok := b.Snapshot(); ok {
		return rec.Score
	}

	return math.NaN()
}
