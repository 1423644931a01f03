package dna

// Tracker holds the normalized DNA accepted during one run.
type Tracker struct {
	seen map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// IsUnique reports whether the normalized form of d has not been committed.
func (t *Tracker) IsUnique(d DNA) bool {
	_, found := t.seen[d.Normalized()]
	return !found
}

// Commit records the normalized form of d.
func (t *Tracker) Commit(d DNA) {
	t.seen[d.Normalized()] = struct{}{}
}

// Len returns the number of committed combinations.
func (t *Tracker) Len() int { return len(t.seen) }
