package engine

import "math/rand/v2"

// IndexQueue hands out edition numbers. The full range is computed up front
// and optionally shuffled once, so the Nth reservation always gets the Nth
// entry.
type IndexQueue struct {
	indices []int
	next    int
}

// NewIndexQueue covers [start, start+n). A non-nil rng shuffles the range.
func NewIndexQueue(start, n int, rng *rand.Rand) *IndexQueue {
	if n < 0 {
		n = 0
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = start + i
	}
	if rng != nil {
		rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}
	return &IndexQueue{indices: indices}
}

// Reserve takes the next index. ok is false when the queue is exhausted.
func (q *IndexQueue) Reserve() (index int, ok bool) {
	if q.next >= len(q.indices) {
		return 0, false
	}
	index = q.indices[q.next]
	q.next++
	return index, true
}

// Remaining returns the number of unreserved indices.
func (q *IndexQueue) Remaining() int { return len(q.indices) - q.next }
