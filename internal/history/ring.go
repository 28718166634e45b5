package history

// ring is a fixed-capacity newest-first buffer. Pushing into a full ring
// overwrites the oldest entry.
type ring struct {
	items []Transcript
	head  int // index of the newest entry
	size  int
}

func newRing(capacity int) *ring {
	return &ring{items: make([]Transcript, capacity)}
}

// loadRing builds a ring from a newest-first list. Entries beyond capacity
// are dropped and counted as evicted.
func loadRing(capacity int, newestFirst []Transcript) (*ring, int) {
	r := newRing(capacity)
	evicted := 0
	if len(newestFirst) > capacity {
		evicted = len(newestFirst) - capacity
		newestFirst = newestFirst[:capacity]
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		r.pushFront(newestFirst[i])
	}
	return r, evicted
}

// pushFront inserts t as the newest entry and reports whether the oldest
// entry was evicted.
func (r *ring) pushFront(t Transcript) bool {
	capacity := len(r.items)
	r.head = (r.head - 1 + capacity) % capacity
	r.items[r.head] = t
	if r.size < capacity {
		r.size++
		return false
	}
	return true
}

// slice returns the entries newest-first.
func (r *ring) slice() []Transcript {
	out := make([]Transcript, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}
