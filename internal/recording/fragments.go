package recording

import (
	"sync"
	"time"
)

// Fragment is one encoded piece of a recording.
type Fragment struct {
	Sequence uint32
	Data     []byte
	Received time.Time
}

// FragmentBuffer keeps encoded fragments in production order.
type FragmentBuffer struct {
	fragments  []Fragment
	nextSeq    uint32
	totalBytes int
	lastUpdate time.Time

	mu sync.RWMutex
}

// FragmentStats represents buffer statistics for monitoring
type FragmentStats struct {
	Fragments  int       `json:"fragments"`
	Bytes      int       `json:"bytes"`
	LastUpdate time.Time `json:"last_update"`
}

// NewFragmentBuffer creates an empty buffer.
func NewFragmentBuffer() *FragmentBuffer {
	return &FragmentBuffer{fragments: make([]Fragment, 0, 64)}
}

// Add appends a fragment and returns its sequence number. Empty fragments are
// skipped.
func (b *FragmentBuffer) Add(data []byte) (uint32, bool) {
	if len(data) == 0 {
		return 0, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.nextSeq
	b.nextSeq++
	b.lastUpdate = time.Now()
	b.fragments = append(b.fragments, Fragment{Sequence: seq, Data: data, Received: b.lastUpdate})
	b.totalBytes += len(data)
	return seq, true
}

// Bytes concatenates every fragment in sequence order.
func (b *FragmentBuffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, 0, b.totalBytes)
	for _, f := range b.fragments {
		out = append(out, f.Data...)
	}
	return out
}

// Len returns the number of fragments.
func (b *FragmentBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fragments)
}

// GetStats returns buffer statistics.
func (b *FragmentBuffer) GetStats() FragmentStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return FragmentStats{
		Fragments:  len(b.fragments),
		Bytes:      b.totalBytes,
		LastUpdate: b.lastUpdate,
	}
}
