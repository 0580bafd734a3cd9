package gateway

import "sync"

// ReplayBuffer keeps the most recent bar envelopes of one channel so a
// client that detects a sequence gap can backfill over REST instead of
// resubscribing from scratch.
type ReplayBuffer struct {
	mu   sync.RWMutex
	seqs []int64
	data [][]byte
	pos  int
	full bool
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{
		seqs: make([]int64, capacity),
		data: make([][]byte, capacity),
	}
}

// Push stores an envelope, overwriting the oldest entry when full. The
// buffer keeps its own copy.
func (rb *ReplayBuffer) Push(seq int64, envelope []byte) {
	cp := make([]byte, len(envelope))
	copy(cp, envelope)

	rb.mu.Lock()
	rb.seqs[rb.pos] = seq
	rb.data[rb.pos] = cp
	rb.pos++
	if rb.pos == len(rb.seqs) {
		rb.pos = 0
		rb.full = true
	}
	rb.mu.Unlock()
}

// Range returns envelopes with seq in [from, to], oldest first.
func (rb *ReplayBuffer) Range(from, to int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := rb.len()
	var out [][]byte
	for i := 0; i < n; i++ {
		idx := i
		if rb.full {
			idx = (rb.pos + i) % len(rb.seqs)
		}
		if rb.seqs[idx] >= from && rb.seqs[idx] <= to {
			out = append(out, rb.data[idx])
		}
	}
	return out
}

// Len returns the number of stored envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return len(rb.seqs)
	}
	return rb.pos
}
