package bind

import (
	"sync"
	"time"
)

// ErrorRecord is an error that had no caller to return to, such as a failed
// fire-and-forget dispatch or a failed autosave.
type ErrorRecord struct {
	Err  error
	Time time.Time
}

// errorRing is a thread-safe ring buffer holding the most recent records.
type errorRing struct {
	mu      sync.RWMutex
	records []ErrorRecord
	size    int
	head    int
	count   int
}

// newErrorRing creates a ring with the given capacity.
// If size is 0, the ring buffer is disabled.
func newErrorRing(size int) *errorRing {
	if size <= 0 {
		return nil
	}
	return &errorRing{
		records: make([]ErrorRecord, size),
		size:    size,
	}
}

func (r *errorRing) push(err error, at time.Time) {
	if r == nil || err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[r.head] = ErrorRecord{Err: err, Time: at}
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

func (r *errorRing) clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.records)
	r.head = 0
	r.count = 0
}

// all returns the held records, oldest first.
func (r *errorRing) all() []ErrorRecord {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	out := make([]ErrorRecord, r.count)
	start := (r.head - r.count + r.size) % r.size
	for i := range out {
		out[i] = r.records[(start+i)%r.size]
	}
	return out
}
