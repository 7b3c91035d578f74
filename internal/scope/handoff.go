package scope

import (
	"context"
	"errors"
	"sync"
)

// ErrHandoffClosed is returned by Take once the producer has closed the
// handoff and the last chunk has been consumed.
var ErrHandoffClosed = errors.New("scope: handoff closed")

// Handoff passes raw chunks from the capture goroutine to the render loop
// through a single slot. Put never blocks: a chunk not yet taken is
// overwritten by the newer one and counted as dropped.
type Handoff struct {
	mu      sync.Mutex
	slot    []byte
	full    bool
	closed  bool
	dropped uint64
	ready   chan struct{} // capacity 1, signals a fill or close
}

// NewHandoff creates a handoff for chunks of size bytes.
func NewHandoff(size int) *Handoff {
	return &Handoff{
		slot:  make([]byte, size),
		ready: make(chan struct{}, 1),
	}
}

// Put copies chunk into the slot, replacing any chunk still waiting there.
func (h *Handoff) Put(chunk []byte) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if h.full {
		h.dropped++
	}
	copy(h.slot, chunk)
	h.full = true
	h.mu.Unlock()
	h.signal()
}

// Take waits for a chunk and copies it into dst. It returns ErrHandoffClosed
// after Close once the slot is empty, or the context error.
func (h *Handoff) Take(ctx context.Context, dst []byte) error {
	for {
		h.mu.Lock()
		if h.full {
			copy(dst, h.slot)
			h.full = false
			h.mu.Unlock()
			return nil
		}
		if h.closed {
			h.mu.Unlock()
			return ErrHandoffClosed
		}
		h.mu.Unlock()

		select {
		case <-h.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close marks the producer side finished and wakes a waiting Take.
func (h *Handoff) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.signal()
}

// Dropped returns the number of chunks overwritten before being taken.
func (h *Handoff) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Handoff) signal() {
	select {
	case h.ready <- struct{}{}:
	default:
	}
}
