package orchestration

import (
	"strings"
	"sync"
)

// textBuffer is the hand-off lane between the generation worker and the
// synthesis worker. Producers append chunks as tokens arrive; the single
// consumer drains them through the Chunks iterator, sleeping on a condition
// variable while the stream is mid-flight.
type textBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending []string // produced but not yet consumed
	full    []string // everything produced, kept for String
	done    bool
	dropped bool
}

func newTextBuffer() *textBuffer {
	b := &textBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *textBuffer) AddChunk(chunk string) {
	b.mu.Lock()
	b.pending = append(b.pending, chunk)
	b.full = append(b.full, chunk)
	b.cond.Broadcast()
	b.mu.Unlock()
}

// TextComplete marks the end of the stream; the iterator finishes once the
// remaining chunks are drained.
func (b *textBuffer) TextComplete() {
	b.mu.Lock()
	b.done = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Clear drops everything not yet consumed and ends the iterator. String
// still reports the full text produced so far.
func (b *textBuffer) Clear() {
	b.mu.Lock()
	b.dropped = true
	b.pending = nil
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Chunks yields chunks in arrival order, blocking while the stream is
// mid-flight. It ends after TextComplete once everything has been consumed,
// or as soon as the buffer is cleared.
func (b *textBuffer) Chunks(yield func(string) bool) {
	for {
		b.mu.Lock()
		for len(b.pending) == 0 && !b.done && !b.dropped {
			b.cond.Wait()
		}
		if b.dropped || len(b.pending) == 0 {
			b.mu.Unlock()
			return
		}
		chunk := b.pending[0]
		b.pending = b.pending[1:]
		b.mu.Unlock()

		if !yield(chunk) {
			return
		}
	}
}

func (b *textBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.full, "")
}
