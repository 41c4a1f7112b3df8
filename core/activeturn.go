package orchestration

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rtvoicechat/core/core/llms"
)

// activeTurn is the state of one assistant turn: the user's prompt, the two
// streaming buffers between the pipeline workers, and the cancellation flag.
// Cancellation is set-once; every stage checks it and stale work for a
// cancelled turn is discarded.
type activeTurn struct {
	ID        string
	Utterance uint64
	Prompt    string

	textBuffer  *textBuffer
	audioBuffer *audioBuffer

	ctx    context.Context
	cancel context.CancelFunc

	cancelled atomic.Bool

	mu       sync.Mutex
	response string
	synthErr error
}

func newActiveTurn(ctx context.Context, utterance uint64, prompt string) *activeTurn {
	ctx, cancel := context.WithCancel(ctx)
	return &activeTurn{
		ID:          uuid.NewString(),
		Utterance:   utterance,
		Prompt:      prompt,
		textBuffer:  newTextBuffer(),
		audioBuffer: newAudioBuffer(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Cancel flips the turn to cancelled and reports whether this call was the
// one that did it. Only the winning caller emits cancellation side effects.
func (t *activeTurn) Cancel() bool {
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}

	t.cancel()
	t.textBuffer.Clear()
	t.audioBuffer.Stop()
	return true
}

func (t *activeTurn) IsCancelled() bool {
	return t.cancelled.Load()
}

func (t *activeTurn) setResponse(response string) {
	t.mu.Lock()
	t.response = response
	t.mu.Unlock()
}

func (t *activeTurn) setSynthesisError(err error) {
	t.mu.Lock()
	if t.synthErr == nil {
		t.synthErr = err
	}
	t.mu.Unlock()
}

func (t *activeTurn) responseSnapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.response
}

func (t *activeTurn) synthesisError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.synthErr
}

// Finalize converts the turn into a history entry. An interrupted turn keeps
// only the text that was audibly spoken before the interruption.
func (t *activeTurn) Finalize() llms.Turn {
	t.mu.Lock()
	response := t.response
	t.mu.Unlock()

	interrupted := t.IsCancelled()
	assistant := response
	if interrupted {
		assistant = t.audioBuffer.SpokenTranscript()
	}

	return llms.Turn{
		ID:          t.ID,
		User:        t.Prompt,
		Assistant:   assistant,
		Interrupted: interrupted,
	}
}
