package orchestration

import (
	"sync"

	"github.com/google/uuid"
)

// audioBuffer carries synthesized audio from the synthesis worker to the
// playback worker. Chunks are indexed in synthesis order and always leave the
// buffer in that order with no gaps; an interleaved mark fires only after
// every chunk added before it has been yielded.
type audioBuffer struct {
	mu sync.Mutex

	chunks           [][]byte
	marks            []audioBufferMark
	internalPlayhead int
	externalPlayhead int

	allAudioLoaded bool
	stopped        bool

	updateSignal chan struct{}
}

type audioBufferMark struct {
	ID          string
	transcript  string
	position    int
	broadcasted bool
	confirmed   bool
}

func newAudioBuffer() *audioBuffer {
	return &audioBuffer{
		updateSignal: make(chan struct{}, 1),
	}
}

func (b *audioBuffer) AddAudio(audio []byte) {
	b.mu.Lock()
	b.chunks = append(b.chunks, audio)
	b.mu.Unlock()
	b.signalUpdate()
}

// Mark records the transcript synthesized so far; it is broadcast once all
// audio added before it has been yielded.
func (b *audioBuffer) Mark(transcript string) {
	b.mu.Lock()
	b.marks = append(b.marks, audioBufferMark{
		ID:         uuid.NewString(),
		transcript: transcript,
		position:   len(b.chunks),
	})
	b.mu.Unlock()
	b.signalUpdate()
}

// AllAudioLoaded seals the buffer: the iterator ends once every chunk has
// been consumed and confirmed.
func (b *audioBuffer) AllAudioLoaded() {
	b.mu.Lock()
	b.allAudioLoaded = true
	b.mu.Unlock()
	b.signalUpdate()
}

// Stop ends the iterator regardless of remaining chunks. Used on
// cancellation; repeated calls are harmless.
func (b *audioBuffer) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()
	b.signalUpdate()
}

// Audio yields chunks and marks in order, blocking while synthesis is still
// producing.
func (b *audioBuffer) Audio(yield func(audioOrMark) bool) {
	for {
		for {
			chunk, ok := b.consumeNextChunk()
			if !ok {
				break
			}
			if !yield(audioOrMark{Type: "audio", Audio: chunk}) {
				return
			}
			if ok := b.broadcastMarks(yield); !ok {
				return
			}
		}
		if ok := b.waitForNextAudio(yield); !ok {
			return
		}
	}
}

func (b *audioBuffer) consumeNextChunk() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped || len(b.chunks) <= b.internalPlayhead {
		return nil, false
	}

	chunk := b.chunks[b.internalPlayhead]
	b.internalPlayhead++
	return chunk, true
}

func (b *audioBuffer) broadcastMarks(yield func(audioOrMark) bool) (ok bool) {
	b.mu.Lock()
	marksToBroadcast := []string{}
	for i, mark := range b.marks {
		if mark.confirmed || mark.broadcasted {
			continue
		} else if mark.position > b.internalPlayhead {
			break
		}

		b.marks[i].broadcasted = true
		marksToBroadcast = append(marksToBroadcast, mark.ID)
	}
	b.mu.Unlock()

	for _, markID := range marksToBroadcast {
		if !yield(audioOrMark{Type: "mark", Mark: markID}) {
			return false
		}
	}

	return true
}

func (b *audioBuffer) waitForNextAudio(yield func(audioOrMark) bool) (ok bool) {
	for {
		b.mu.Lock()
		noAudioAvailable := len(b.chunks) == b.internalPlayhead
		stopped := b.stopped
		audioDone := b.audioDoneLocked()
		b.mu.Unlock()

		if !noAudioAvailable {
			return !(stopped || audioDone)
		}
		if stopped || audioDone {
			return false
		}

		<-b.updateSignal
		// A mark can arrive after its audio has fully played; broadcast here
		// so the loop cannot wait forever on a mark-only update.
		if ok := b.broadcastMarks(yield); !ok {
			return false
		}
	}
}

// audioDoneLocked reports whether every chunk has been handed to the
// playback worker and no more can arrive. Mark confirmations track what was
// audibly played but do not gate completion, so a lost device callback
// cannot wedge the iterator.
func (b *audioBuffer) audioDoneLocked() bool {
	return b.allAudioLoaded && b.internalPlayhead == len(b.chunks)
}

func (b *audioBuffer) GetMarkText(id string) *string {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.marks {
		if b.marks[i].ID == id {
			transcript := b.marks[i].transcript
			return &transcript
		}
	}
	return nil
}

// ConfirmMark records that the sink finished playing everything before the
// mark, advancing the external playhead.
func (b *audioBuffer) ConfirmMark(id string) {
	b.mu.Lock()
	shouldSignal := false
	for i, mark := range b.marks {
		if mark.confirmed {
			continue
		} else if !mark.broadcasted {
			break
		}
		if mark.ID == id {
			b.marks[i].confirmed = true
			b.externalPlayhead = mark.position
			if b.audioDoneLocked() {
				shouldSignal = true
			}
			break
		}
	}
	b.mu.Unlock()

	if shouldSignal {
		b.signalUpdate()
	}
}

// SpokenTranscript joins the transcripts of every confirmed mark, the text
// that was audibly played before an interruption.
func (b *audioBuffer) SpokenTranscript() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	spoken := ""
	for _, mark := range b.marks {
		if !mark.confirmed {
			break
		}
		spoken += mark.transcript
	}
	return spoken
}

func (b *audioBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}

type audioOrMark struct {
	Type  string
	Audio []byte
	Mark  string
}
