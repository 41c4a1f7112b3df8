package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rtvoicechat/core/core/audio"
	"github.com/rtvoicechat/core/core/events"
	"github.com/rtvoicechat/core/core/speechtotext"
)

// speechToText fronts the recognition client: it wires fragment routing once
// at session start and forwards the per-utterance lifecycle calls, reporting
// transcripts back through the handler funcs the orchestrator installs.
//
// Lifecycle calls are queued and replayed in order on a session worker
// goroutine. They arrive on the capture goroutine, which must never wait on
// recognition network I/O.
type speechToText struct {
	client SpeechToText

	emitEvent eventEmitter

	onInterimTranscript func(utterance uint64, transcript string)
	onFinalTranscript   func(utterance uint64, transcript string)
	onRecognitionError  func(utterance uint64, err error)

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func (s *speechToText) set(client SpeechToText) {
	s.client = client
}

func (s *speechToText) isSet() bool {
	return s.client != nil
}

// start configures fragment routing and spawns the session worker. Must run
// before the first utterance opens.
func (s *speechToText) start(encodingInfo audio.EncodingInfo) error {
	if s.client == nil {
		return fmt.Errorf("no speech to text client set")
	}

	s.client.Configure(
		speechtotext.WithEncodingInfo(encodingInfo),
		speechtotext.WithFragmentCallback(s.routeFragment),
	)

	s.mu.Lock()
	s.closed = false
	s.wake = make(chan struct{}, 1)
	s.done = make(chan struct{})
	s.mu.Unlock()
	go s.work()
	return nil
}

func (s *speechToText) work() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if s.closed {
			s.queue = nil
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			wake := s.wake
			s.mu.Unlock()
			<-wake
			continue
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		job()
	}
}

// submit queues a lifecycle call for the session worker. It never blocks;
// calls submitted after stopWorker are dropped.
func (s *speechToText) submit(job func()) {
	s.mu.Lock()
	if s.done == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, job)
	wake := s.wake
	s.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

// stopWorker shuts the session worker down, discarding queued calls, and
// waits for it to exit.
func (s *speechToText) stopWorker() {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return
	}
	s.closed = true
	wake := s.wake
	done := s.done
	s.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	<-done
}

func (s *speechToText) routeFragment(fragment speechtotext.Fragment) {
	if fragment.Err != nil {
		logger.Warn("recognition error",
			slog.Uint64("utterance", fragment.Utterance),
			slog.String("error", fragment.Err.Error()),
		)
		s.reportError(fragment.Utterance, fragment.Err)
		return
	}

	if fragment.IsFinal {
		s.emitEvent(events.NewUserTranscriptFinal(fragment.Utterance, fragment.Text))
		if s.onFinalTranscript != nil {
			s.onFinalTranscript(fragment.Utterance, fragment.Text)
		}
		return
	}

	s.emitEvent(events.NewUserTranscriptInterim(fragment.Utterance, fragment.Text))
	if s.onInterimTranscript != nil {
		s.onInterimTranscript(fragment.Utterance, fragment.Text)
	}
}

// beginUtterance queues the recognition session open; a failure surfaces
// through the recognition error handler.
func (s *speechToText) beginUtterance(ctx context.Context, seq uint64) {
	s.submit(func() {
		if err := s.client.BeginUtterance(ctx, seq); err != nil {
			s.reportError(seq, err)
		}
	})
}

func (s *speechToText) pushFrame(seq uint64, pcm []byte) {
	s.submit(func() {
		if err := s.client.PushFrame(seq, pcm); err != nil {
			logger.Warn("forwarding frame failed",
				slog.Uint64("utterance", seq),
				slog.String("error", err.Error()),
			)
		}
	})
}

func (s *speechToText) endUtterance(seq uint64) {
	s.submit(func() {
		if err := s.client.EndUtterance(seq); err != nil {
			s.reportError(seq, err)
		}
	})
}

func (s *speechToText) reportError(utterance uint64, err error) {
	if s.onRecognitionError != nil {
		s.onRecognitionError(utterance, err)
	}
}

func (s *speechToText) cancelUtterance(seq uint64) error {
	if s.client == nil {
		return nil
	}
	return s.client.CancelUtterance(seq)
}

func (s *speechToText) close(ctx context.Context) error {
	switch client := s.client.(type) {
	case interface{ Close(ctx context.Context) error }:
		return client.Close(ctx)
	case interface{ Close() error }:
		return client.Close()
	case nil:
		return nil
	}
	return nil
}
