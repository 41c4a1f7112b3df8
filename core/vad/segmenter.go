// Package vad turns a raw capture frame stream into utterance boundaries.
//
// The segmenter classifies every frame as speech or silence, applies a
// minimum-speech window before declaring an utterance open and a silence
// hangover before declaring it closed, and fans the resulting events out to
// any number of listeners. Segmentation is an observer, not a filter: every
// frame is forwarded downstream unmodified regardless of its classification.
package vad

import (
	"fmt"
	"time"

	"github.com/rtvoicechat/core/core/audio"
)

// Class is the frame-level speech/silence decision.
type Class int

const (
	Silence Class = iota
	Speech
)

// Listener receives utterance boundary events. UtteranceStarted hands over
// the pre-roll frames buffered while the trigger window was filling, so the
// utterance audio includes the onset that preceded the decision.
//
// Listeners are invoked synchronously from the capture goroutine and must
// not block.
type Listener interface {
	UtteranceStarted(seq uint64, preroll []audio.Frame)
	UtteranceEnded(seq uint64)
}

// rmsThresholds maps the aggressiveness level to the normalized RMS decision
// boundary. Higher levels demand louder input before a frame counts as
// speech.
var rmsThresholds = [4]float64{0.010, 0.018, 0.030, 0.050}

type Segmenter struct {
	config  Config
	options segmenterOptions

	threshold   float64
	frameBudget int // max frames retained in the trigger ring

	listeners []Listener

	// trigger ring, only populated while no utterance is open
	ring []classifiedFrame

	triggered      bool
	seq            uint64
	silenceElapsed time.Duration
}

type classifiedFrame struct {
	frame audio.Frame
	class Class
}

func NewSegmenter(config Config, opts ...SegmenterOption) (*Segmenter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid segmenter config: %w", err)
	}

	options := segmenterOptions{onFrame: func(audio.Frame, Class) {}}
	for _, opt := range opts {
		opt(&options)
	}

	return &Segmenter{
		config:      config,
		options:     options,
		threshold:   rmsThresholds[config.Aggressiveness],
		frameBudget: int(config.TriggerWindow / config.FrameDuration),
	}, nil
}

// AddListener registers a boundary event subscriber. Listeners must be
// registered before the first Push; the segmenter itself is confined to the
// capture goroutine and does no locking.
func (s *Segmenter) AddListener(listener Listener) {
	if listener != nil {
		s.listeners = append(s.listeners, listener)
	}
}

// Classify is the stateless frame decision: speech when the normalized RMS
// amplitude clears the aggressiveness boundary.
func (s *Segmenter) Classify(frame audio.Frame) Class {
	if frame.RMS(s.config.EncodingInfo) >= s.threshold {
		return Speech
	}
	return Silence
}

// Push classifies one frame, advances the boundary state machine, and
// forwards the frame downstream. It must be called from a single goroutine.
func (s *Segmenter) Push(frame audio.Frame) {
	class := s.Classify(frame)

	if s.triggered {
		s.pushTriggered(class)
	} else {
		s.pushWaiting(frame, class)
	}

	s.options.onFrame(frame, class)
}

// pushWaiting accumulates frames in the trigger ring until enough recent
// speech has been seen to open an utterance.
func (s *Segmenter) pushWaiting(frame audio.Frame, class Class) {
	s.ring = append(s.ring, classifiedFrame{frame: frame, class: class})
	if len(s.ring) > s.frameBudget {
		s.ring = s.ring[1:]
	}

	voiced := 0
	for _, classified := range s.ring {
		if classified.class == Speech {
			voiced++
		}
	}

	voicedDuration := time.Duration(voiced) * s.config.FrameDuration
	if voiced*2 <= len(s.ring) || voicedDuration < s.config.MinSpeechDuration {
		return
	}

	s.triggered = true
	s.seq++
	s.silenceElapsed = 0

	preroll := make([]audio.Frame, len(s.ring))
	for i, classified := range s.ring {
		preroll[i] = classified.frame
	}
	s.ring = nil

	for _, listener := range s.listeners {
		listener.UtteranceStarted(s.seq, preroll)
	}
}

// pushTriggered tracks the silence hangover while an utterance is open. A
// speech frame inside the hangover resets it, so brief pauses never split an
// utterance.
func (s *Segmenter) pushTriggered(class Class) {
	if class == Speech {
		s.silenceElapsed = 0
		return
	}

	s.silenceElapsed += s.config.FrameDuration
	if s.silenceElapsed < s.config.SilenceHangover {
		return
	}

	s.triggered = false
	for _, listener := range s.listeners {
		listener.UtteranceEnded(s.seq)
	}
}

// Reset clears segmentation state without touching the sequence counter, so
// a restarted stream cannot reuse an old utterance number.
func (s *Segmenter) Reset() {
	if s.triggered {
		s.triggered = false
		for _, listener := range s.listeners {
			listener.UtteranceEnded(s.seq)
		}
	}
	s.ring = nil
	s.silenceElapsed = 0
}

// CurrentSeq reports the sequence number of the most recently opened
// utterance.
func (s *Segmenter) CurrentSeq() uint64 { return s.seq }

// IsTriggered reports whether an utterance is currently open.
func (s *Segmenter) IsTriggered() bool { return s.triggered }
