package vad

import (
	"fmt"
	"time"

	"github.com/rtvoicechat/core/core/audio"
)

// Config holds the tunable segmentation parameters. The right silence
// hangover and trigger window are deployment specific, so none of these are
// hard-coded elsewhere in the pipeline.
type Config struct {
	EncodingInfo audio.EncodingInfo

	// FrameDuration is the fixed duration of every pushed frame. Typical
	// values are 10, 20 or 30 ms.
	FrameDuration time.Duration

	// Aggressiveness shifts the speech/silence decision boundary, 0 (lenient)
	// through 3 (strict).
	Aggressiveness int

	// TriggerWindow is how much recent audio is considered when deciding
	// that an utterance has started. More than half of it must be voiced.
	TriggerWindow time.Duration

	// MinSpeechDuration suppresses transient spikes: at least this much
	// voiced audio must be inside the trigger window before UtteranceStarted
	// fires.
	MinSpeechDuration time.Duration

	// SilenceHangover is how long silence must persist before the open
	// utterance is sealed. Speech resuming inside this window continues the
	// utterance.
	SilenceHangover time.Duration
}

func (c *Config) applyDefaults() {
	if c.EncodingInfo.IsZero() {
		c.EncodingInfo = audio.GetDefaultEncodingInfo()
	}
	if c.FrameDuration == 0 {
		c.FrameDuration = 30 * time.Millisecond
	}
	if c.TriggerWindow == 0 {
		c.TriggerWindow = 300 * time.Millisecond
	}
	if c.MinSpeechDuration == 0 {
		c.MinSpeechDuration = 150 * time.Millisecond
	}
	if c.SilenceHangover == 0 {
		c.SilenceHangover = 700 * time.Millisecond
	}
}

func (c Config) validate() error {
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		return fmt.Errorf("aggressiveness must be between 0 and 3, got %d", c.Aggressiveness)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame duration must be positive, got %s", c.FrameDuration)
	}
	if c.TriggerWindow < c.FrameDuration {
		return fmt.Errorf("trigger window %s is shorter than one frame %s", c.TriggerWindow, c.FrameDuration)
	}
	if c.SilenceHangover < c.FrameDuration {
		return fmt.Errorf("silence hangover %s is shorter than one frame %s", c.SilenceHangover, c.FrameDuration)
	}
	if c.MinSpeechDuration > c.TriggerWindow {
		return fmt.Errorf("minimum speech duration %s cannot exceed the trigger window %s", c.MinSpeechDuration, c.TriggerWindow)
	}
	return nil
}

type segmenterOptions struct {
	onFrame func(frame audio.Frame, class Class)
}

type SegmenterOption func(*segmenterOptions)

// WithFrameCallback observes every classified frame in push order. The
// callback sees raw audio even for silence frames, so downstream consumers
// receive the unfiltered stream.
func WithFrameCallback(callback func(frame audio.Frame, class Class)) SegmenterOption {
	return func(o *segmenterOptions) {
		if callback != nil {
			o.onFrame = callback
		}
	}
}
