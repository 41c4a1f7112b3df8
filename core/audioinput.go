package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/rtvoicechat/core/core/audio"
	"github.com/rtvoicechat/core/core/events"
	"github.com/rtvoicechat/core/core/vad"
)

// audioInput fronts the capture device. Device callbacks deliver arbitrarily
// sized PCM blocks; they are reassembled into fixed-duration frames here
// before the segmenter classifies them.
type audioInput struct {
	client    AudioInput
	emitEvent eventEmitter

	segmenter  *vad.Segmenter
	frameBytes int
	pending    []byte

	capturing bool
}

func (a *audioInput) set(client AudioInput) {
	a.client = client
}

func (a *audioInput) isSet() bool {
	return a.client != nil
}

func (a *audioInput) encodingInfo() audio.EncodingInfo {
	if a.client == nil {
		return audio.GetDefaultEncodingInfo()
	}
	return a.client.EncodingInfo()
}

func (a *audioInput) start(ctx context.Context, segmenter *vad.Segmenter, frameDuration time.Duration) error {
	if a.client == nil {
		return fmt.Errorf("no audio input client set")
	}

	a.segmenter = segmenter
	a.frameBytes = a.client.EncodingInfo().FrameBytes(frameDuration)
	if a.frameBytes <= 0 {
		return fmt.Errorf("cannot derive frame size from encoding %+v", a.client.EncodingInfo())
	}

	if err := a.client.StartCapture(ctx, a.onAudio); err != nil {
		return &DeviceError{Op: "capture start", Err: err}
	}
	a.capturing = true
	return nil
}

// onAudio runs on the capture goroutine. The segmenter is confined to this
// goroutine, so no locking happens here.
func (a *audioInput) onAudio(pcm []byte) {
	a.emitEvent(events.NewUserAudioFrame(pcm))

	a.pending = append(a.pending, pcm...)
	for len(a.pending) >= a.frameBytes {
		framePCM := make([]byte, a.frameBytes)
		copy(framePCM, a.pending)
		a.pending = a.pending[a.frameBytes:]
		a.segmenter.Push(audio.NewFrame(framePCM))
	}
}

func (a *audioInput) stop() error {
	if !a.capturing {
		return nil
	}
	a.capturing = false
	a.pending = nil

	if err := a.client.StopCapture(); err != nil {
		return &DeviceError{Op: "capture stop", Err: err}
	}
	if a.segmenter != nil {
		a.segmenter.Reset()
	}
	return nil
}

func (a *audioInput) close() error {
	switch client := a.client.(type) {
	case interface{ Close() error }:
		return client.Close()
	case interface{ Close() }:
		client.Close()
		return nil
	case nil:
		return nil
	}
	return nil
}
