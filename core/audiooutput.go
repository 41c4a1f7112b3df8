package orchestration

import (
	"context"
	"fmt"

	"github.com/rtvoicechat/core/core/audio"
)

// audioOutput fronts the playback device. Only buffering and clearing are
// required of a sink; marks, blocking drain, and immediate stop are optional
// capabilities probed through type assertions, with inline fallbacks for
// sinks that lack them.
type audioOutput struct {
	client AudioOutput
}

type audioOutputMarker interface {
	Mark(mark string, callback func(string)) error
}

type audioOutputAwaiter interface {
	AwaitMark() error
}

type audioOutputStopper interface {
	StopPlayback() error
}

type audioOutputStarter interface {
	StartPlayback(ctx context.Context) error
}

func (a *audioOutput) set(client AudioOutput) {
	a.client = client
}

func (a *audioOutput) isSet() bool {
	return a.client != nil
}

func (a *audioOutput) encodingInfo() audio.EncodingInfo {
	if a.client == nil {
		return audio.GetDefaultEncodingInfo()
	}
	return a.client.EncodingInfo()
}

func (a *audioOutput) sendAudio(pcm []byte) error {
	if a.client == nil {
		return fmt.Errorf("no audio output client set")
	}
	if err := a.client.SendAudio(pcm); err != nil {
		return &DeviceError{Op: "playback", Err: err}
	}
	return nil
}

// mark asks the sink to confirm once everything buffered before this point
// has been played. Sinks without native marks get a blocking-drain fallback,
// and sinks with neither confirm immediately, which overestimates progress
// but never loses a confirmation.
func (a *audioOutput) mark(mark string, callback func(string)) error {
	switch client := a.client.(type) {
	case audioOutputMarker:
		return client.Mark(mark, callback)
	case audioOutputAwaiter:
		go func() {
			if err := client.AwaitMark(); err != nil {
				logger.Warn("playback drain failed", "error", err)
			}
			callback(mark)
		}()
		return nil
	case nil:
		return fmt.Errorf("no audio output client set")
	}
	callback(mark)
	return nil
}

// drain blocks until the sink has played everything buffered so far, when
// the sink supports it.
func (a *audioOutput) drain() error {
	if client, ok := a.client.(audioOutputAwaiter); ok {
		return client.AwaitMark()
	}
	return nil
}

// stopImmediately drops everything queued and halts the device. It returns
// only once playback has actually ceased.
func (a *audioOutput) stopImmediately() error {
	if a.client == nil {
		return nil
	}

	a.client.ClearBuffer()
	if client, ok := a.client.(audioOutputStopper); ok {
		if err := client.StopPlayback(); err != nil {
			return &DeviceError{Op: "playback stop", Err: err}
		}
	}
	return nil
}

func (a *audioOutput) ensurePlaying(ctx context.Context) error {
	if client, ok := a.client.(audioOutputStarter); ok {
		if err := client.StartPlayback(ctx); err != nil {
			return &DeviceError{Op: "playback start", Err: err}
		}
	}
	return nil
}

func (a *audioOutput) close() error {
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
