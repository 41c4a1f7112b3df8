package portaudio

import "context"

// The orchestration layer probes these capabilities to halt playback at the
// device instead of merely dropping buffered audio.
var _ interface {
	StartPlayback(ctx context.Context) error
	StopPlayback() error
	AwaitMark() error
} = (*Client)(nil)
