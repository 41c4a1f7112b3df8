package audio

import (
	"math"
	"time"
)

// Frame is one fixed-duration block of captured PCM. A frame is immutable
// once captured; whichever stage holds it owns it until it is handed to the
// next stage.
type Frame struct {
	PCM       []byte
	Timestamp time.Time
}

func NewFrame(pcm []byte) Frame {
	return Frame{PCM: pcm, Timestamp: time.Now()}
}

// RMS computes the root-mean-square amplitude of a linear16 little-endian
// frame, normalized to [0, 1]. Non-linear16 payloads and empty frames
// report zero.
func (f Frame) RMS(encoding EncodingInfo) float64 {
	if encoding.Format != EncodingLinear16 || len(f.PCM) < 2 {
		return 0
	}

	var sum float64
	samples := len(f.PCM) / 2
	for i := 0; i < samples; i++ {
		sample := int16(uint16(f.PCM[2*i]) | uint16(f.PCM[2*i+1])<<8)
		normalized := float64(sample) / math.MaxInt16
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// Duration is the playback time this frame covers under the given encoding.
func (f Frame) Duration(encoding EncodingInfo) time.Duration {
	return encoding.Duration(len(f.PCM))
}
