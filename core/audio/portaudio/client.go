// Package portaudio is a blocking-IO device driver, mostly useful where
// miniaudio's callback devices are unavailable.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/rtvoicechat/core/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	leftoverAudio []byte
	leftoverMu    sync.Mutex

	captureMu     sync.Mutex
	captureCancel context.CancelFunc
	captureDone   chan struct{}

	streamMu sync.Mutex
	started  bool

	in  []int16
	out []int16
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// Stream reads capture buffers until the context is cancelled, handing each
// one to onAudio as little-endian PCM.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.startStream(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				return fmt.Errorf("failed to read from portaudio stream: %w", err)
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}
}

// StartCapture runs Stream on its own goroutine, for callers that want the
// callback-driven contract instead of the blocking one.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.captureCancel != nil {
		return fmt.Errorf("capture is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.captureCancel = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		if err := c.Stream(ctx, onAudio); err != nil {
			log.Println("portaudio capture stream failed:", err)
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	cancel := c.captureCancel
	done := c.captureDone
	c.captureCancel = nil
	c.captureDone = nil
	c.captureMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) startStream() error {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.started {
		return nil
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	c.started = true
	return nil
}

func (c *Client) StartPlayback(_ context.Context) error {
	return c.startStream()
}

// StopPlayback drops queued audio and aborts the stream, discarding whatever
// the device had buffered, then restarts it. Capture shares the duplex
// stream and must keep flowing across the stop.
func (c *Client) StopPlayback() error {
	c.ClearBuffer()

	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	if err := c.stream.Abort(); err != nil {
		return fmt.Errorf("failed to abort portaudio stream: %w", err)
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to restart portaudio stream: %w", err)
	}
	c.started = true
	return nil
}

func (c *Client) Close() {
	c.stream.Close()
	portaudio.Terminate()
}

// SendAudio plays whole device buffers and carries the remainder over to the
// next call.
func (c *Client) SendAudio(audio []byte) error {
	bufferSize := c.bufferSize * 2

	c.leftoverMu.Lock()
	audio = append(c.leftoverAudio, audio...)
	whole := len(audio) / bufferSize * bufferSize
	c.leftoverAudio = append([]byte(nil), audio[whole:]...)
	c.leftoverMu.Unlock()

	for i := 0; i < whole; i += bufferSize {
		if err := binary.Read(bytes.NewBuffer(audio[i:i+bufferSize]), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to decode playback audio: %w", err)
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
	}

	return nil
}

func (c *Client) ClearBuffer() {
	c.leftoverMu.Lock()
	defer c.leftoverMu.Unlock()
	c.leftoverAudio = nil
}

// AwaitMark flushes the carried-over remainder, padding it out to a whole
// device buffer with silence.
func (c *Client) AwaitMark() error {
	bufferSize := c.bufferSize * 2

	c.leftoverMu.Lock()
	leftover := c.leftoverAudio
	c.leftoverAudio = nil
	c.leftoverMu.Unlock()

	if len(leftover) == 0 {
		return nil
	}

	padded := make([]byte, bufferSize)
	copy(padded, leftover)
	if err := binary.Read(bytes.NewBuffer(padded), binary.LittleEndian, c.out); err != nil {
		return fmt.Errorf("failed to decode playback audio: %w", err)
	}
	if err := c.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Channels:   1,
		Format:     audio.EncodingLinear16,
	}
}
