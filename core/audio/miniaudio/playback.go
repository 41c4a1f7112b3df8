package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/rtvoicechat/core/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	// queued audio and marks share one lock because marks are positioned
	// relative to the end of the queue.
	queue   []byte
	marks   []playbackMark
	queueMu sync.Mutex

	mu sync.Mutex
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 20 // ~50ms, keeps barge-in latency low
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

// Stop clears the queue first so the device never emits another period of
// stale audio, then halts the device. malgo's Stop blocks until the device
// has stopped.
func (c *playbackClient) Stop() error {
	c.ClearBuffer()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if !c.device.IsStarted() {
		return nil
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	c.queue = append(c.queue, audio...)
	return nil
}

// ClearBuffer drops all queued audio. Marks positioned behind the dropped
// audio still fire: a mark confirms the queue ahead of it is gone, played or
// not, so anyone blocked in AwaitMark is released.
func (c *playbackClient) ClearBuffer() {
	c.queueMu.Lock()
	c.queue = nil
	dropped := c.marks
	c.marks = nil
	c.queueMu.Unlock()

	if len(dropped) > 0 {
		go func() {
			for _, mark := range dropped {
				mark.callback(mark.name)
			}
		}()
	}
}

func (c *playbackClient) IsPlaying() bool {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue) > 0
}

// Mark registers a callback that fires once every byte queued before it has
// been handed to the device.
func (c *playbackClient) Mark(mark string, callback func(string)) error {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	c.marks = append(c.marks, playbackMark{
		name:     mark,
		position: len(c.queue),
		callback: callback,
	})
	return nil
}

// AwaitMark blocks until all currently queued audio has been played out.
func (c *playbackClient) AwaitMark() error {
	wg := sync.WaitGroup{}
	wg.Add(1)
	if err := c.Mark("", func(string) { wg.Done() }); err != nil {
		return err
	}
	wg.Wait()
	return nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		if need > len(pOutput) {
			need = len(pOutput)
		}

		c.queueMu.Lock()
		n := copy(pOutput[:need], c.queue)
		c.queue = c.queue[n:]
		if n < need {
			silence := audio.GetDefaultEncodingInfo().SilenceValue()
			for i := n; i < need; i++ {
				pOutput[i] = silence
			}
		}

		passed := 0
		for i := range c.marks {
			if c.marks[i].position > n {
				c.marks[i].position -= n
			} else {
				passed++
			}
		}
		var toCall []playbackMark
		if passed > 0 {
			toCall = append(toCall, c.marks[:passed]...)
			c.marks = c.marks[passed:]
		}
		c.queueMu.Unlock()

		if len(toCall) > 0 {
			go func() {
				for _, mark := range toCall {
					mark.callback(mark.name)
				}
			}()
		}
	}
}
