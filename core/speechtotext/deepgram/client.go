// Package deepgram adapts Deepgram's streaming listen API to the
// per-utterance transcription contract: every utterance gets its own
// websocket session that is fed frames, sealed for a final transcript, or
// abandoned on cancellation.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rtvoicechat/core/core/audio"
	"github.com/rtvoicechat/core/core/speechtotext"
)

type TranscriptionClient struct {
	apiKey  string
	options speechtotext.TranscriptionOptions

	mu       sync.Mutex
	sessions map[uint64]*utteranceSession
}

func NewTranscriptionClient(opts ...speechtotext.TranscriptionOption) (*TranscriptionClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	options := speechtotext.TranscriptionOptions{
		EncodingInfo: audio.GetDefaultEncodingInfo(),
		Model:        "nova-3",
		Language:     "en-US",
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.FragmentCallback == nil {
		options.FragmentCallback = func(speechtotext.Fragment) {}
	}

	return &TranscriptionClient{
		apiKey:   apiKey,
		options:  options,
		sessions: map[uint64]*utteranceSession{},
	}, nil
}

// Configure applies additional transcription options. It must be called
// before the first utterance begins; sessions already open keep the options
// they were created with.
func (c *TranscriptionClient) Configure(opts ...speechtotext.TranscriptionOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, opt := range opts {
		opt(&c.options)
	}
	if c.options.FragmentCallback == nil {
		c.options.FragmentCallback = func(speechtotext.Fragment) {}
	}
}

// BeginUtterance opens a recognition session for the given utterance
// sequence number. Fragments are reported through the configured fragment
// callback.
func (c *TranscriptionClient) BeginUtterance(ctx context.Context, seq uint64) error {
	c.mu.Lock()
	options := c.options
	c.mu.Unlock()

	session, err := newUtteranceSession(ctx, seq, c.apiKey, options)
	if err != nil {
		return fmt.Errorf("failed to open recognition session for utterance %d: %w", seq, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sessions[seq]; exists {
		_ = session.abandon()
		return fmt.Errorf("utterance %d already has an open session", seq)
	}
	c.sessions[seq] = session
	return nil
}

// PushFrame streams one PCM frame into the utterance's session.
func (c *TranscriptionClient) PushFrame(seq uint64, pcm []byte) error {
	session := c.session(seq)
	if session == nil {
		return fmt.Errorf("no open session for utterance %d", seq)
	}

	return session.sendAudio(pcm)
}

// EndUtterance seals the session. The final transcript is delivered through
// the fragment callback once the recognizer flushes.
func (c *TranscriptionClient) EndUtterance(seq uint64) error {
	session := c.take(seq)
	if session == nil {
		return fmt.Errorf("no open session for utterance %d", seq)
	}

	return session.finish()
}

// CancelUtterance abandons in-flight recognition. No fragment, final or
// otherwise, is emitted for a cancelled utterance.
func (c *TranscriptionClient) CancelUtterance(seq uint64) error {
	session := c.take(seq)
	if session == nil {
		return nil
	}

	return session.abandon()
}

func (c *TranscriptionClient) Close(ctx context.Context) error {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = map[uint64]*utteranceSession{}
	c.mu.Unlock()

	var errs error
	for _, session := range sessions {
		errs = errors.Join(errs, session.abandon())
	}
	return errs
}

func (c *TranscriptionClient) session(seq uint64) *utteranceSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[seq]
}

func (c *TranscriptionClient) take(seq uint64) *utteranceSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.sessions[seq]
	delete(c.sessions, seq)
	return session
}
