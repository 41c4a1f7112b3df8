package orchestration

import (
	"context"
	"fmt"

	"github.com/rtvoicechat/core/core/audio"
	"github.com/rtvoicechat/core/core/texttospeech"
)

// textToSpeech fronts the synthesis client. One speech generator is opened
// per turn; its callbacks feed the turn's audio buffer so synthesized chunks
// and marks reach the playback worker in order.
type textToSpeech struct {
	client TextToSpeech
}

func (t *textToSpeech) set(client TextToSpeech) {
	t.client = client
}

func (t *textToSpeech) isSet() bool {
	return t.client != nil
}

// newSession opens a speech generator wired to the turn's audio buffer. A
// synthesis error is recorded on the turn and the buffer is sealed so the
// turn ends silently instead of wedging the playback worker.
func (t *textToSpeech) newSession(ctx context.Context, turn *activeTurn, encodingInfo audio.EncodingInfo) (texttospeech.SpeechGenerator, error) {
	if t.client == nil {
		return nil, fmt.Errorf("no text to speech client set")
	}

	generator, err := t.client.NewSpeechGenerator(ctx,
		texttospeech.WithEncodingInfo(encodingInfo),
		texttospeech.WithSpeechAudioCallback(turn.audioBuffer.AddAudio),
		texttospeech.WithSpeechMarkCallback(turn.audioBuffer.Mark),
		texttospeech.WithSpeechEndedCallback(turn.audioBuffer.AllAudioLoaded),
		texttospeech.WithErrorCallback(func(err error) {
			turn.setSynthesisError(&SynthesisError{TurnID: turn.ID, Err: err})
			turn.audioBuffer.AllAudioLoaded()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open speech generator: %w", err)
	}
	return generator, nil
}

func (t *textToSpeech) close() error {
	switch client := t.client.(type) {
	case interface{ Close() error }:
		return client.Close()
	case nil:
		return nil
	}
	return nil
}
