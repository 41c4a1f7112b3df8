// Package deepgram streams text to speech over Deepgram's speak websocket.
package deepgram

import (
	"fmt"
	"os"
	"slices"
)

type Voice string

const (
	VoiceThalia  Voice = "aura-2-thalia-en"
	VoiceAsteria Voice = "aura-asteria-en"
	VoiceOrion   Voice = "aura-orion-en"
	VoiceLuna    Voice = "aura-luna-en"

	defaultVoice = VoiceThalia
)

func AvailableVoices() []Voice {
	return []Voice{VoiceThalia, VoiceAsteria, VoiceOrion, VoiceLuna}
}

type TextToSpeechClient struct {
	apiKey string
	voice  Voice
}

func NewTextToSpeechClient(voice Voice) (*TextToSpeechClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	if voice == "" {
		voice = defaultVoice
	}
	if !slices.Contains(AvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice %q", voice)
	}

	return &TextToSpeechClient{apiKey: apiKey, voice: voice}, nil
}

func (c *TextToSpeechClient) SetVoice(voice Voice) error {
	if !slices.Contains(AvailableVoices(), voice) {
		return fmt.Errorf("invalid voice %q", voice)
	}
	c.voice = voice
	return nil
}
