package orchestration

import (
	"context"
	"time"

	"github.com/rtvoicechat/core/core/audio"
	"github.com/rtvoicechat/core/core/llms"
	"github.com/rtvoicechat/core/core/speechtotext"
	"github.com/rtvoicechat/core/core/texttospeech"
	"github.com/rtvoicechat/core/core/vad"
)

type OrchestratorOption func(*Orchestrator)

// AudioInput is a capture device delivering raw PCM through a callback.
type AudioInput interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() audio.EncodingInfo
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioInput.set(client) }
}

// AudioOutput is a playback device. Marks and immediate stop are optional
// capabilities probed at runtime.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
}

func WithAudioOutput(client AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioOutput.set(client) }
}

// SpeechToText runs one recognition session per utterance. Fragment routing
// is configured through Configure before the first utterance begins.
type SpeechToText interface {
	Configure(opts ...speechtotext.TranscriptionOption)
	BeginUtterance(ctx context.Context, seq uint64) error
	PushFrame(seq uint64, pcm []byte) error
	EndUtterance(seq uint64) error
	CancelUtterance(seq uint64) error
}

func WithSpeechToTextClient(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) { o.speechToText.set(client) }
}

// LLMWithStream produces a lazy token stream for one turn.
type LLMWithStream interface {
	Stream(ctx context.Context, turnID string, history []llms.Turn, prompt string) llms.TokenStream
}

func WithStreamingLLM(client LLMWithStream) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.set(client) }
}

type TextToSpeech interface {
	NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error)
}

func WithTextToSpeechClient(client TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) { o.textToSpeech.set(client) }
}

// WithSegmenterConfig overrides the voice activity segmentation parameters.
func WithSegmenterConfig(config vad.Config) OrchestratorOption {
	return func(o *Orchestrator) { o.segmenterConfig = config }
}

// WithGenerationRetryBackoff overrides the pause before the single
// generation retry.
func WithGenerationRetryBackoff(backoff time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.retryBackoff = backoff }
}

type OrchestrateOptions struct {
	onUtteranceStarted     func(utterance uint64)
	onUtteranceEnded       func(utterance uint64)
	onInterimTranscription func(transcript string)
	onTranscription        func(transcript string)
	onPhaseChanged         func(phase Phase)
	onResponse             func(token string)
	onResponseEnd          func()
	onAudio                func(audio []byte)
	onAudioEnded           func(transcript string)
	onCancellation         func()
	onInputAudio           func(audio []byte)
	onError                func(err error)
}

type OrchestrateOption func(*OrchestrateOptions)

func WithUtteranceStartedCallback(callback func(utterance uint64)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onUtteranceStarted = callback }
}

func WithUtteranceEndedCallback(callback func(utterance uint64)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onUtteranceEnded = callback }
}

// WithInterimTranscriptionCallback registers a callback for interim
// transcripts. Later interim transcripts replace earlier ones for the same
// utterance.
func WithInterimTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onInterimTranscription = callback }
}

// WithTranscriptionCallback registers a callback for final transcripts, one
// per completed utterance.
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTranscription = callback }
}

func WithPhaseChangedCallback(callback func(phase Phase)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onPhaseChanged = callback }
}

func WithResponseCallback(callback func(token string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponse = callback }
}

func WithResponseEndCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponseEnd = callback }
}

func WithAudioCallback(callback func(audio []byte)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onAudio = callback }
}

// WithAudioEndedCallback registers a callback for when playback for a turn
// stops, with the transcript of what was actually spoken.
func WithAudioEndedCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onAudioEnded = callback }
}

func WithCancellationCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onCancellation = callback }
}

// WithInputAudioCallback registers a callback for raw input audio frames.
//
// The provided slice is passed through as-is with no defensive copy. The
// callback runs inline on the capture path and must not block.
func WithInputAudioCallback(callback func(audio []byte)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onInputAudio = callback }
}

// WithErrorCallback registers a callback for non-fatal pipeline errors
// (recognition, generation, synthesis). Fatal device errors end the session
// instead.
func WithErrorCallback(callback func(err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onError = callback }
}
