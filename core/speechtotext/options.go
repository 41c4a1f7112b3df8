package speechtotext

import "github.com/rtvoicechat/core/core/audio"

// Fragment is one unit of transcription output for an utterance. Fragments
// for the same utterance arrive in emission order; a final fragment
// supersedes every partial before it and is delivered at most once. A
// non-nil Err is terminal for the utterance and carries no usable text.
type Fragment struct {
	Utterance uint64
	Text      string
	IsFinal   bool
	Err       error
}

type TranscriptionOptions struct {
	// FragmentCallback receives partial and final transcripts in emission
	// order.
	FragmentCallback func(Fragment)

	EncodingInfo audio.EncodingInfo
	Language     string
	Model        string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithFragmentCallback(callback func(Fragment)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.FragmentCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func WithModel(model string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Model = model
	}
}
