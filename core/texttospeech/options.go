package texttospeech

import "github.com/rtvoicechat/core/core/audio"

type TextToSpeechOptions struct {
	// SpeechAudioCallback is called with every audio chunk the synthesizer
	// produces, in synthesis order.
	SpeechAudioCallback func(audio []byte)
	// SpeechMarkCallback is called once per mark, after all speech for the
	// text sent before the mark has been produced.
	SpeechMarkCallback func(mark string)
	// SpeechEndedCallback is called once all requested speech has been
	// produced, after EndOfText.
	SpeechEndedCallback func()
	// ErrorCallback is called when speech generation fails. No further audio
	// is produced after an error.
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type TextToSpeechOption func(*TextToSpeechOptions)

func WithSpeechAudioCallback(callback func(audio []byte)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechAudioCallback = callback }
}

func WithSpeechMarkCallback(callback func(mark string)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechMarkCallback = callback }
}

func WithSpeechEndedCallback(callback func()) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechEndedCallback = callback }
}

func WithErrorCallback(callback func(error)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.ErrorCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

type SpeechGenerator interface {
	// SendText queues text for synthesis. Speech is always generated in the
	// order text is sent.
	//
	// SendText errors if EndOfText, Cancel or Close has been called.
	SendText(string) error
	// Mark marks the current point in the text. The mark callback fires with
	// the text sent since the previous mark, after the speech for it has been
	// produced.
	//
	// Mark errors if EndOfText, Cancel or Close has been called.
	Mark() error
	// EndOfText signals that no more text will be sent. The generator closes
	// itself once all remaining speech has been produced.
	//
	// EndOfText errors if Cancel or Close has been called. Repeated calls are
	// ignored.
	EndOfText() error
	// Cancel immediately stops further speech generation and closes the
	// generator. Repeated calls are ignored.
	Cancel() error
	// Close immediately closes the generator. No audio is produced after
	// Close returns. Repeated calls are ignored.
	Close() error
}
