package events

const (
	KindUserAudioFrame        Kind = "user_input.audio_frame"
	KindUserUtteranceStarted  Kind = "user_input.utterance_started"
	KindUserUtteranceEnded    Kind = "user_input.utterance_ended"
	KindUserTranscriptInterim Kind = "user_input.transcript_interim"
	KindUserTranscriptFinal   Kind = "user_input.transcript_final"
)

// UserAudioFrame is one raw capture frame. The payload is passed through
// without a defensive copy.
type UserAudioFrame struct {
	Base
	Audio []byte
}

func NewUserAudioFrame(audio []byte) UserAudioFrame {
	return UserAudioFrame{Base: NewBase(KindUserAudioFrame), Audio: audio}
}

type UserUtteranceStarted struct {
	Base
	Utterance uint64
}

func NewUserUtteranceStarted(utterance uint64) UserUtteranceStarted {
	return UserUtteranceStarted{Base: NewBase(KindUserUtteranceStarted), Utterance: utterance}
}

type UserUtteranceEnded struct {
	Base
	Utterance uint64
}

func NewUserUtteranceEnded(utterance uint64) UserUtteranceEnded {
	return UserUtteranceEnded{Base: NewBase(KindUserUtteranceEnded), Utterance: utterance}
}

// UserTranscriptInterim is a mutable point-in-time transcript snapshot. Later
// interim transcripts replace earlier ones for the same utterance.
type UserTranscriptInterim struct {
	Base
	Utterance  uint64
	Transcript string
}

func NewUserTranscriptInterim(utterance uint64, transcript string) UserTranscriptInterim {
	return UserTranscriptInterim{Base: NewBase(KindUserTranscriptInterim), Utterance: utterance, Transcript: transcript}
}

// UserTranscriptFinal is the terminal transcript for an utterance, emitted at
// most once.
type UserTranscriptFinal struct {
	Base
	Utterance  uint64
	Transcript string
}

func NewUserTranscriptFinal(utterance uint64, transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Utterance: utterance, Transcript: transcript}
}
