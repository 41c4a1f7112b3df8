package events

const (
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	KindAssistantResponseFinal   Kind = "assistant_response.final"
	KindAssistantSpeechFrame     Kind = "assistant_speech.frame"
	KindAssistantPlaybackEnded   Kind = "assistant_speech.playback_ended"
)

// AssistantResponseSegment is one streamed response text segment, append-only
// in emission order.
type AssistantResponseSegment struct {
	Base
	TurnID  string
	Segment string
}

func NewAssistantResponseSegment(turnID, segment string) AssistantResponseSegment {
	return AssistantResponseSegment{Base: NewBase(KindAssistantResponseSegment), TurnID: turnID, Segment: segment}
}

// AssistantResponseFinal marks the end of the response text stream for a
// turn.
type AssistantResponseFinal struct {
	Base
	TurnID   string
	Response string
}

func NewAssistantResponseFinal(turnID, response string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), TurnID: turnID, Response: response}
}

type AssistantSpeechFrame struct {
	Base
	TurnID string
	Audio  []byte
}

func NewAssistantSpeechFrame(turnID string, audio []byte) AssistantSpeechFrame {
	return AssistantSpeechFrame{Base: NewBase(KindAssistantSpeechFrame), TurnID: turnID, Audio: audio}
}

// AssistantPlaybackEnded fires when playback for a turn has stopped, whether
// it ran to completion or was interrupted.
type AssistantPlaybackEnded struct {
	Base
	TurnID     string
	Transcript string
}

func NewAssistantPlaybackEnded(turnID, transcript string) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded), TurnID: turnID, Transcript: transcript}
}
