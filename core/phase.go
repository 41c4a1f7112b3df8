package orchestration

// Phase is the conversation state. Exactly one phase is active at a time and
// only the orchestrator's event loop transitions between them.
type Phase int

const (
	// PhaseIdle means no utterance or turn is in flight.
	PhaseIdle Phase = iota
	// PhaseListening means an utterance is open and frames are streaming to
	// recognition.
	PhaseListening
	// PhaseThinking means a final transcript is in and response generation is
	// running, but no audio has played yet.
	PhaseThinking
	// PhaseSpeaking means response audio is playing. Speech detected in this
	// phase is an interruption.
	PhaseSpeaking
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseThinking:
		return "thinking"
	case PhaseSpeaking:
		return "speaking"
	}
	return "unknown"
}
