package events

const (
	KindTurnPhaseChanged Kind = "turn_state.phase_changed"
	KindTurnCancelled    Kind = "turn_state.cancelled"
	KindPipelineError    Kind = "turn_state.error"
)

type TurnPhaseChanged struct {
	Base
	Phase string
}

func NewTurnPhaseChanged(phase string) TurnPhaseChanged {
	return TurnPhaseChanged{Base: NewBase(KindTurnPhaseChanged), Phase: phase}
}

// TurnCancelled fires exactly once per cancelled turn.
type TurnCancelled struct {
	Base
	TurnID string
}

func NewTurnCancelled(turnID string) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled), TurnID: turnID}
}

// PipelineError reports a non-fatal pipeline error. Fatal device errors are
// returned from Run instead.
type PipelineError struct {
	Base
	Err error
}

func NewPipelineError(err error) PipelineError {
	return PipelineError{Base: NewBase(KindPipelineError), Err: err}
}
