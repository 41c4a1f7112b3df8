// Package events defines the typed pipeline event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*: capture-side activity (utterances, transcripts)
//   - assistant_response.*: generated response text
//   - assistant_speech.*: synthesized audio
//   - turn_state.*: turn lifecycle (phase changes, cancellation)
package events

import "time"

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
