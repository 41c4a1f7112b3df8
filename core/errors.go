package orchestration

import "fmt"

// The pipeline separates failures by blast radius: device errors stop the
// session, recognition errors void one utterance, generation errors allow a
// single retry, synthesis errors end the turn silently.

type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("audio device %s failed: %v", e.Op, e.Err) }
func (e *DeviceError) Unwrap() error { return e.Err }

type RecognitionError struct {
	Utterance uint64
	Err       error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed for utterance %d: %v", e.Utterance, e.Err)
}
func (e *RecognitionError) Unwrap() error { return e.Err }

type GenerationError struct {
	TurnID string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for turn %s: %v", e.TurnID, e.Err)
}
func (e *GenerationError) Unwrap() error { return e.Err }

type SynthesisError struct {
	TurnID string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for turn %s: %v", e.TurnID, e.Err)
}
func (e *SynthesisError) Unwrap() error { return e.Err }
