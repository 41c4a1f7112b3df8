package orchestration

import (
	"context"
	"errors"
	"strings"
)

// SendPrompt injects a text prompt as if it were a finalized transcript,
// interrupting any turn in flight. It is how text-only frontends drive the
// same turn pipeline the microphone does.
func (o *Orchestrator) SendPrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt is empty")
	}
	if o.ctx == nil {
		return errors.New("orchestration has not been started")
	}

	o.mu.Lock()
	turn := o.currentTurn
	o.mu.Unlock()
	o.interruptTurn(turn)

	o.startTurn(0, prompt)
	return nil
}

// CancelTurn stops the turn in flight, if any, exactly as a spoken
// interruption would, without opening a new utterance.
func (o *Orchestrator) CancelTurn() {
	o.mu.Lock()
	turn := o.currentTurn
	phase := o.phase
	o.mu.Unlock()

	if turn == nil {
		return
	}
	o.interruptTurn(turn)

	if phase == PhaseThinking || phase == PhaseSpeaking {
		o.setPhase(PhaseIdle)
	}
}

// Close tears the session down: capture stops, the open utterance and turn
// are cancelled, and the clients are closed. Safe to call more than once.
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() { err = o.shutdown() })
	return err
}

func (o *Orchestrator) shutdown() error {
	if o.cancel != nil {
		o.cancel()
	}

	o.mu.Lock()
	open := o.utteranceOpen
	seq := o.activeUtterance
	o.utteranceOpen = false
	turn := o.currentTurn
	o.mu.Unlock()

	var errs error
	errs = errors.Join(errs, o.audioInput.stop())
	o.speechToText.stopWorker()

	if open {
		errs = errors.Join(errs, o.speechToText.cancelUtterance(seq))
	}
	if turn != nil {
		turn.Cancel()
	}
	o.turnWg.Wait()

	errs = errors.Join(errs, o.audioOutput.stopImmediately())
	errs = errors.Join(errs, o.speechToText.close(context.Background()))
	errs = errors.Join(errs, o.textToSpeech.close())

	// Capture and playback may share one device client; close it once.
	sharedDevice := o.audioInput.client != nil &&
		any(o.audioInput.client) == any(o.audioOutput.client)
	errs = errors.Join(errs, o.audioInput.close())
	if !sharedDevice {
		errs = errors.Join(errs, o.audioOutput.close())
	}

	o.setPhase(PhaseIdle)
	logger.Info("conversation session closed")
	return errs
}
