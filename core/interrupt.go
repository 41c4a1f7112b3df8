package orchestration

import "github.com/rtvoicechat/core/core/events"

// interruptController is the barge-in gate. It sees every utterance start
// before the utterance is opened and is inert unless the assistant holds the
// floor; then it stops audible output first and cancels the turn exactly
// once.
type interruptController struct {
	o *Orchestrator
}

func (c *interruptController) utteranceStarted() {
	c.o.mu.Lock()
	phase := c.o.phase
	turn := c.o.currentTurn
	c.o.mu.Unlock()

	if phase != PhaseThinking && phase != PhaseSpeaking {
		return
	}
	c.o.interruptTurn(turn)
}

// interruptTurn stops playback, then cancels. Audible output must cease
// before the cancellation spreads so no stale chunk reaches the device in
// between. Exactly one caller wins the cancellation.
func (o *Orchestrator) interruptTurn(turn *activeTurn) {
	if turn == nil {
		return
	}

	if err := o.audioOutput.stopImmediately(); err != nil {
		logger.Warn("stopping playback failed", "turn", turn.ID, "error", err)
	}

	if turn.Cancel() {
		o.emit(events.NewTurnCancelled(turn.ID))
		o.emit(events.NewAssistantPlaybackEnded(turn.ID, turn.audioBuffer.SpokenTranscript()))
	}
}
