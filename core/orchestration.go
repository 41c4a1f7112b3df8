// Package orchestration runs the realtime voice conversation loop: captured
// audio is segmented into utterances, transcribed, answered by a streaming
// language model, synthesized to speech and played back, with user speech
// during playback interrupting the assistant mid-turn.
package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rtvoicechat/core/core/audio"
	"github.com/rtvoicechat/core/core/events"
	"github.com/rtvoicechat/core/core/llms"
	"github.com/rtvoicechat/core/core/vad"
)

type Orchestrator struct {
	audioInput   audioInput
	audioOutput  audioOutput
	speechToText speechToText
	llm          llm
	textToSpeech textToSpeech

	segmenterConfig vad.Config
	segmenter       *vad.Segmenter
	interrupts      *interruptController

	options OrchestrateOptions
	emitter eventEmitter

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	phase           Phase
	activeUtterance uint64
	utteranceOpen   bool
	currentTurn     *activeTurn

	conversation conversation

	turnWg    sync.WaitGroup
	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{}
	o.interrupts = &interruptController{o: o}
	o.audioInput.emitEvent = o.emit
	o.speechToText.emitEvent = o.emit
	o.llm.emitEvent = o.emit

	o.speechToText.onFinalTranscript = o.handleFinalTranscript
	o.speechToText.onRecognitionError = o.handleRecognitionError

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate starts the conversation loop. It returns once the pipeline is
// running; the session ends when the context is cancelled or Close is
// called.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) error {
	options := OrchestrateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	o.options = options
	o.emitter = newCallbackEventEmitter(options)

	ctx, cancel := context.WithCancel(ctx)
	o.ctx = ctx
	o.cancel = cancel

	if !o.llm.isSet() {
		return errors.New("no streaming llm client set")
	}

	encodingInfo := o.audioInput.encodingInfo()

	if o.speechToText.isSet() {
		if err := o.speechToText.start(encodingInfo); err != nil {
			return err
		}
	}

	config := o.segmenterConfig
	if config.EncodingInfo.IsZero() {
		config.EncodingInfo = encodingInfo
	}
	frameDuration := config.FrameDuration
	if frameDuration == 0 {
		frameDuration = 30 * time.Millisecond
	}
	segmenter, err := vad.NewSegmenter(config, vad.WithFrameCallback(o.handleFrame))
	if err != nil {
		return err
	}
	segmenter.AddListener(o)
	o.segmenter = segmenter

	if o.audioInput.isSet() {
		if !o.speechToText.isSet() {
			return errors.New("audio input requires a speech to text client")
		}
		if err := o.audioInput.start(ctx, segmenter, frameDuration); err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "conversation session started")
	o.setPhase(PhaseIdle)

	go func() {
		<-ctx.Done()
		_ = o.Close()
	}()
	return nil
}

// UtteranceStarted implements vad.Listener. It runs on the capture
// goroutine; the interrupt controller handles speech arriving while the
// assistant holds the floor before the new utterance opens.
func (o *Orchestrator) UtteranceStarted(seq uint64, preroll []audio.Frame) {
	o.interrupts.utteranceStarted()

	o.mu.Lock()
	o.activeUtterance = seq
	o.utteranceOpen = true
	o.mu.Unlock()
	o.setPhase(PhaseListening)

	o.emit(events.NewUserUtteranceStarted(seq))

	o.speechToText.beginUtterance(o.ctx, seq)

	if len(preroll) == 0 {
		return
	}
	// The last pre-roll frame is the frame currently being pushed; the frame
	// callback forwards that one.
	for _, frame := range preroll[:len(preroll)-1] {
		o.speechToText.pushFrame(seq, frame.PCM)
	}
}

// UtteranceEnded implements vad.Listener.
func (o *Orchestrator) UtteranceEnded(seq uint64) {
	o.mu.Lock()
	if !o.utteranceOpen || o.activeUtterance != seq {
		o.mu.Unlock()
		return
	}
	o.utteranceOpen = false
	o.mu.Unlock()

	o.emit(events.NewUserUtteranceEnded(seq))

	o.speechToText.endUtterance(seq)
}

// handleFrame forwards classified frames to recognition while an utterance
// is open. Silence frames are forwarded too; the recognizer hears the
// unfiltered stream between the utterance boundaries.
func (o *Orchestrator) handleFrame(frame audio.Frame, _ vad.Class) {
	o.mu.Lock()
	open := o.utteranceOpen
	seq := o.activeUtterance
	o.mu.Unlock()

	if !open {
		return
	}
	o.speechToText.pushFrame(seq, frame.PCM)
}

func (o *Orchestrator) handleFinalTranscript(utterance uint64, transcript string) {
	o.mu.Lock()
	stale := utterance != o.activeUtterance
	o.mu.Unlock()
	if stale {
		return
	}

	if strings.TrimSpace(transcript) == "" {
		// Nothing recognizable was said; no turn to run.
		o.setPhaseIfListening(PhaseIdle)
		return
	}

	o.startTurn(utterance, transcript)
}

func (o *Orchestrator) handleRecognitionError(utterance uint64, err error) {
	o.emit(events.NewPipelineError(&RecognitionError{Utterance: utterance, Err: err}))
	_ = o.speechToText.cancelUtterance(utterance)

	o.mu.Lock()
	if o.utteranceOpen && o.activeUtterance == utterance {
		o.utteranceOpen = false
	}
	stale := utterance != o.activeUtterance
	o.mu.Unlock()

	if !stale {
		o.setPhaseIfListening(PhaseIdle)
	}
}

func (o *Orchestrator) startTurn(utterance uint64, prompt string) {
	turn := newActiveTurn(o.ctx, utterance, prompt)

	o.mu.Lock()
	o.currentTurn = turn
	o.mu.Unlock()
	o.setPhase(PhaseThinking)

	o.turnWg.Add(1)
	go func() {
		defer o.turnWg.Done()
		o.runTurn(turn)
	}()
}

func (o *Orchestrator) runTurn(turn *activeTurn) {
	pipeline := &responsePipeline{
		turn:      turn,
		history:   o.conversation.History(),
		llm:       &o.llm,
		tts:       &o.textToSpeech,
		sink:      &o.audioOutput,
		emitEvent: o.emit,
		onFirstAudio: func() {
			o.setPhaseIfCurrent(turn, PhaseSpeaking)
		},
	}

	err := pipeline.Run(turn.ctx)
	if err != nil {
		o.emit(events.NewPipelineError(err))
	}

	// A turn that failed generation terminally produced nothing worth
	// remembering; everything else, interrupted turns included, enters the
	// history.
	var generationErr *GenerationError
	if !errors.As(err, &generationErr) {
		o.conversation.Append(turn.Finalize())
	}

	o.finishTurn(turn)
}

// finishTurn returns the orchestrator to idle unless a newer utterance or
// turn has already taken over.
func (o *Orchestrator) finishTurn(turn *activeTurn) {
	o.mu.Lock()
	current := o.currentTurn == turn
	if current {
		o.currentTurn = nil
	}
	phase := o.phase
	o.mu.Unlock()

	if current && (phase == PhaseThinking || phase == PhaseSpeaking) {
		o.setPhase(PhaseIdle)
	}
}

// History returns the conversation so far, oldest turn first.
func (o *Orchestrator) History() []llms.Turn {
	return o.conversation.History()
}

func (o *Orchestrator) setPhase(phase Phase) {
	o.mu.Lock()
	if o.phase == phase {
		o.mu.Unlock()
		return
	}
	o.phase = phase
	o.mu.Unlock()

	o.emit(events.NewTurnPhaseChanged(phase.String()))
	if o.options.onPhaseChanged != nil {
		o.options.onPhaseChanged(phase)
	}
}

func (o *Orchestrator) setPhaseIfListening(phase Phase) {
	o.mu.Lock()
	listening := o.phase == PhaseListening
	o.mu.Unlock()
	if listening {
		o.setPhase(phase)
	}
}

func (o *Orchestrator) setPhaseIfCurrent(turn *activeTurn, phase Phase) {
	o.mu.Lock()
	current := o.currentTurn == turn && !turn.IsCancelled()
	o.mu.Unlock()
	if current {
		o.setPhase(phase)
	}
}

// Phase reports the current conversation phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) emit(event events.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter(event)
}
