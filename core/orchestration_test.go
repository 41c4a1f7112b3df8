package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rtvoicechat/core/core/audio"
	"github.com/rtvoicechat/core/core/llms"
	"github.com/rtvoicechat/core/core/speechtotext"
	"github.com/rtvoicechat/core/core/texttospeech"
)

type fakeSpeechToText struct {
	// beginGate, when set, blocks BeginUtterance until the gate is closed,
	// standing in for a slow session dial.
	beginGate chan struct{}

	mu               sync.Mutex
	fragmentCallback func(speechtotext.Fragment)
	begun            []uint64
	ended            []uint64
	cancelled        []uint64
	frames           map[uint64]int
}

func newFakeSpeechToText() *fakeSpeechToText {
	return &fakeSpeechToText{frames: map[uint64]int{}}
}

func (f *fakeSpeechToText) Configure(opts ...speechtotext.TranscriptionOption) {
	options := speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	f.mu.Lock()
	f.fragmentCallback = options.FragmentCallback
	f.mu.Unlock()
}

func (f *fakeSpeechToText) BeginUtterance(_ context.Context, seq uint64) error {
	if f.beginGate != nil {
		<-f.beginGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, seq)
	return nil
}

func (f *fakeSpeechToText) PushFrame(seq uint64, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[seq]++
	return nil
}

func (f *fakeSpeechToText) EndUtterance(seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, seq)
	return nil
}

func (f *fakeSpeechToText) CancelUtterance(seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, seq)
	return nil
}

func (f *fakeSpeechToText) emitFinal(seq uint64, transcript string) {
	f.mu.Lock()
	callback := f.fragmentCallback
	f.mu.Unlock()
	callback(speechtotext.Fragment{Utterance: seq, Text: transcript, IsFinal: true})
}

func (f *fakeSpeechToText) emitInterim(seq uint64, transcript string) {
	f.mu.Lock()
	callback := f.fragmentCallback
	f.mu.Unlock()
	callback(speechtotext.Fragment{Utterance: seq, Text: transcript})
}

type fakeSpeechGenerator struct {
	options texttospeech.TextToSpeechOptions

	mu      sync.Mutex
	pending string
	done    bool
}

func (g *fakeSpeechGenerator) SendText(text string) error {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return fmt.Errorf("speech generator is closed")
	}
	g.pending += text
	g.mu.Unlock()

	g.options.SpeechAudioCallback([]byte(text))
	return nil
}

func (g *fakeSpeechGenerator) Mark() error {
	g.mu.Lock()
	pending := g.pending
	g.pending = ""
	g.mu.Unlock()

	g.options.SpeechMarkCallback(pending)
	return nil
}

func (g *fakeSpeechGenerator) EndOfText() error {
	g.mu.Lock()
	g.done = true
	g.mu.Unlock()

	g.options.SpeechEndedCallback()
	return nil
}

func (g *fakeSpeechGenerator) Cancel() error {
	g.mu.Lock()
	g.done = true
	g.mu.Unlock()
	return nil
}

func (g *fakeSpeechGenerator) Close() error { return g.Cancel() }

type fakeTextToSpeech struct {
	failToOpen bool
}

func (f *fakeTextToSpeech) NewSpeechGenerator(_ context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	if f.failToOpen {
		return nil, fmt.Errorf("synthesizer unavailable")
	}

	options := texttospeech.TextToSpeechOptions{
		SpeechAudioCallback: func([]byte) {},
		SpeechMarkCallback:  func(string) {},
		SpeechEndedCallback: func() {},
		ErrorCallback:       func(error) {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &fakeSpeechGenerator{options: options}, nil
}

type recordingAudioOutput struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordingAudioOutput) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (r *recordingAudioOutput) SendAudio(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "send:"+string(pcm))
	return nil
}

func (r *recordingAudioOutput) ClearBuffer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "clear")
}

func (r *recordingAudioOutput) Mark(mark string, callback func(string)) error {
	r.mu.Lock()
	r.ops = append(r.ops, "mark")
	r.mu.Unlock()
	callback(mark)
	return nil
}

func (r *recordingAudioOutput) StopPlayback() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "stop")
	return nil
}

func (r *recordingAudioOutput) StartPlayback(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "start")
	return nil
}

func (r *recordingAudioOutput) opsSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *recordingAudioOutput) sentCount() int {
	count := 0
	for _, op := range r.opsSnapshot() {
		if len(op) > 5 && op[:5] == "send:" {
			count++
		}
	}
	return count
}

type repeatingStreamLLM struct {
	chunk    string
	interval time.Duration
}

func (r repeatingStreamLLM) Stream(ctx context.Context, turnID string, _ []llms.Turn, _ string) llms.TokenStream {
	return func(yield func(llms.Token, error) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.interval):
			}
			if !yield(llms.Token{TurnID: turnID, Text: r.chunk}, nil) {
				return
			}
		}
	}
}

func prerollFrames(count int) []audio.Frame {
	frames := make([]audio.Frame, count)
	for i := range frames {
		frames[i] = audio.NewFrame(make([]byte, 960))
	}
	return frames
}

func awaitHistory(t *testing.T, o *Orchestrator, turns int) []llms.Turn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if history := o.History(); len(history) >= turns {
			return history
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d history turns, got %d", turns, len(o.History()))
	return nil
}

func TestSendPromptRunsFullTurn(t *testing.T) {
	client := &scriptedStreamLLM{script: []streamAttempt{
		{tokens: []string{"Hello there. ", "How are you?"}},
	}}
	sink := &recordingAudioOutput{}

	o := NewOrchestrator(
		WithStreamingLLM(client),
		WithTextToSpeechClient(&fakeTextToSpeech{}),
		WithAudioOutput(sink),
	)
	defer o.Close()

	audioEnded := make(chan string, 1)
	phaseChanges := make(chan Phase, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx,
		WithAudioEndedCallback(func(transcript string) {
			select {
			case audioEnded <- transcript:
			default:
			}
		}),
		WithPhaseChangedCallback(func(phase Phase) { phaseChanges <- phase }),
	); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	if err := o.SendPrompt("hi"); err != nil {
		t.Fatalf("expected prompt to be accepted, got %v", err)
	}

	select {
	case transcript := <-audioEnded:
		if transcript != "Hello there. How are you?" {
			t.Fatalf("expected the full response transcript, got %q", transcript)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback to end")
	}

	history := awaitHistory(t, o, 1)
	if history[0].User != "hi" {
		t.Fatalf("expected user prompt in history, got %q", history[0].User)
	}
	if history[0].Assistant != "Hello there. How are you?" {
		t.Fatalf("expected full assistant response in history, got %q", history[0].Assistant)
	}
	if history[0].Interrupted {
		t.Fatalf("expected a completed turn, got an interrupted one")
	}

	if got := sink.sentCount(); got != 2 {
		t.Fatalf("expected 2 audio chunks at the sink, got %d", got)
	}

	expectedPhases := []Phase{PhaseThinking, PhaseSpeaking, PhaseIdle}
	for _, expected := range expectedPhases {
		select {
		case phase := <-phaseChanges:
			if phase != expected {
				t.Fatalf("expected phase %s, got %s", expected, phase)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for phase %s", expected)
		}
	}
}

func TestBargeInStopsPlaybackAndCancelsOnce(t *testing.T) {
	stt := newFakeSpeechToText()
	sink := &recordingAudioOutput{}

	o := NewOrchestrator(
		WithStreamingLLM(repeatingStreamLLM{chunk: "still talking. ", interval: 5 * time.Millisecond}),
		WithTextToSpeechClient(&fakeTextToSpeech{}),
		WithAudioOutput(sink),
		WithSpeechToTextClient(stt),
	)
	defer o.Close()

	cancellations := make(chan struct{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx,
		WithCancellationCallback(func() { cancellations <- struct{}{} }),
	); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	if err := o.SendPrompt("tell me a long story"); err != nil {
		t.Fatalf("expected prompt to be accepted, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.sentCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for playback to start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	o.UtteranceStarted(1, prerollFrames(3))

	if got := o.Phase(); got != PhaseListening {
		t.Fatalf("expected listening phase right after barge-in, got %s", got)
	}

	select {
	case <-cancellations:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the cancellation callback")
	}

	ops := sink.opsSnapshot()
	clearIndex, stopIndex := -1, -1
	for i, op := range ops {
		if op == "clear" && clearIndex == -1 {
			clearIndex = i
		}
		if op == "stop" && stopIndex == -1 {
			stopIndex = i
		}
	}
	if stopIndex == -1 {
		t.Fatalf("expected playback to be stopped, ops were %v", ops)
	}
	if clearIndex == -1 || clearIndex > stopIndex {
		t.Fatalf("expected the queue to be cleared before the device stops, ops were %v", ops)
	}

	// Playback must stay stopped: no new chunk may reach the sink after the
	// interruption settles.
	time.Sleep(50 * time.Millisecond)
	settled := sink.sentCount()
	time.Sleep(50 * time.Millisecond)
	if got := sink.sentCount(); got != settled {
		t.Fatalf("expected no audio after barge-in, got %d new chunks", got-settled)
	}

	select {
	case <-cancellations:
		t.Fatalf("expected exactly one cancellation callback")
	default:
	}

	history := awaitHistory(t, o, 1)
	if !history[0].Interrupted {
		t.Fatalf("expected the interrupted turn to be recorded as such")
	}

	begun := awaitBegunUtterances(t, stt, 1)
	if begun[0] != 1 {
		t.Fatalf("expected recognition to begin for utterance 1, got %v", begun)
	}
}

func awaitBegunUtterances(t *testing.T, stt *fakeSpeechToText, count int) []uint64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		stt.mu.Lock()
		begun := append([]uint64(nil), stt.begun...)
		stt.mu.Unlock()
		if len(begun) >= count {
			return begun
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d begun utterances, got %v", count, begun)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func awaitPushedFrames(t *testing.T, stt *fakeSpeechToText, seq uint64, count int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		stt.mu.Lock()
		pushed := stt.frames[seq]
		stt.mu.Unlock()
		if pushed >= count {
			if pushed > count {
				t.Fatalf("expected %d frames for utterance %d, got %d", count, seq, pushed)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames for utterance %d, got %d", count, seq, pushed)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSynthesisFailureEndsTurnSilently(t *testing.T) {
	client := &scriptedStreamLLM{script: []streamAttempt{
		{tokens: []string{"Quiet response."}},
	}}
	sink := &recordingAudioOutput{}

	o := NewOrchestrator(
		WithStreamingLLM(client),
		WithTextToSpeechClient(&fakeTextToSpeech{failToOpen: true}),
		WithAudioOutput(sink),
	)
	defer o.Close()

	errs := make(chan error, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx,
		WithErrorCallback(func(err error) { errs <- err }),
	); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	if err := o.SendPrompt("hello"); err != nil {
		t.Fatalf("expected prompt to be accepted, got %v", err)
	}

	select {
	case err := <-errs:
		var synthErr *SynthesisError
		if !errors.As(err, &synthErr) {
			t.Fatalf("expected a synthesis error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the synthesis error")
	}

	history := awaitHistory(t, o, 1)
	if history[0].Assistant != "Quiet response." {
		t.Fatalf("expected the generated text to be kept, got %q", history[0].Assistant)
	}
	if history[0].Interrupted {
		t.Fatalf("expected a completed turn, got an interrupted one")
	}
	if got := sink.sentCount(); got != 0 {
		t.Fatalf("expected a silent turn, got %d audio chunks", got)
	}
}

func TestGenerationFailureAfterRetrySkipsHistory(t *testing.T) {
	client := &scriptedStreamLLM{script: []streamAttempt{
		{err: errors.New("first failure")},
		{err: errors.New("second failure")},
	}}

	o := NewOrchestrator(
		WithStreamingLLM(client),
		WithTextToSpeechClient(&fakeTextToSpeech{}),
		WithAudioOutput(&recordingAudioOutput{}),
		WithGenerationRetryBackoff(time.Millisecond),
	)
	defer o.Close()

	errs := make(chan error, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx,
		WithErrorCallback(func(err error) { errs <- err }),
	); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	if err := o.SendPrompt("hello"); err != nil {
		t.Fatalf("expected prompt to be accepted, got %v", err)
	}

	select {
	case err := <-errs:
		var generationErr *GenerationError
		if !errors.As(err, &generationErr) {
			t.Fatalf("expected a generation error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the generation error")
	}

	deadline := time.Now().Add(time.Second)
	for o.Phase() != PhaseIdle {
		if time.Now().After(deadline) {
			t.Fatalf("expected the orchestrator to return to idle, got %s", o.Phase())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(o.History()); got != 0 {
		t.Fatalf("expected a failed turn to stay out of history, got %d turns", got)
	}
}

func TestUtteranceLifecycleDrivesRecognition(t *testing.T) {
	stt := newFakeSpeechToText()
	client := &scriptedStreamLLM{script: []streamAttempt{
		{tokens: []string{"Sure."}},
	}}

	o := NewOrchestrator(
		WithStreamingLLM(client),
		WithTextToSpeechClient(&fakeTextToSpeech{}),
		WithAudioOutput(&recordingAudioOutput{}),
		WithSpeechToTextClient(stt),
	)
	defer o.Close()

	interims := make(chan string, 8)
	finals := make(chan string, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx,
		WithInterimTranscriptionCallback(func(transcript string) { interims <- transcript }),
		WithTranscriptionCallback(func(transcript string) { finals <- transcript }),
	); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	o.UtteranceStarted(1, prerollFrames(4))
	if got := o.Phase(); got != PhaseListening {
		t.Fatalf("expected listening phase, got %s", got)
	}

	awaitPushedFrames(t, stt, 1, 3)

	stt.emitInterim(1, "what's the")
	select {
	case transcript := <-interims:
		if transcript != "what's the" {
			t.Fatalf("expected interim transcript, got %q", transcript)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the interim transcript")
	}

	o.UtteranceEnded(1)
	stt.emitFinal(1, "what's the weather")

	select {
	case transcript := <-finals:
		if transcript != "what's the weather" {
			t.Fatalf("expected final transcript, got %q", transcript)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the final transcript")
	}

	history := awaitHistory(t, o, 1)
	if history[0].User != "what's the weather" {
		t.Fatalf("expected the transcript as the turn prompt, got %q", history[0].User)
	}
}

func TestEmptyFinalTranscriptReturnsToIdle(t *testing.T) {
	stt := newFakeSpeechToText()

	o := NewOrchestrator(
		WithStreamingLLM(&scriptedStreamLLM{script: []streamAttempt{{}}}),
		WithTextToSpeechClient(&fakeTextToSpeech{}),
		WithAudioOutput(&recordingAudioOutput{}),
		WithSpeechToTextClient(stt),
	)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	o.UtteranceStarted(1, prerollFrames(2))
	o.UtteranceEnded(1)
	stt.emitFinal(1, "   ")

	deadline := time.Now().Add(time.Second)
	for o.Phase() != PhaseIdle {
		if time.Now().After(deadline) {
			t.Fatalf("expected idle after an empty transcript, got %s", o.Phase())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(o.History()); got != 0 {
		t.Fatalf("expected no history for an empty transcript, got %d turns", got)
	}
}

func TestStaleFinalTranscriptIsDiscarded(t *testing.T) {
	stt := newFakeSpeechToText()

	o := NewOrchestrator(
		WithStreamingLLM(&scriptedStreamLLM{script: []streamAttempt{{tokens: []string{"never"}}}}),
		WithTextToSpeechClient(&fakeTextToSpeech{}),
		WithAudioOutput(&recordingAudioOutput{}),
		WithSpeechToTextClient(stt),
	)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	o.UtteranceStarted(1, prerollFrames(2))
	o.UtteranceEnded(1)
	o.UtteranceStarted(2, prerollFrames(2))

	// The final transcript for the superseded utterance must not start a
	// turn.
	stt.emitFinal(1, "stale result")

	time.Sleep(50 * time.Millisecond)
	if got := len(o.History()); got != 0 {
		t.Fatalf("expected the stale transcript to be discarded, got %d turns", got)
	}
	if got := o.Phase(); got != PhaseListening {
		t.Fatalf("expected to keep listening to the newer utterance, got %s", got)
	}
}

func TestUtteranceStartDoesNotBlockOnRecognitionIO(t *testing.T) {
	stt := newFakeSpeechToText()
	gate := make(chan struct{})
	stt.beginGate = gate

	o := NewOrchestrator(
		WithStreamingLLM(&scriptedStreamLLM{script: []streamAttempt{{tokens: []string{"ok"}}}}),
		WithTextToSpeechClient(&fakeTextToSpeech{}),
		WithAudioOutput(&recordingAudioOutput{}),
		WithSpeechToTextClient(stt),
	)
	defer o.Close()
	gateOpen := false
	defer func() {
		if !gateOpen {
			close(gate)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	returned := make(chan struct{})
	go func() {
		o.UtteranceStarted(1, prerollFrames(3))
		close(returned)
	}()

	// The capture path must hand the session open off and move on, even
	// while the dial is still in flight.
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the utterance start to return during a slow session open")
	}
	if got := o.Phase(); got != PhaseListening {
		t.Fatalf("expected listening phase while the session opens, got %s", got)
	}

	close(gate)
	gateOpen = true

	begun := awaitBegunUtterances(t, stt, 1)
	if begun[0] != 1 {
		t.Fatalf("expected recognition to begin for utterance 1, got %v", begun)
	}
	awaitPushedFrames(t, stt, 1, 2)
}

func TestSpeechDuringThinkingCancelsTurn(t *testing.T) {
	stt := newFakeSpeechToText()

	o := NewOrchestrator(
		WithStreamingLLM(repeatingStreamLLM{chunk: "slow answer. ", interval: 250 * time.Millisecond}),
		WithTextToSpeechClient(&fakeTextToSpeech{}),
		WithAudioOutput(&recordingAudioOutput{}),
		WithSpeechToTextClient(stt),
	)
	defer o.Close()

	cancellations := make(chan struct{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx,
		WithCancellationCallback(func() { cancellations <- struct{}{} }),
	); err != nil {
		t.Fatalf("expected orchestration to start, got %v", err)
	}

	if err := o.SendPrompt("take your time"); err != nil {
		t.Fatalf("expected prompt to be accepted, got %v", err)
	}
	if got := o.Phase(); got != PhaseThinking {
		t.Fatalf("expected thinking phase before the first token, got %s", got)
	}

	// Speech onset while the reply is still being generated supersedes the
	// turn; waiting for playback would let two turns run at once.
	o.UtteranceStarted(1, prerollFrames(2))

	select {
	case <-cancellations:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the cancellation callback")
	}
	if got := o.Phase(); got != PhaseListening {
		t.Fatalf("expected listening phase after the interruption, got %s", got)
	}
}
