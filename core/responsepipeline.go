package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rtvoicechat/core/core/events"
	"github.com/rtvoicechat/core/core/llms"
	"github.com/rtvoicechat/core/core/texttospeech"
)

// responsePipeline runs one assistant turn: generation streams tokens into
// the text buffer, synthesis drains text into speech, and playback drains
// speech into the sink. The three workers run concurrently so audio starts
// before generation finishes, and all of them stop early when the turn is
// cancelled.
type responsePipeline struct {
	turn    *activeTurn
	history []llms.Turn

	llm       *llm
	tts       *textToSpeech
	sink      *audioOutput
	emitEvent eventEmitter

	// onFirstAudio fires just before the first chunk reaches the sink, when
	// the turn audibly starts.
	onFirstAudio func()
}

func (p *responsePipeline) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "respond to prompt",
		trace.WithAttributes(attribute.String("turn.id", p.turn.ID)),
	)
	defer span.End()

	generator, err := p.tts.newSession(p.turn.ctx, p.turn, p.sink.encodingInfo())
	if err != nil {
		// The turn still generates text for the history; it just plays
		// nothing.
		p.turn.setSynthesisError(&SynthesisError{TurnID: p.turn.ID, Err: err})
		p.turn.audioBuffer.AllAudioLoaded()
		generator = nil
	}

	var wg sync.WaitGroup
	workerErrs := make(chan error, 3)
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runPanicSafe(name, fn); err != nil {
				workerErrs <- err
			}
		}()
	}

	spawn("generation", func() error { return p.generateResponse(ctx) })
	spawn("synthesis", func() error { return p.synthesizeSpeech(generator) })
	spawn("playback", func() error { return p.playSpeech() })

	wg.Wait()
	close(workerErrs)

	var errs error
	for err := range workerErrs {
		errs = errors.Join(errs, err)
	}
	if synthErr := p.turn.synthesisError(); synthErr != nil {
		errs = errors.Join(errs, synthErr)
	}
	if errs != nil {
		span.RecordError(errs)
		span.SetStatus(codes.Error, errs.Error())
	}
	return errs
}

func (p *responsePipeline) generateResponse(ctx context.Context) error {
	response, err := p.llm.generate(ctx, p.turn, p.history)
	p.turn.setResponse(response)
	p.turn.textBuffer.TextComplete()

	if err != nil {
		// A turn whose generation failed terminally has nothing worth
		// finishing; stop whatever partial speech is in flight.
		p.turn.Cancel()
		return err
	}
	if !p.turn.IsCancelled() {
		p.emitEvent(events.NewAssistantResponseFinal(p.turn.ID, response))
	}
	return nil
}

// synthesizeSpeech forwards response text to the speech generator, dropping
// a mark at every sentence boundary so playback progress maps back to text.
func (p *responsePipeline) synthesizeSpeech(generator texttospeech.SpeechGenerator) error {
	if generator == nil {
		return nil
	}

	unmarked := false
	for chunk := range p.turn.textBuffer.Chunks {
		if p.turn.IsCancelled() {
			break
		}

		if err := generator.SendText(chunk); err != nil {
			logger.Warn("sending text to speech generator failed",
				"turn", p.turn.ID, "error", err)
			break
		}
		unmarked = true

		if strings.ContainsAny(chunk, ".?!") {
			if err := generator.Mark(); err != nil {
				break
			}
			unmarked = false
		}
	}

	if p.turn.IsCancelled() {
		return generator.Cancel()
	}

	// Trailing text without a sentence terminator still needs a mark, or the
	// spoken transcript would come up short.
	if unmarked {
		_ = generator.Mark()
	}
	return generator.EndOfText()
}

func (p *responsePipeline) playSpeech() error {
	startedPlaying := false
	for item := range p.turn.audioBuffer.Audio {
		if p.turn.IsCancelled() {
			break
		}

		switch item.Type {
		case "audio":
			if !startedPlaying {
				startedPlaying = true
				if err := p.sink.ensurePlaying(p.turn.ctx); err != nil {
					return err
				}
				if p.onFirstAudio != nil {
					p.onFirstAudio()
				}
			}
			p.emitEvent(events.NewAssistantSpeechFrame(p.turn.ID, item.Audio))
			if err := p.sink.sendAudio(item.Audio); err != nil {
				return err
			}
		case "mark":
			markID := item.Mark
			if err := p.sink.mark(markID, func(string) {
				p.turn.audioBuffer.ConfirmMark(markID)
			}); err != nil {
				return err
			}
		}
	}

	if p.turn.IsCancelled() {
		return nil
	}

	if startedPlaying {
		if err := p.sink.drain(); err != nil {
			logger.Warn("draining playback failed", "turn", p.turn.ID, "error", err)
		}
	}
	p.emitEvent(events.NewAssistantPlaybackEnded(p.turn.ID, p.turn.responseSnapshot()))
	return nil
}
