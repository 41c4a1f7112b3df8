package orchestration

import (
	"github.com/rtvoicechat/core/core/events"
)

type eventEmitter func(event events.Event)

func noopEventEmitter(events.Event) {}

// newCallbackEventEmitter fans typed events out to the callbacks registered
// through OrchestrateOptions. Callbacks run inline on the emitting goroutine.
func newCallbackEventEmitter(options OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		switch event := event.(type) {
		case events.UserAudioFrame:
			if options.onInputAudio != nil {
				options.onInputAudio(event.Audio)
			}
		case events.UserUtteranceStarted:
			if options.onUtteranceStarted != nil {
				options.onUtteranceStarted(event.Utterance)
			}
		case events.UserUtteranceEnded:
			if options.onUtteranceEnded != nil {
				options.onUtteranceEnded(event.Utterance)
			}
		case events.UserTranscriptInterim:
			if options.onInterimTranscription != nil {
				options.onInterimTranscription(event.Transcript)
			}
		case events.UserTranscriptFinal:
			if options.onTranscription != nil {
				options.onTranscription(event.Transcript)
			}
		case events.AssistantResponseSegment:
			if options.onResponse != nil {
				options.onResponse(event.Segment)
			}
		case events.AssistantResponseFinal:
			if options.onResponseEnd != nil {
				options.onResponseEnd()
			}
		case events.AssistantSpeechFrame:
			if options.onAudio != nil {
				options.onAudio(event.Audio)
			}
		case events.AssistantPlaybackEnded:
			if options.onAudioEnded != nil {
				options.onAudioEnded(event.Transcript)
			}
		case events.TurnPhaseChanged:
			// Phase callbacks are dispatched from setPhase with the typed
			// value; nothing to translate here.
		case events.TurnCancelled:
			if options.onCancellation != nil {
				options.onCancellation()
			}
		case events.PipelineError:
			if options.onError != nil {
				options.onError(event.Err)
			}
		}
	}
}
