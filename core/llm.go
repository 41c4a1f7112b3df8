package orchestration

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rtvoicechat/core/core/events"
	"github.com/rtvoicechat/core/core/llms"
)

const defaultGenerationRetryBackoff = 500 * time.Millisecond

// llm fronts the streaming generation client. A stream that fails before
// producing any token is retried once after a short backoff; a failure after
// tokens have already reached synthesis fails the turn instead, since a
// restarted stream would not continue where the first one stopped.
type llm struct {
	client       LLMWithStream
	emitEvent    eventEmitter
	retryBackoff time.Duration
}

func (l *llm) set(client LLMWithStream) {
	l.client = client
}

func (l *llm) isSet() bool {
	return l.client != nil
}

// generate streams the response for one turn into the turn's text buffer.
// It returns the full response text, or whatever had accumulated when the
// turn was cancelled.
func (l *llm) generate(ctx context.Context, turn *activeTurn, history []llms.Turn) (string, error) {
	ctx, span := tracer.Start(ctx, "generate response",
		trace.WithAttributes(
			attribute.String("turn.id", turn.ID),
			attribute.Int("history.turns", len(history)),
		),
	)
	defer span.End()

	if l.client == nil {
		err := fmt.Errorf("no streaming llm client set")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &GenerationError{TurnID: turn.ID, Err: err}
	}

	response := ""
	for attempt := 0; ; attempt++ {
		received, err := l.consumeStream(ctx, turn, history, &response)

		if err == nil || turn.IsCancelled() {
			span.SetAttributes(attribute.Int("response.length", len(response)))
			return response, nil
		}

		if received || attempt > 0 {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return response, &GenerationError{TurnID: turn.ID, Err: err}
		}

		span.AddEvent("retrying generation")
		logger.WarnContext(ctx, "generation failed before first token, retrying",
			"turn", turn.ID, "error", err)
		select {
		case <-time.After(l.backoff()):
		case <-ctx.Done():
			return response, &GenerationError{TurnID: turn.ID, Err: ctx.Err()}
		}
	}
}

// consumeStream drains one stream attempt, reporting whether any token was
// received before the stream ended or failed.
func (l *llm) consumeStream(ctx context.Context, turn *activeTurn, history []llms.Turn, response *string) (received bool, err error) {
	for token, streamErr := range l.client.Stream(ctx, turn.ID, history, turn.Prompt) {
		if streamErr != nil {
			return received, streamErr
		}
		if turn.IsCancelled() {
			return received, nil
		}

		received = true
		*response += token.Text
		turn.textBuffer.AddChunk(token.Text)
		l.emitEvent(events.NewAssistantResponseSegment(turn.ID, token.Text))
	}
	return received, nil
}

func (l *llm) backoff() time.Duration {
	if l.retryBackoff > 0 {
		return l.retryBackoff
	}
	return defaultGenerationRetryBackoff
}
