package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rtvoicechat/core/core/events"
	"github.com/rtvoicechat/core/core/llms"
)

type streamAttempt struct {
	tokens []string
	err    error
}

type scriptedStreamLLM struct {
	mu       sync.Mutex
	script   []streamAttempt
	attempts int
}

func (s *scriptedStreamLLM) Stream(_ context.Context, turnID string, _ []llms.Turn, _ string) llms.TokenStream {
	s.mu.Lock()
	attempt := s.script[len(s.script)-1]
	if s.attempts < len(s.script) {
		attempt = s.script[s.attempts]
	}
	s.attempts++
	s.mu.Unlock()

	return func(yield func(llms.Token, error) bool) {
		for _, text := range attempt.tokens {
			if !yield(llms.Token{TurnID: turnID, Text: text}, nil) {
				return
			}
		}
		if attempt.err != nil {
			yield(llms.Token{}, attempt.err)
		}
	}
}

func (s *scriptedStreamLLM) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func TestGenerateRetriesWhenStreamFailsBeforeFirstToken(t *testing.T) {
	client := &scriptedStreamLLM{script: []streamAttempt{
		{err: errors.New("connection reset")},
		{tokens: []string{"recovered"}},
	}}
	l := &llm{client: client, emitEvent: noopEventEmitter, retryBackoff: time.Millisecond}

	turn := newActiveTurn(context.Background(), 1, "hello")
	response, err := l.generate(context.Background(), turn, nil)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if response != "recovered" {
		t.Fatalf("expected recovered response, got %q", response)
	}
	if got := client.attemptCount(); got != 2 {
		t.Fatalf("expected 2 stream attempts, got %d", got)
	}
}

func TestGenerateDoesNotRetryAfterTokensWereDelivered(t *testing.T) {
	client := &scriptedStreamLLM{script: []streamAttempt{
		{tokens: []string{"partial "}, err: errors.New("stream broke")},
		{tokens: []string{"should not run"}},
	}}
	l := &llm{client: client, emitEvent: noopEventEmitter, retryBackoff: time.Millisecond}

	turn := newActiveTurn(context.Background(), 1, "hello")
	response, err := l.generate(context.Background(), turn, nil)

	var generationErr *GenerationError
	if !errors.As(err, &generationErr) {
		t.Fatalf("expected a generation error, got %v", err)
	}
	if response != "partial " {
		t.Fatalf("expected the partial response to be kept, got %q", response)
	}
	if got := client.attemptCount(); got != 1 {
		t.Fatalf("expected a single stream attempt, got %d", got)
	}
}

func TestGenerateFailsAfterRetryFails(t *testing.T) {
	client := &scriptedStreamLLM{script: []streamAttempt{
		{err: errors.New("first failure")},
		{err: errors.New("second failure")},
	}}
	l := &llm{client: client, emitEvent: noopEventEmitter, retryBackoff: time.Millisecond}

	turn := newActiveTurn(context.Background(), 1, "hello")
	_, err := l.generate(context.Background(), turn, nil)

	var generationErr *GenerationError
	if !errors.As(err, &generationErr) {
		t.Fatalf("expected a generation error, got %v", err)
	}
	if got := client.attemptCount(); got != 2 {
		t.Fatalf("expected exactly one retry, got %d attempts", got)
	}
}

func TestGenerateStopsWhenTurnIsCancelled(t *testing.T) {
	client := &scriptedStreamLLM{script: []streamAttempt{
		{tokens: []string{"one", "two", "three", "four"}},
	}}

	turn := newActiveTurn(context.Background(), 1, "hello")
	l := &llm{client: client, retryBackoff: time.Millisecond}
	l.emitEvent = func(events.Event) { turn.Cancel() }

	response, err := l.generate(context.Background(), turn, nil)
	if err != nil {
		t.Fatalf("expected cancellation to end generation cleanly, got %v", err)
	}
	if response != "one" {
		t.Fatalf("expected generation to stop after the first token, got %q", response)
	}
}
