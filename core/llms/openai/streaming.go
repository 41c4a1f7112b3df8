package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rtvoicechat/core/core/llms"
)

const (
	url = "https://api.openai.com/v1/chat/completions"

	chunkPrefix = "data:"
	endMessage  = "[DONE]"
)

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream prepares a lazy token stream for one turn. The request is not sent
// until the stream is iterated; abandoning iteration between tokens tears
// the request down.
func (c *Client) Stream(ctx context.Context, turnID string, history []llms.Turn, prompt string) llms.TokenStream {
	messages := toMessages(c.options.SystemPrompt, history, prompt, c.options.MaxHistoryTurns)

	return func(yield func(llms.Token, error) bool) {
		ctx, span := tracer.Start(ctx, "stream chat completion")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.model", c.options.Model),
			attribute.String("request.turn_id", turnID),
		)

		reqBody := requestBody{
			Model:       c.options.Model,
			Messages:    messages,
			Stream:      true,
			Temperature: c.options.Temperature,
			MaxTokens:   c.options.MaxTokens,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(llms.Token{TurnID: turnID}, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(llms.Token{TurnID: turnID}, err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(llms.Token{TurnID: turnID}, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield(llms.Token{TurnID: turnID}, err)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

			if len(chunk) == 0 {
				continue
			}
			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(llms.Token{TurnID: turnID}, err) {
					return
				}
				continue
			}

			if len(responseBody.Choices) == 0 {
				continue
			}
			if content := responseBody.Choices[0].Delta.Content; content != "" {
				if !yield(llms.Token{TurnID: turnID, Text: content}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(llms.Token{TurnID: turnID}, fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}
