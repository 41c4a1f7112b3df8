package llms

import "github.com/rtvoicechat/core/internal/utils"

type GenerationOptions struct {
	Model        string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int

	// MaxHistoryTurns bounds how many of the most recent turns are sent with
	// each request. The system prompt is always pinned and never trimmed.
	// Zero means unbounded.
	MaxHistoryTurns int
}

type GenerationOption func(*GenerationOptions)

func WithModel(model string) GenerationOption {
	return func(o *GenerationOptions) {
		o.Model = model
	}
}

func WithSystemPrompt(systemPrompt string) GenerationOption {
	return func(o *GenerationOptions) {
		o.SystemPrompt = systemPrompt
	}
}

func WithTemperature(temperature float64) GenerationOption {
	return func(o *GenerationOptions) {
		o.Temperature = utils.Ptr(temperature)
	}
}

func WithMaxTokens(maxTokens int) GenerationOption {
	return func(o *GenerationOptions) {
		o.MaxTokens = utils.Ptr(maxTokens)
	}
}

func WithMaxHistoryTurns(turns int) GenerationOption {
	return func(o *GenerationOptions) {
		o.MaxHistoryTurns = turns
	}
}
