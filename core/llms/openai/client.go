// Package openai streams chat completions over the OpenAI API.
package openai

import (
	"fmt"
	"os"

	"github.com/rtvoicechat/core/core/llms"
)

const defaultModel = "gpt-4o-mini"

type Client struct {
	apiKey  string
	options llms.GenerationOptions
}

func NewClient(opts ...llms.GenerationOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("OPENAI_API_KEY")
	if !ok {
		return nil, fmt.Errorf("openai api key not found")
	}

	options := llms.GenerationOptions{Model: defaultModel}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		apiKey:  apiKey,
		options: options,
	}, nil
}
