package openai

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/rtvoicechat/core/core/llms/openai"

var tracer = otel.Tracer(scopeName)
