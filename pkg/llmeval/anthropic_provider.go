package llmeval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"github.com/calliq/qaengine/pkg/telemetry"
)

const anthropicProviderLabel = "anthropic"

// AnthropicProvider adapts the Anthropic Messages API to the Provider
// interface, pinning the deterministic decoding parameters
// requires (temperature 0, fixed top-p) and extracting the single JSON
// text block the system prompt demands. A circuit breaker fails fast once
// the API is consistently unreachable, instead of letting every stage
// evaluation pay the full request timeout before EvaluateStage's
// deterministic fallback takes over.
type AnthropicProvider struct {
	client anthropic.Client
	model anthropic.Model
	maxTokens int64
	breaker *gobreaker.CircuitBreaker
}

// NewAnthropicProvider builds a provider bound to the given model. apiKey
// may be empty to let the SDK fall back to its ANTHROPIC_API_KEY
// environment lookup.
func NewAnthropicProvider(apiKey string, model anthropic.Model) *AnthropicProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model: model,
		maxTokens: 2048,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name: "anthropic-provider",
				MaxRequests: 3,
				Interval: time.Minute,
				Timeout: 30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					slog.Warn("anthropic provider circuit breaker state change",
						"breaker", name, "from", from.String(), "to", to.String())
				},
		}),
	}
}

// Generate sends the rendered prompt pair and returns the model's raw
// text response for parseAndValidate to decode.
func (p *AnthropicProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timer:= telemetry.NewTimer()
	result, err:= p.breaker.Execute(func() (any, error) {
			return p.generate(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		telemetry.RecordLLMError(anthropicProviderLabel, errorType(err))
		return "", err
	}
	timer.RecordLLMCall(anthropicProviderLabel)
	return result.(string), nil
}

func (p *AnthropicProvider) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	message, err:= p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model: p.model,
			MaxTokens: p.maxTokens,
			Temperature: anthropic.Float(0),
			TopP: anthropic.Float(1),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	for _, block:= range message.Content {
		if text:= block.Text; text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("anthropic response contained no text block")
}

func errorType(err error) string {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return "circuit_open"
	}
	return "request_failed"
}
