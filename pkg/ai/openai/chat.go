package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/trc-ai/riskgraph/pkg/ai"
	"github.com/trc-ai/riskgraph/pkg/logger"
)

func (c *OpenAIClient) buildParams(
	messages []ai.ChatMessage,
	opts *ai.GenerateOptions,
) (openai.ChatCompletionNewParams, error) {
	model := opts.Model
	if model == "" {
		model = c.chatModel
	}

	chatMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+len(opts.SystemPrompts))
	for _, prompt := range opts.SystemPrompts {
		chatMessages = append(chatMessages, openai.SystemMessage(prompt))
	}
	for _, message := range messages {
		switch message.Role {
		case "user":
			chatMessages = append(chatMessages, openai.UserMessage(message.Message))
		case "assistant":
			chatMessages = append(chatMessages, openai.AssistantMessage(message.Message))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unknown message role: %s", message.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: chatMessages,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	return params, nil
}

func (c *OpenAIClient) complete(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	timeout time.Duration,
) (string, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapError(err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned for model %s", params.Model)
	}

	c.modifyMetrics(func(m *ai.ModelMetrics) {
		m.InputTokens += int(completion.Usage.PromptTokens)
		m.OutputTokens += int(completion.Usage.CompletionTokens)
		m.TotalTokens += int(completion.Usage.TotalTokens)
		m.DurationMs += time.Since(start).Milliseconds()
	})

	return completion.Choices[0].Message.Content, nil
}

// GenerateChat sends a chat transcript to the model and returns the assistant
// reply as plain text.
func (c *OpenAIClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := &ai.GenerateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	params, err := c.buildParams(messages, options)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, params, c.requestTimeout(options))
}

// GenerateChatWithFormat sends a chat transcript and constrains the reply to
// the JSON schema derived from out, then decodes the reply into out. Model
// output that is not valid JSON is repaired before decoding.
func (c *OpenAIClient) GenerateChatWithFormat(
	ctx context.Context,
	name string,
	description string,
	messages []ai.ChatMessage,
	out any,
	opts ...ai.GenerateOption,
) error {
	options := &ai.GenerateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	params, err := c.buildParams(messages, options)
	if err != nil {
		return err
	}

	schema := ai.GenerateSchema(out)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(description),
				Schema:      schema,
				Strict:      openai.Bool(true),
			},
		},
	}

	content, err := c.complete(ctx, params, c.requestTimeout(options))
	if err != nil {
		return err
	}

	if err := ai.UnmarshalFlexible(content, out); err != nil {
		logger.Warn("failed to parse structured model output", "format", name, "error", err)
		return fmt.Errorf("failed to parse response for format %s: %w", name, err)
	}
	return nil
}
