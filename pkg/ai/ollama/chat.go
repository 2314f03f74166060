package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"

	"github.com/trc-ai/riskgraph/pkg/ai"
	"github.com/trc-ai/riskgraph/pkg/logger"
)

const (
	defaultContextTokens = 4096
	maxContextTokens     = 32768
)

func buildMessages(messages []ai.ChatMessage, opts *ai.GenerateOptions) ([]api.Message, error) {
	chatMessages := make([]api.Message, 0, len(messages)+len(opts.SystemPrompts))
	for _, prompt := range opts.SystemPrompts {
		chatMessages = append(chatMessages, api.Message{Role: "system", Content: prompt})
	}
	for _, message := range messages {
		switch message.Role {
		case "user", "assistant":
			chatMessages = append(chatMessages, api.Message{Role: message.Role, Content: message.Message})
		default:
			return nil, fmt.Errorf("unknown message role: %s", message.Role)
		}
	}
	return chatMessages, nil
}

// contextSize estimates the prompt length and grows num_ctx beyond Ollama's
// default when the transcript would otherwise be silently truncated.
func contextSize(messages []api.Message) int {
	encoding, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		logger.Warn("failed to load token encoding, keeping default context size", "error", err)
		return defaultContextTokens
	}

	tokens := 0
	for _, message := range messages {
		tokens += len(encoding.Encode(message.Content, nil, nil))
	}

	// Leave headroom for the model's reply.
	needed := tokens + tokens/4 + 512
	if needed <= defaultContextTokens {
		return defaultContextTokens
	}
	if needed > maxContextTokens {
		return maxContextTokens
	}
	return needed
}

func (c *OllamaClient) chat(
	ctx context.Context,
	messages []api.Message,
	format json.RawMessage,
	opts *ai.GenerateOptions,
) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.chatModel
	}

	options := map[string]any{}
	if numCtx := contextSize(messages); numCtx > defaultContextTokens {
		options["num_ctx"] = numCtx
	}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Format:   format,
		Options:  options,
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout(opts))
	defer cancel()

	var content string
	var final api.ChatResponse
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return "", wrapError(err)
	}

	c.modifyMetrics(func(m *ai.ModelMetrics) {
		m.InputTokens += final.Metrics.PromptEvalCount
		m.OutputTokens += final.Metrics.EvalCount
		m.TotalTokens += final.Metrics.PromptEvalCount + final.Metrics.EvalCount
		m.DurationMs += final.Metrics.TotalDuration.Milliseconds()
	})

	return content, nil
}

// GenerateChat sends a chat transcript to the model and returns the assistant
// reply as plain text.
func (c *OllamaClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := &ai.GenerateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	chatMessages, err := buildMessages(messages, options)
	if err != nil {
		return "", err
	}
	return c.chat(ctx, chatMessages, nil, options)
}

// GenerateChatWithFormat sends a chat transcript and constrains the reply to
// the JSON schema derived from out, then decodes the reply into out. Model
// output that is not valid JSON is repaired before decoding.
func (c *OllamaClient) GenerateChatWithFormat(
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

	chatMessages, err := buildMessages(messages, options)
	if err != nil {
		return err
	}

	schema, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return fmt.Errorf("failed to marshal schema for format %s: %w", name, err)
	}

	content, err := c.chat(ctx, chatMessages, json.RawMessage(schema), options)
	if err != nil {
		return err
	}

	if err := ai.UnmarshalFlexible(content, out); err != nil {
		logger.Warn("failed to parse structured model output", "format", name, "error", err)
		return fmt.Errorf("failed to parse response for format %s: %w", name, err)
	}
	return nil
}
