package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/ai"
)

// GenerateEmbedding embeds the input text. Vectors are padded or truncated to
// AI_EMBED_DIM so that every row in the vector index has the same width
// regardless of the model in use.
func (c *OpenAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{string(input)},
		},
	})
	if err != nil {
		return nil, wrapError(err)
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned for model %s", c.embeddingModel)
	}

	c.modifyMetrics(func(m *ai.ModelMetrics) {
		m.InputTokens += int(res.Usage.PromptTokens)
		m.TotalTokens += int(res.Usage.TotalTokens)
		m.DurationMs += time.Since(start).Milliseconds()
	})

	dim := util.GetEnvNumeric[int]("AI_EMBED_DIM", 4096)
	embedding := make([]float32, dim)
	for i, v := range res.Data[0].Embedding {
		if i >= dim {
			break
		}
		embedding[i] = float32(v)
	}
	return embedding, nil
}
