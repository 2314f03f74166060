// Package openai implements ai.ReasoningClient on top of OpenAI-compatible
// chat and embedding endpoints.
package openai

import (
	"errors"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/ai"
)

// OpenAIClient talks to an OpenAI-compatible API. A single client is safe for
// concurrent use; reqLock bounds the number of in-flight requests.
type OpenAIClient struct {
	chatModel      string
	embeddingModel string
	timeout        time.Duration

	reqLock     *semaphore.Weighted
	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	api openai.Client
}

type NewOpenAIClientParams struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string

	// MaxConcurrentRequests bounds in-flight API calls. Defaults to 5.
	MaxConcurrentRequests int64

	// Timeout is the default per-request deadline, overridable per call via
	// ai.WithTimeout. Defaults to AI_TIMEOUT_SEC or 60s.
	Timeout time.Duration
}

func NewOpenAIClient(params NewOpenAIClientParams) *OpenAIClient {
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 5
	}
	if params.Timeout <= 0 {
		params.Timeout = time.Duration(util.GetEnvNumeric[int]("AI_TIMEOUT_SEC", 60)) * time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(params.APIKey)}
	if params.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(params.BaseURL))
	}

	return &OpenAIClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		timeout:        params.Timeout,
		reqLock:        semaphore.NewWeighted(params.MaxConcurrentRequests),
		api:            openai.NewClient(opts...),
	}
}

// GetMetrics returns the metrics accumulated since the last reset.
func (c *OpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *OpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

func (c *OpenAIClient) modifyMetrics(fn func(*ai.ModelMetrics)) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	fn(&c.metrics)
}

func (c *OpenAIClient) requestTimeout(opts *ai.GenerateOptions) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	return c.timeout
}

// wrapError classifies an SDK error into an ai.ExternalServiceError so that
// callers can decide on retries. Transport-level failures carry status 0.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.WrapServiceError("openai", apiErr.StatusCode, err)
	}
	return ai.WrapServiceError("openai", 0, err)
}
