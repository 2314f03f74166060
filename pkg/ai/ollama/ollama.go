// Package ollama implements ai.ReasoningClient on top of a local or remote
// Ollama instance.
package ollama

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/ai"
)

// OllamaClient talks to an Ollama server. A single client is safe for
// concurrent use; reqLock bounds the number of in-flight requests since
// Ollama serializes generations on limited hardware anyway.
type OllamaClient struct {
	chatModel      string
	embeddingModel string
	timeout        time.Duration

	reqLock     *semaphore.Weighted
	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	api *api.Client
}

type NewOllamaClientParams struct {
	BaseURL        string
	APIKey         string // optional bearer token, e.g. behind a reverse proxy
	ChatModel      string
	EmbeddingModel string

	// MaxConcurrentRequests bounds in-flight API calls. Defaults to 1.
	MaxConcurrentRequests int64

	// Timeout is the default per-request deadline, overridable per call via
	// ai.WithTimeout. Defaults to AI_TIMEOUT_SEC or 60s.
	Timeout time.Duration
}

// headerTransport injects static headers into every request, used for bearer
// auth against proxied Ollama deployments.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}
	return t.base.RoundTrip(req)
}

func NewOllamaClient(params NewOllamaClientParams) (*OllamaClient, error) {
	baseURL, err := url.Parse(params.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL %q: %w", params.BaseURL, err)
	}

	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 1
	}
	if params.Timeout <= 0 {
		params.Timeout = time.Duration(util.GetEnvNumeric[int]("AI_TIMEOUT_SEC", 60)) * time.Second
	}

	httpClient := http.DefaultClient
	if params.APIKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.APIKey,
				},
				base: http.DefaultTransport,
			},
		}
	}

	return &OllamaClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		timeout:        params.Timeout,
		reqLock:        semaphore.NewWeighted(params.MaxConcurrentRequests),
		api:            api.NewClient(baseURL, httpClient),
	}, nil
}

// GetMetrics returns the metrics accumulated since the last reset.
func (c *OllamaClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *OllamaClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

func (c *OllamaClient) modifyMetrics(fn func(*ai.ModelMetrics)) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	fn(&c.metrics)
}

func (c *OllamaClient) requestTimeout(opts *ai.GenerateOptions) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	return c.timeout
}

// wrapError classifies a client error into an ai.ExternalServiceError so that
// callers can decide on retries. Transport-level failures carry status 0.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return ai.WrapServiceError("ollama", statusErr.StatusCode, err)
	}
	return ai.WrapServiceError("ollama", 0, err)
}
