package routes

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trc-ai/riskgraph/internal/server/middleware"
	"github.com/trc-ai/riskgraph/pkg/agent"
	"github.com/trc-ai/riskgraph/pkg/ai"
	"github.com/trc-ai/riskgraph/pkg/logger"
	"github.com/trc-ai/riskgraph/pkg/retrieve"
	"github.com/trc-ai/riskgraph/pkg/search"
)

// PostQueryHandler answers one question. The router decides between the
// direct retrieval path (context bundle + single completion) and the agent
// loop; the routing analysis is always part of the response.
func PostQueryHandler(c echo.Context) error {
	type postQueryRequest struct {
		Question string `json:"question" validate:"required"`
	}

	type postQueryResponse struct {
		Message   string                  `json:"message"`
		Answer    string                  `json:"answer,omitempty"`
		Route     *retrieve.RouteAnalysis `json:"route,omitempty"`
		Trace     []agent.TraceStep       `json:"trace,omitempty"`
		Truncated bool                    `json:"truncated,omitempty"`
		SessionID string                  `json:"session_id,omitempty"`
		Metrics   *ai.ModelMetrics        `json:"metrics,omitempty"`
	}

	data := new(postQueryRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, postQueryResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, postQueryResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	route := app.Router.Route(data.Question)
	resp := postQueryResponse{Route: &route}

	if route.UseAgent {
		searcher := search.NewCorpusSearcher(app.Registry.All())
		orchestrator := agent.NewOrchestrator(app.AiClient, app.Store, searcher, app.External)

		result, err := orchestrator.Run(ctx, data.Question)
		if err != nil {
			logger.Error("[Query] agent run failed", "err", err)
			return c.JSON(http.StatusInternalServerError, postQueryResponse{
				Message: "Internal server error",
				Route:   &route,
			})
		}
		resp.Answer = result.Answer
		resp.Trace = result.Trace
		resp.Truncated = result.Truncated
		resp.SessionID = result.SessionID
	} else {
		retriever := retrieve.NewRetriever(app.Store, app.Builder.Extractor())
		bundle := retriever.Retrieve(data.Question, route.Intent)
		system := fmt.Sprintf(ai.DirectAnswerPrompt, bundle.Render(0))

		answer, err := app.AiClient.GenerateChat(ctx,
			[]ai.ChatMessage{{Role: "user", Message: data.Question}},
			ai.WithSystemPrompts(system),
		)
		if err != nil {
			logger.Error("[Query] direct answer failed", "err", err)
			return c.JSON(http.StatusInternalServerError, postQueryResponse{
				Message: "Internal server error",
				Route:   &route,
			})
		}
		resp.Answer = answer
	}

	if provider, ok := app.AiClient.(ai.MetricsProvider); ok {
		metrics := provider.GetMetrics()
		resp.Metrics = &metrics
	}

	resp.Message = "OK"
	return c.JSON(http.StatusOK, resp)
}
