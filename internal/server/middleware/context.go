package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/trc-ai/riskgraph/pkg/ai"
	"github.com/trc-ai/riskgraph/pkg/docs"
	"github.com/trc-ai/riskgraph/pkg/graph"
	"github.com/trc-ai/riskgraph/pkg/retrieve"
	"github.com/trc-ai/riskgraph/pkg/search"
	"github.com/trc-ai/riskgraph/pkg/store"
)

type AppUser struct {
	UserID int64
	Role   string
}

// App carries the long-lived engine components. Request-scoped helpers
// (retriever, orchestrator, snippet searcher) are built per request from
// these in the route handlers.
type App struct {
	Store    store.GraphStorage
	Registry *docs.Registry
	Builder  *graph.Builder
	Router   *retrieve.Router
	AiClient ai.ReasoningClient
	External search.DocumentSearcher

	Queue *amqp091.Channel
	Key   *keyfunc.Keyfunc
	S3    *s3.Client

	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
