package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/trc-ai/riskgraph/internal/queue"
	mid "github.com/trc-ai/riskgraph/internal/server/middleware"
	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/ai"
	oai "github.com/trc-ai/riskgraph/pkg/ai/ollama"
	gai "github.com/trc-ai/riskgraph/pkg/ai/openai"
	"github.com/trc-ai/riskgraph/pkg/docs"
	"github.com/trc-ai/riskgraph/pkg/graph"
	"github.com/trc-ai/riskgraph/pkg/logger"
	"github.com/trc-ai/riskgraph/pkg/retrieve"
	"github.com/trc-ai/riskgraph/pkg/search"
	searchpgx "github.com/trc-ai/riskgraph/pkg/search/pgx"
	"github.com/trc-ai/riskgraph/pkg/store/memory"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewAIClient builds the reasoning-model client selected by AI_ADAPTER
// ("ollama" or OpenAI-compatible by default).
func NewAIClient() ai.ReasoningClient {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			BaseURL:        util.GetEnv("AI_CHAT_URL"),
			APIKey:         util.GetEnv("AI_CHAT_KEY"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 1)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			BaseURL:        util.GetEnv("AI_CHAT_URL"),
			APIKey:         util.GetEnv("AI_CHAT_KEY"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 5)),
		})
	}
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	jwksUrl := util.GetEnv("AUTH_URL") + "/jwks"
	k, err := keyfunc.NewDefault([]string{jwksUrl})
	if err != nil {
		logger.Fatal("Failed to load jwks keys", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aiClient := NewAIClient()

	// External vector index is optional: without DATABASE_URL the engine
	// falls back to the in-memory snippet searcher alone.
	var external search.DocumentSearcher
	if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
		poolCfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			logger.Fatal("Invalid DATABASE_URL", "err", err)
		}
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
		conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer conn.Close()

		index := searchpgx.NewVectorIndex(conn, aiClient)
		if err := index.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare vector index schema", "err", err)
		}
		external = index
	}

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}

	queues := []string{queue.BuildQueue, queue.IndexQueue, queue.DeleteQueue}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := docs.NewS3Client(ctx)

	masterAPIKey := util.GetEnv("MASTER_API_KEY")
	masterUserID, _ := strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 64)
	masterUserRole := util.GetEnv("MASTER_USER_ROLE")

	app := &mid.App{
		Store:    memory.NewGraphStore(),
		Registry: docs.NewRegistry(),
		Builder:  graph.NewBuilder(0),
		Router:   retrieve.NewRouter(),
		AiClient: aiClient,
		External: external,

		Queue: ch,
		Key:   &k,
		S3:    s3,

		MasterAPIKey:   masterAPIKey,
		MasterUserID:   masterUserID,
		MasterUserRole: masterUserRole,
	}

	// Build jobs are consumed in-process: the graph they produce lives in
	// this server's memory.
	go func() {
		err := queue.ConsumeLoop(ctx, que, []string{queue.BuildQueue},
			func(ctx context.Context, _ string, body []byte) error {
				return queue.ProcessBuildMessage(ctx, app.S3, app.Registry, app.Builder, app.Store, body)
			})
		if err != nil {
			logger.Error("Build consumer stopped", "err", err)
		}
	}()

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("100M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
