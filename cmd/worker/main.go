package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/trc-ai/riskgraph/internal/queue"
	"github.com/trc-ai/riskgraph/internal/server"
	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/ai"
	"github.com/trc-ai/riskgraph/pkg/docs"
	"github.com/trc-ai/riskgraph/pkg/logger"
	"github.com/trc-ai/riskgraph/pkg/logger/console"
	searchpgx "github.com/trc-ai/riskgraph/pkg/search/pgx"
)

// The worker owns the jobs that only touch shared infrastructure: embedding
// documents into the external vector index and deleting stored files. Graph
// builds run inside the API server, where the graph lives.
func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := docs.NewS3Client(ctx)

	aiClient := server.NewAIClient()

	// Init pgx pool with pgvector types
	poolCfg, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Invalid DATABASE_URL", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	index := searchpgx.NewVectorIndex(pgConn, aiClient)
	if err := index.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to prepare vector index schema", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{queue.IndexQueue, queue.DeleteQueue}
	if err := queue.SetupQueues(ch, []string{queue.BuildQueue, queue.IndexQueue, queue.DeleteQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	err = queue.ConsumeLoop(ctx, conn, queues, func(ctx context.Context, queueName string, body []byte) error {
		var processingErr error
		switch queueName {
		case queue.IndexQueue:
			processingErr = queue.ProcessIndexMessage(ctx, s3Client, index, body)
		case queue.DeleteQueue:
			processingErr = queue.ProcessDeleteMessage(ctx, s3Client, index, body)
		}

		if provider, ok := aiClient.(ai.MetricsProvider); ok {
			metrics := provider.GetMetrics()
			aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
			logger.Info(
				"AI Metrics",
				"input_tokens", metrics.InputTokens,
				"output_tokens", metrics.OutputTokens,
				"total_tokens", metrics.TotalTokens,
				"duration", fmt.Sprintf("%02d:%02d:%02d",
					int(aiDuration.Hours()), int(aiDuration.Minutes())%60, int(aiDuration.Seconds())%60),
			)
			provider.ResetMetrics()
		}
		return processingErr
	})
	if err != nil {
		logger.Fatal("Consumer loop failed", "err", err)
	}

	logger.Info("Shutdown signal received, exiting...")
}
