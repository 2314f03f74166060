package main

import (
	"github.com/trc-ai/riskgraph/internal/server"
	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/logger"
	"github.com/trc-ai/riskgraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
