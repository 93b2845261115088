// Command scheduler is the process entrypoint for the AI task scheduling
// core: load config from the environment, configure the Orchestrator, and
// run it until a shutdown signal arrives. Grounded on the teacher's
// control_plane/main.go wiring shape (env-driven config, construct
// dependencies, start the long-running loop, block until shutdown) adapted
// from its inline http.HandleFunc wiring to a single Orchestrator.Configure
// call.
package main

import (
	"context"
	"os"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/config"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/orchestrator"
)

func main() {
	log := logging.Component("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("configuration error", "error", err)
	}

	ctx := context.Background()

	o, err := orchestrator.Configure(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to configure orchestrator", "error", err)
	}

	if err := o.Start(ctx); err != nil {
		log.Errorw("orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}
