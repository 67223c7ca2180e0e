// Command bordac runs the client sync agent: a local pebble replica kept
// fresh by pull-sync and live pushes, queryable over a loopback endpoint.
package main

import (
	"context"

	"github.com/stewones/borda-sub001/internal/agent"
	"github.com/stewones/borda-sub001/pkg/config"
	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/shutdown"
)

func main() {
	flags := config.ParseConfigFlags()

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		logger.Init()
		shutdown.Abort("failed to load config", err, "", 0)
	}
	envCfg, envRes := config.ParseConfigEnvs()
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		logger.Init()
		shutdown.Abort("failed to resolve config", err, "", 0)
	}

	logger.InitWithLevel(eff.Config.Logging.Level)

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := agent.New(eff)
	if err != nil {
		shutdown.Abort("failed to initialize agent", err, eff.DBPath, 0)
	}
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("agent exited", err, eff.DBPath, 0)
	}
	logger.Info("agent_stopped")
}
