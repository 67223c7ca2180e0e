// Command bordad runs the borda sync server: the mongo-backed document
// store with the query, sync and live APIs.
package main

import (
	"context"

	"github.com/stewones/borda-sub001/internal/app"
	"github.com/stewones/borda-sub001/pkg/config"
	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/shutdown"
	"github.com/stewones/borda-sub001/pkg/telemetry"
)

// build metadata, set via ldflags during release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
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
	telemetry.MustRegister()

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := app.New(ctx, eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize server", err, "", 0)
	}
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited", err, "", 0)
	}
	logger.Info("server_stopped")
}
