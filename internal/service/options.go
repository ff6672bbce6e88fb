package service

import (
	"log/slog"

	"github.com/raphaelgruber/hygeia-go/internal/config"
	"github.com/raphaelgruber/hygeia-go/internal/engine"
	"github.com/raphaelgruber/hygeia-go/internal/network"
)

// OptionsFromConfig maps process configuration onto session options. The
// returned options own a fresh engine bridge and metrics collector.
func OptionsFromConfig(cfg config.Config, logger *slog.Logger) Options {
	if logger == nil {
		logger = slog.Default()
	}
	bridge := engine.New(engine.Config{
		Command:         cfg.EngineCommand,
		Script:          cfg.EngineScript,
		AnalysisScripts: cfg.AnalysisScript,
		WorkRoot:        cfg.WorkRoot,
		MaxOutputBytes:  cfg.MaxOutputBytes,
	}, logger)

	return Options{
		Bridge:        bridge,
		Logger:        logger,
		CacheCapacity: cfg.CacheCapacity,
		Network: network.Options{
			Bridge: network.BridgeOptions{
				MinGroups:   cfg.BridgeMinGroups,
				MinCoverage: cfg.BridgeMinCoverage,
			},
		},
		Timeout:     cfg.EngineTimeout,
		KeepWorkdir: cfg.KeepWorkdir,
		Debug:       cfg.LogLevel <= slog.LevelDebug,
		Unlocked:    cfg.AdvancedUnlock,
	}
}
