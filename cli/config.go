package cli

// This file contains the layering of command-line flags over the
// configuration file.

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/texforge/config"
)

func (a *App) loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadWithDefaults(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("root") {
		cfg.Root = ctx.String("root")
	}
	if ctx.IsSet("renderer") {
		cfg.Renderer.Binary = ctx.String("renderer")
	}
	if ctx.IsSet("pdf-engine") {
		cfg.Renderer.Engine = ctx.String("pdf-engine")
	}
	if ctx.IsSet("debug-timeout") {
		cfg.Renderer.DebugTimeout = ctx.Duration("debug-timeout")
	}
	if ctx.IsSet("final-timeout") {
		cfg.Renderer.FinalTimeout = ctx.Duration("final-timeout")
	}
	if ctx.IsSet("stability") {
		cfg.Watch.Stability = ctx.Duration("stability")
	}
	if ctx.IsSet("queue-size") {
		cfg.Watch.QueueSize = ctx.Int("queue-size")
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a.logger.Debug().
		Str("root", cfg.Root).
		Str("renderer", cfg.Renderer.Binary).
		Str("engine", cfg.Renderer.Engine).
		Msg("Configuration loaded")

	return cfg, nil
}
