package cli

// This file contains the watch command: the directory watcher feeds the
// request queue while the manager drains it, until a signal arrives or a
// request is rejected as fatal.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/perfgo/texforge/classify"
	"github.com/perfgo/texforge/config"
	"github.com/perfgo/texforge/orchestrator"
	"github.com/perfgo/texforge/report"
	"github.com/perfgo/texforge/watcher"
)

func (a *App) watch(c *cli.Context) error {
	cfg, err := a.loadConfig(c)
	if err != nil {
		return err
	}

	layout := cfg.Layout()
	if err := layout.Ensure(); err != nil {
		return err
	}
	if _, err := os.ReadDir(layout.Templates); err != nil {
		return fmt.Errorf("cannot read template store: %w", err)
	}

	closeLogs, err := a.attachLogFiles(layout.Status)
	if err != nil {
		return err
	}
	defer closeLogs()

	m, err := a.newManager(cfg)
	if err != nil {
		return err
	}

	w, err := watcher.New(a.logger, watcher.Options{
		RequestsDir:     layout.Requests,
		TemplatesDir:    layout.Templates,
		TemplatePattern: cfg.Watch.TemplatePattern,
		Stability:       cfg.Watch.Stability,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if err := w.Start(gctx); err != nil {
		return err
	}
	defer w.Stop()

	if _, err := report.SignalReady(layout.Status, layout.Requests, time.Now()); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to write readiness file")
	}
	a.logger.Info().
		Str("requests", layout.Requests).
		Str("templates", layout.Templates).
		Str("results", layout.Results).
		Msg("texforge ready")

	g.Go(func() error {
		return a.pump(gctx, w, m)
	})
	g.Go(func() error {
		return m.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		a.logger.Error().Err(err).Msg("Stopping on fatal error")
		return err
	}

	a.logger.Info().Int("pending", m.Pending()).Msg("Shutting down")
	return nil
}

// pump forwards watcher events to the manager until the event channel closes.
func (a *App) pump(ctx context.Context, w *watcher.Watcher, m *orchestrator.Manager) error {
	for ev := range w.Events() {
		switch ev.Kind {
		case watcher.EventRequest:
			if err := m.Submit(ctx, ev.Path); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case watcher.EventTemplateChanged:
			a.logger.Debug().Str("path", ev.Path).Msg("Template change noted")
		}
	}
	return nil
}

func (a *App) newManager(cfg *config.Config) (*orchestrator.Manager, error) {
	classifier, err := a.newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(a.logger, cfg, orchestrator.Deps{Classifier: classifier}), nil
}

func (a *App) newClassifier(cfg *config.Config) (*classify.Classifier, error) {
	if cfg.Classifier.RulesFile == "" {
		return classify.New(), nil
	}
	rules, err := classify.LoadRules(cfg.Classifier.RulesFile)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Int("rules", len(rules)).Str("file", cfg.Classifier.RulesFile).Msg("Loaded classifier rules")
	return classify.New(rules...), nil
}
