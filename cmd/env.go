package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/cleanup"
	"github.com/sells-group/metrics-cli/internal/monitoring"
	"github.com/sells-group/metrics-cli/internal/ocr"
	"github.com/sells-group/metrics-cli/internal/pipeline"
	"github.com/sells-group/metrics-cli/internal/store"
)

// pipelineEnv holds the store, metrics, and pipeline shared by the
// cleanup, apply, batch, watch, and serve commands.
type pipelineEnv struct {
	Store    store.Store // nil when run history is disabled
	Metrics  *monitoring.Metrics
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for mode, opens the store unless
// withStore is false or the driver is "none", and builds the Pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string, withStore bool) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	opts, err := cleanup.OptionsFromConfig(cfg.Cleanup)
	if err != nil {
		return nil, err
	}

	pdf, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{Metrics: monitoring.NewMetrics()}
	if withStore && cfg.Store.Driver != "none" {
		env.Store, err = store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
	} else {
		zap.L().Debug("run history disabled")
	}

	env.Pipeline = pipeline.New(cfg, env.Store, cleanup.New(opts), pdf, env.Metrics)
	return env, nil
}

// initStore opens the configured run store for read-only commands.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == "none" {
		return nil, eris.New("store.driver is none; run history is not recorded")
	}
	return store.Open(ctx, cfg.Store)
}
