// Package pipeline runs one source through load, classify, report, and
// persist, recording the run in the store.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/cleanup"
	"github.com/sells-group/metrics-cli/internal/config"
	"github.com/sells-group/metrics-cli/internal/extract"
	"github.com/sells-group/metrics-cli/internal/ingest"
	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/monitoring"
	"github.com/sells-group/metrics-cli/internal/ocr"
	"github.com/sells-group/metrics-cli/internal/report"
	"github.com/sells-group/metrics-cli/internal/store"
)

// Source is one input file to clean.
type Source struct {
	ID     string `yaml:"id"`
	Input  string `yaml:"input"`
	OutDir string `yaml:"out_dir"`
	XLSX   bool   `yaml:"xlsx"`
}

// Result is the outcome of a successful run.
type Result struct {
	RunID    string
	Cleanup  *cleanup.Result
	Files    []string
	Duration time.Duration
}

// Pipeline runs cleanup passes. The store, extractor and metrics are
// optional; a nil store disables run history.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	classifier *cleanup.Classifier
	pdf        ocr.Extractor
	metrics    *monitoring.Metrics
}

// New creates a Pipeline.
func New(cfg *config.Config, st store.Store, classifier *cleanup.Classifier, pdf ocr.Extractor, metrics *monitoring.Metrics) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		classifier: classifier,
		pdf:        pdf,
		metrics:    metrics,
	}
}

// IsDocument reports whether path is a document that needs extraction
// before cleanup rather than an extracted record file.
func IsDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md", ".text":
		return true
	}
	return false
}

// Load reads src.Input into a batch. Record files are parsed directly;
// documents are converted to text and scanned for metrics first.
func (p *Pipeline) Load(ctx context.Context, src Source) (*ingest.Batch, error) {
	if ingest.Supported(src.Input) {
		return ingest.ReadRecords(ctx, src.Input, src.ID)
	}
	if !IsDocument(src.Input) {
		return nil, eris.Errorf("pipeline: unsupported input %s", src.Input)
	}
	if p.pdf == nil && strings.EqualFold(filepath.Ext(src.Input), ".pdf") {
		return nil, eris.New("pipeline: no PDF extractor configured")
	}

	text, err := ocr.ForPath(src.Input, p.pdf).ExtractText(ctx, src.Input)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: extract text from %s", src.Input)
	}
	return &ingest.Batch{
		SourceID: src.ID,
		Records:  extract.FromText(src.ID, text, extract.OptionsFromConfig(p.cfg.Extract)),
	}, nil
}

// Classify loads src and classifies it without writing anything.
func (p *Pipeline) Classify(ctx context.Context, src Source) (*cleanup.Result, error) {
	batch, err := p.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return p.classifier.Classify(src.ID, batch.Records, batch.Skipped), nil
}

// Run cleans one source: load, classify, write reports, persist decisions.
// A failure after the run is created marks the run failed.
func (p *Pipeline) Run(ctx context.Context, src Source) (*Result, error) {
	if src.ID == "" {
		return nil, eris.New("pipeline: source id is required")
	}
	if src.OutDir == "" {
		src.OutDir = filepath.Join(p.cfg.Output.Dir, src.ID)
	}

	log := zap.L().With(zap.String("source_id", src.ID), zap.String("input", src.Input))
	log.Info("pipeline: starting cleanup")
	start := time.Now()

	result := &Result{}
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, src.ID, src.Input)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		result.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
		if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
			log.Warn("pipeline: failed to update status", zap.Error(err))
		}
	}

	trackPhase := func(name string, fn func() error) error {
		phaseStart := time.Now()
		err := fn()
		duration := time.Since(phaseStart).Milliseconds()
		if err != nil {
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return err
		}
		log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
		return nil
	}

	var batch *ingest.Batch
	err := trackPhase("load", func() error {
		var loadErr error
		batch, loadErr = p.Load(ctx, src)
		return loadErr
	})
	if err == nil {
		err = trackPhase("classify", func() error {
			result.Cleanup = p.classifier.Classify(src.ID, batch.Records, batch.Skipped)
			return nil
		})
	}
	if err == nil {
		err = trackPhase("report", func() error {
			var reportErr error
			result.Files, reportErr = report.WriteAll(src.OutDir, result.Cleanup, report.Options{XLSX: src.XLSX})
			return reportErr
		})
	}
	if err == nil && p.store != nil {
		err = trackPhase("persist", func() error {
			if saveErr := p.store.SaveDecisions(ctx, result.RunID, result.Cleanup.Decisions); saveErr != nil {
				return saveErr
			}
			summary := result.Cleanup.Summary
			return p.store.CompleteRun(ctx, result.RunID, &summary)
		})
	}

	result.Duration = time.Since(start)
	if err != nil {
		p.fail(result.RunID, err, log)
		p.observe(model.RunStatusFailed, nil, result.Duration)
		return nil, eris.Wrapf(err, "pipeline: run %s", src.ID)
	}

	summary := result.Cleanup.Summary
	p.observe(model.RunStatusComplete, &summary, result.Duration)
	log.Info("pipeline: cleanup complete",
		zap.Int("total", summary.Total),
		zap.Float64("removal_rate", summary.RemovalRate),
		zap.Float64("quality", summary.Quality.Final),
		zap.Int64("duration_ms", result.Duration.Milliseconds()),
	)
	return result, nil
}

// fail records err on the run. It uses a fresh context so cancellation of
// the run still leaves a terminal status behind.
func (p *Pipeline) fail(runID string, err error, log *zap.Logger) {
	if p.store == nil || runID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if failErr := p.store.FailRun(ctx, runID, err.Error()); failErr != nil {
		log.Warn("pipeline: failed to mark run failed", zap.Error(failErr))
	}
}

func (p *Pipeline) observe(status model.RunStatus, summary *model.Summary, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveRun(status, summary, elapsed)
	}
}
