package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Manifest lists the sources processed by one batch.
type Manifest struct {
	Sources []Source `yaml:"sources"`
}

// LoadManifest reads a YAML manifest. Relative input paths resolve against
// the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse manifest %s", path)
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool, len(m.Sources))
	for i := range m.Sources {
		s := &m.Sources[i]
		if s.ID == "" || s.Input == "" {
			return nil, eris.Errorf("pipeline: manifest source %d needs id and input", i+1)
		}
		if seen[s.ID] {
			return nil, eris.Errorf("pipeline: manifest source id %q is repeated", s.ID)
		}
		seen[s.ID] = true
		if !filepath.IsAbs(s.Input) {
			s.Input = filepath.Join(base, s.Input)
		}
	}
	return &m, nil
}

// RunFunc processes one source.
type RunFunc func(ctx context.Context, src Source) (*Result, error)

// BatchResult counts the sources of a batch by outcome.
type BatchResult struct {
	Succeeded int64
	Failed    int64
	Results   map[string]*Result
	Errors    map[string]error
}

// RunBatch processes sources concurrently, at most concurrency at a time.
// A failed source is logged and counted; it never aborts the others.
func RunBatch(ctx context.Context, sources []Source, concurrency int, run RunFunc) (*BatchResult, error) {
	out := &BatchResult{
		Results: make(map[string]*Result, len(sources)),
		Errors:  make(map[string]error),
	}
	if len(sources) == 0 {
		zap.L().Info("pipeline: no sources to process")
		return out, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("pipeline: processing batch",
		zap.Int("sources", len(sources)),
		zap.Int("concurrency", concurrency),
	)

	results := make([]*Result, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, src := range sources {
		g.Go(func() error {
			log := zap.L().With(zap.String("source_id", src.ID))

			res, err := run(gctx, src)
			if err != nil {
				failed.Add(1)
				errs[i] = err
				log.Error("pipeline: source failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: batch processing")
	}

	for i, src := range sources {
		if errs[i] != nil {
			out.Errors[src.ID] = errs[i]
			continue
		}
		out.Results[src.ID] = results[i]
	}
	out.Succeeded = succeeded.Load()
	out.Failed = failed.Load()

	zap.L().Info("pipeline: batch complete",
		zap.Int64("succeeded", out.Succeeded),
		zap.Int64("failed", out.Failed),
	)
	return out, nil
}
