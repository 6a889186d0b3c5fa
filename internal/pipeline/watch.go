package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/ingest"
)

// defaultSettle is how long a file must go without events before it is read.
const defaultSettle = time.Second

// Watcher runs cleanup for every record file or document that appears in a
// directory.
type Watcher struct {
	dir    string
	outDir string
	xlsx   bool
	settle time.Duration
	run    RunFunc
}

// NewWatcher creates a Watcher over dir. Reports for a file land in
// outDir/<stem>.
func NewWatcher(dir, outDir string, xlsx bool, run RunFunc) *Watcher {
	return &Watcher{dir: dir, outDir: outDir, xlsx: xlsx, settle: defaultSettle, run: run}
}

// SourceFor maps a dropped file to its source; the file stem is the id.
// Documents are accepted too and go through extraction in Load.
func (w *Watcher) SourceFor(path string) (Source, bool) {
	if !ingest.Supported(path) && !IsDocument(path) {
		return Source{}, false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return Source{}, false
	}
	id := strings.TrimSuffix(base, filepath.Ext(base))
	return Source{
		ID:     id,
		Input:  path,
		OutDir: filepath.Join(w.outDir, id),
		XLSX:   w.xlsx,
	}, true
}

// Watch blocks until ctx is done, processing files created, written, or
// renamed into the directory once they have settled. Files are processed
// one at a time in name order.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "pipeline: create watcher")
	}
	defer fw.Close() //nolint:errcheck

	if err := fw.Add(w.dir); err != nil {
		return eris.Wrapf(err, "pipeline: watch %s", w.dir)
	}
	zap.L().Info("pipeline: watching directory", zap.String("dir", w.dir))

	ticker := time.NewTicker(max(w.settle/4, 10*time.Millisecond))
	defer ticker.Stop()

	// last event time per path
	pending := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, ok := w.SourceFor(evt.Name); ok {
				pending[evt.Name] = time.Now()
			}
		case now := <-ticker.C:
			for _, path := range settled(pending, now, w.settle) {
				delete(pending, path)
				w.handle(ctx, path)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("pipeline: watcher error", zap.Error(err))
		}
	}
}

// Backfill processes the record files and documents already in the directory.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return eris.Wrapf(err, "pipeline: read dir %s", w.dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		w.handle(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *Watcher) handle(ctx context.Context, path string) {
	src, ok := w.SourceFor(path)
	if !ok {
		return
	}
	log := zap.L().With(zap.String("source_id", src.ID), zap.String("input", path))
	if _, err := w.run(ctx, src); err != nil {
		log.Error("pipeline: watched file failed", zap.Error(err))
		return
	}
	log.Info("pipeline: watched file processed")
}

func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var out []string
	for path, last := range pending {
		if now.Sub(last) >= settle {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
