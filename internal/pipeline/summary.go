package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/qiprof/internal/graph"
	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/source"
	"github.com/theirongolddev/qiprof/internal/store"
)

// ProgressFunc is called as files finish. current is the number of files
// done so far, total is the total count.
type ProgressFunc func(current, total int)

// SummaryOptions configures Summarize.
type SummaryOptions struct {
	Limits        Limits
	Graph         graph.Options
	SearchLoops   bool
	ForceBuffered bool
	Logger        *slog.Logger
}

// FileSummary is the outcome for one file.
type FileSummary struct {
	Path    string
	Summary model.Summary
	Cached  bool
	Err     error
}

// SummaryResult holds the per-file outcomes, in input order.
type SummaryResult struct {
	Files      []FileSummary
	CacheHits  int
	Reparsed   int
	FileErrors int
}

// Summarize ingests every file, reusing cached summaries for files that are
// unchanged since they were cached. cache may be nil. Each reparsed file
// gets its own pipeline; up to GOMAXPROCS run at once. When ctx ends early
// the files finished so far are returned along with ctx's error.
func Summarize(ctx context.Context, files []source.TraceFile, cache *store.Cache, opts SummaryOptions, progressFn ProgressFunc) (*SummaryResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	result := &SummaryResult{Files: make([]FileSummary, len(files))}
	if len(files) == 0 {
		return result, nil
	}

	keys := make([]store.FileKey, len(files))
	var toReparse []int
	for i, f := range files {
		result.Files[i].Path = f.Path
		if cache == nil {
			toReparse = append(toReparse, i)
			continue
		}
		k, err := store.KeyFor(f.Path)
		if err != nil {
			result.Files[i].Err = err
			continue
		}
		keys[i] = k
		s, ok, err := cache.Lookup(k)
		if err != nil {
			return nil, fmt.Errorf("reading cache: %w", err)
		}
		// A summary cached without a loop search cannot answer one.
		if ok && (!opts.SearchLoops || s.MatchingLoops != nil) {
			result.Files[i].Summary = s
			result.Files[i].Cached = true
			result.CacheHits++
			continue
		}
		toReparse = append(toReparse, i)
	}
	result.Reparsed = len(toReparse)

	var processed atomic.Int64
	processed.Store(int64(len(files) - len(toReparse)))
	if progressFn != nil && processed.Load() > 0 {
		progressFn(int(processed.Load()), len(files))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.GOMAXPROCS(0), 1))
	for _, idx := range toReparse {
		g.Go(func() error {
			s, err := summarizeFile(gctx, files[idx].Path, opts, logger)
			result.Files[idx].Summary = s
			result.Files[idx].Err = err
			if err == nil && cache != nil && !s.TimedOut && !s.Cancelled {
				if err := cache.Save(keys[idx], s); err != nil {
					logger.Warn("caching summary failed", "file", files[idx].Path, "err", err)
				}
			}
			n := processed.Add(1)
			if progressFn != nil {
				progressFn(int(n), len(files))
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range result.Files {
		if f.Err != nil {
			result.FileErrors++
		}
	}
	return result, ctx.Err()
}

func summarizeFile(ctx context.Context, path string, opts SummaryOptions, logger *slog.Logger) (model.Summary, error) {
	src, err := source.Open(path, source.WithForceBuffered(opts.ForceBuffered))
	if err != nil {
		return model.Summary{}, err
	}
	p := New(
		WithLimits(opts.Limits),
		WithGraphOptions(opts.Graph),
		WithEagerGraph(opts.SearchLoops),
		WithLogger(logger),
	)
	start := time.Now()
	h, err := p.Begin(ctx, src).Wait()
	if err != nil {
		return model.Summary{}, err
	}
	if opts.SearchLoops {
		h.SearchMatchingLoops()
	}
	s := h.Summary()
	s.Elapsed = time.Since(start)
	return s, nil
}
