package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/theirongolddev/qiprof/internal/cli"
	"github.com/theirongolddev/qiprof/internal/config"
	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/source"
)

// ingest parses one trace to completion, drawing progress on stderr when
// it is a terminal. Partial results come back with a notice on stderr.
func ingest(ctx context.Context, path string, cfg config.Config, logger *slog.Logger) (*pipeline.Handle, error) {
	src, err := source.Open(path, source.WithForceBuffered(cfg.Ingest.ForceBuffered))
	if err != nil {
		return nil, err
	}

	p := pipeline.New(
		pipeline.WithLimits(cfg.Limits()),
		pipeline.WithGraphOptions(cfg.GraphOptions()),
		pipeline.WithEagerGraph(cfg.Ingest.EagerGraph),
		pipeline.WithLogger(logger),
	)
	a := p.Begin(ctx, src)

	progress := showProgress()
	var last pipeline.State
	for st := range a.States() {
		last = st
		if !progress {
			continue
		}
		switch st.Kind {
		case pipeline.ReadingRaw:
			fmt.Fprintf(os.Stderr, "\r  Reading %s into memory...", src.Name())
		case pipeline.Parsing:
			pr := st.Progress
			line := fmt.Sprintf("%s lines, %s", cli.FormatNumber(pr.LinesRead), cli.FormatSpeed(pr.Speed, pr.Known))
			if f := pr.Fraction(); f >= 0 {
				line = cli.RenderProgressBar(pr.BytesRead, pr.FileSize, 30) + "  " + line
			}
			fmt.Fprintf(os.Stderr, "\r  Parsing %s  %s    ", src.Name(), line)
		case pipeline.Deriving:
			fmt.Fprintf(os.Stderr, "\r  Building instantiation graph...%40s", "")
		}
	}
	if progress {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}

	h, err := a.Wait()
	if err != nil {
		return nil, err
	}
	if n := last.Notice(p.Limits()); n != "" && !flagQuiet {
		fmt.Fprintln(os.Stderr, cli.RenderWarning(n))
	}
	return h, nil
}
