package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/theirongolddev/qiprof/internal/source"
	"github.com/theirongolddev/qiprof/internal/testutil"
)

func BenchmarkIngestStream(b *testing.B) {
	const lines = 200_000
	b.SetBytes(lines * int64(len(fillerLine)))
	p := New(WithLogger(quietLogger()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		src := source.NewReaderSource("filler.log", testutil.NewFillerReader(lines, fillerLine), 0)
		if _, err := p.Begin(context.Background(), src).Wait(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkIngestLoopTrace(b *testing.B) {
	data := []byte(testutil.LoopTrace(5000))
	b.SetBytes(int64(len(data)))
	p := New(WithLogger(quietLogger()), WithEagerGraph(true))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := p.Begin(context.Background(), source.NewReaderSource("loop.log", bytes.NewReader(data), 0)).Wait()
		if err != nil {
			b.Fatal(err)
		}
		h.SearchMatchingLoops()
	}
}
