package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/qiprof/internal/model"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "summaries.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleSummary() model.Summary {
	loops := 2
	return model.Summary{
		File:           "run.log",
		Size:           4096,
		Version:        "Z3 4.8.7",
		Lines:          120,
		Bytes:          4096,
		Terms:          40,
		Quantifiers:    2,
		Instantiations: 30,
		Equalities:     3,
		ParseErrors:    1,
		TimedOut:       true,
		MatchingLoops:  &loops,
		Elapsed:        1500 * time.Millisecond,
		Usage: []model.QuantUsage{
			{Name: "ax_fg", Instantiations: 20},
			{Name: "ax_pq", Instantiations: 10},
		},
	}
}

func TestSaveAndLookup(t *testing.T) {
	c := openTemp(t)
	k := FileKey{Path: "/traces/run.log", MtimeNs: 100, Size: 4096, Fingerprint: "abc"}
	want := sampleSummary()

	if err := c.Save(k, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := c.Lookup(k)
	if err != nil || !ok {
		t.Fatalf("Lookup = ok %v, err %v", ok, err)
	}
	if got.File != want.File || got.Instantiations != want.Instantiations || got.Version != want.Version {
		t.Errorf("Lookup = %+v", got)
	}
	if !got.TimedOut || got.Cancelled {
		t.Errorf("flags = timed_out %v cancelled %v", got.TimedOut, got.Cancelled)
	}
	if got.MatchingLoops == nil || *got.MatchingLoops != 2 {
		t.Errorf("MatchingLoops = %v, want 2", got.MatchingLoops)
	}
	if got.Elapsed != want.Elapsed {
		t.Errorf("Elapsed = %v, want %v", got.Elapsed, want.Elapsed)
	}
	if len(got.Usage) != 2 || got.Usage[0] != want.Usage[0] {
		t.Errorf("Usage = %+v", got.Usage)
	}
}

func TestLookup_StaleKey(t *testing.T) {
	c := openTemp(t)
	k := FileKey{Path: "/traces/run.log", MtimeNs: 100, Size: 4096, Fingerprint: "abc"}
	if err := c.Save(k, sampleSummary()); err != nil {
		t.Fatal(err)
	}

	stale := []FileKey{
		{Path: k.Path, MtimeNs: 101, Size: k.Size, Fingerprint: k.Fingerprint},
		{Path: k.Path, MtimeNs: k.MtimeNs, Size: 8192, Fingerprint: k.Fingerprint},
		{Path: k.Path, MtimeNs: k.MtimeNs, Size: k.Size, Fingerprint: "def"},
		{Path: "/traces/other.log", MtimeNs: k.MtimeNs, Size: k.Size, Fingerprint: k.Fingerprint},
	}
	for _, sk := range stale {
		if _, ok, err := c.Lookup(sk); err != nil || ok {
			t.Errorf("Lookup(%+v) = ok %v, err %v; want miss", sk, ok, err)
		}
	}
}

func TestSave_ReplacesUsage(t *testing.T) {
	c := openTemp(t)
	k := FileKey{Path: "/traces/run.log", MtimeNs: 1, Size: 1, Fingerprint: "x"}
	if err := c.Save(k, sampleSummary()); err != nil {
		t.Fatal(err)
	}
	s := sampleSummary()
	s.Usage = []model.QuantUsage{{Name: "ax_new", Instantiations: 3}}
	s.MatchingLoops = nil
	if err := c.Save(k, s); err != nil {
		t.Fatal(err)
	}
	got, _, err := c.Lookup(k)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Usage) != 1 || got.Usage[0].Name != "ax_new" {
		t.Errorf("Usage = %+v, want only ax_new", got.Usage)
	}
	if got.MatchingLoops != nil {
		t.Errorf("MatchingLoops = %d, want unset", *got.MatchingLoops)
	}
}

func TestSave_SameNamedQuantifiers(t *testing.T) {
	c := openTemp(t)
	k := FileKey{Path: "/traces/dup.log", MtimeNs: 1, Size: 1, Fingerprint: "x"}
	s := sampleSummary()
	s.Usage = []model.QuantUsage{
		{Name: "ax", Instantiations: 4},
		{Name: "ax", Instantiations: 1},
	}
	if err := c.Save(k, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := c.Lookup(k)
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if len(got.Usage) != 1 || got.Usage[0] != (model.QuantUsage{Name: "ax", Instantiations: 5}) {
		t.Errorf("Usage = %+v, want ax counted once with 5", got.Usage)
	}
}

func TestPruneAndClear(t *testing.T) {
	c := openTemp(t)
	for _, p := range []string{"/a.log", "/b.log", "/c.log"} {
		if err := c.Save(FileKey{Path: p, Fingerprint: "f"}, sampleSummary()); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := c.Prune(map[string]struct{}{"/b.log": {}})
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("Prune removed %d, want 2", removed)
	}
	tracked, err := c.Tracked()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tracked["/b.log"]; !ok || len(tracked) != 1 {
		t.Errorf("Tracked = %v, want only /b.log", tracked)
	}

	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Count(); err != nil || n != 0 {
		t.Errorf("Count after Clear = %d, %v", n, err)
	}
}

func TestKeyFor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	if err := os.WriteFile(path, []byte("[tool-version] Z3 4.8.7\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := KeyFor(path)
	if err != nil {
		t.Fatal(err)
	}
	if a.Size != 24 || a.MtimeNs == 0 || len(a.Fingerprint) != 64 {
		t.Errorf("KeyFor = %+v", a)
	}

	if err := os.WriteFile(path, []byte("[tool-version] Z3 4.8.8\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err := KeyFor(path)
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint == b.Fingerprint {
		t.Error("fingerprint unchanged after rewrite")
	}

	if _, err := KeyFor(filepath.Join(dir, "missing.log")); err == nil {
		t.Error("KeyFor on a missing file succeeded")
	}
}

func TestFingerprint_OnlyHead(t *testing.T) {
	head := strings.Repeat("x", fingerprintBytes)
	a, err := Fingerprint(strings.NewReader(head + "tail one"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fingerprint(strings.NewReader(head + "tail two"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("bytes past the first MiB changed the fingerprint")
	}
}
