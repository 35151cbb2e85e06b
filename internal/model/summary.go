package model

import "time"

// Summary is the compact, cacheable digest of one ingested trace.
type Summary struct {
	File           string        `json:"file" yaml:"file"`
	Size           int64         `json:"size" yaml:"size"`
	Version        string        `json:"version,omitempty" yaml:"version,omitempty"`
	Lines          int64         `json:"lines" yaml:"lines"`
	Bytes          int64         `json:"bytes" yaml:"bytes"`
	Terms          int           `json:"terms" yaml:"terms"`
	Quantifiers    int           `json:"quantifiers" yaml:"quantifiers"`
	Instantiations int           `json:"instantiations" yaml:"instantiations"`
	Equalities     int           `json:"equalities" yaml:"equalities"`
	ParseErrors    int           `json:"parse_errors" yaml:"parse_errors"`
	TimedOut       bool          `json:"timed_out" yaml:"timed_out"`
	Cancelled      bool          `json:"cancelled" yaml:"cancelled"`
	MatchingLoops  *int          `json:"matching_loops,omitempty" yaml:"matching_loops,omitempty"`
	Elapsed        time.Duration `json:"elapsed_ns" yaml:"elapsed_ns"`
	Usage          []QuantUsage  `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// Summarize digests a trace. Loop counts are filled in by the caller once
// a search has run.
func Summarize(file string, size int64, t *Trace) Summary {
	return Summary{
		File:           file,
		Size:           size,
		Version:        t.Version,
		Lines:          t.Lines,
		Bytes:          t.Bytes,
		Terms:          len(t.Terms),
		Quantifiers:    len(t.Quantifiers),
		Instantiations: len(t.Insts),
		Equalities:     len(t.Equalities),
		ParseErrors:    t.ParseErrors,
		Usage:          t.Usage(),
	}
}
