package pipeline

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Kind is the lifecycle phase of an ingestion attempt.
type Kind uint8

const (
	Idle Kind = iota
	ReadingRaw
	Parsing
	Parsed
	Deriving
	Ready
	Failed
)

var kindNames = [...]string{"idle", "reading", "parsing", "parsed", "deriving", "ready", "failed"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Terminal reports whether no further states follow k in an attempt.
func (k Kind) Terminal() bool { return k == Ready || k == Failed }

// follows reports whether a transition from prev to k is allowed. Parsing
// and Deriving may repeat; Failed may interrupt any live phase.
func (k Kind) follows(prev Kind) bool {
	switch {
	case prev.Terminal():
		return false
	case k == Failed:
		return true
	case k == prev:
		return k == Parsing || k == Deriving
	default:
		return k > prev
	}
}

// DerivationProgress describes the post-parse derivation step in flight.
type DerivationProgress struct {
	Stage string `json:"stage"`
}

// State is one step of an attempt's lifecycle. Which fields are meaningful
// depends on Kind: Progress for Parsing, TimedOut and Cancelled from Parsed
// on, Derivation for Deriving, Handle for Ready and Err for Failed.
type State struct {
	Kind       Kind
	Attempt    *Attempt
	File       string
	Progress   Progress
	TimedOut   bool
	Cancelled  bool
	Derivation DerivationProgress
	Handle     *Handle
	Err        error
}

// Notice is a one-line explanation of why results may be partial, or ""
// when the parse ran to completion.
func (s State) Notice(limits Limits) string {
	switch {
	case s.Kind < Parsed || s.Kind == Failed:
		return ""
	case s.Cancelled:
		return "Parsing cancelled, showing partial results"
	case s.TimedOut:
		return "Stopped parsing at " + humanize.IBytes(uint64(limits.StreamCeiling)) + " (streaming) or " +
			humanize.IBytes(uint64(limits.BufferedCeiling)) + " (buffered); showing partial results"
	default:
		return ""
	}
}
