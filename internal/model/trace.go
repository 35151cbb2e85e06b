// Package model defines domain types for qiprof traces and instantiation details.
package model

import "sort"

// Index types into the slices of a Trace. Each is a plain position and is
// only meaningful for the Trace that produced it.
type (
	TermIdx  int
	QuantIdx int
	MatchIdx int
	InstIdx  int
	EdgeIdx  int
	EqIdx    int
)

// None marks an absent reference in any index field.
const None = -1

// TermKind distinguishes the term constructors found in a trace.
type TermKind uint8

const (
	TermApp TermKind = iota
	TermVar
	TermQuant
	TermPattern
	TermProof
)

// Term is one node of the hash-consed term DAG Z3 logs with mk-* lines.
type Term struct {
	ID        string // identifier as written in the log, e.g. "#12"
	Kind      TermKind
	Name      string
	Args      []TermIdx
	VarIndex  int      // TermVar only
	Quant     QuantIdx // TermQuant only, None otherwise
	Gen       int      // generation from attach-enode, None when never attached
	CreatedBy InstIdx  // instantiation that yielded the term, None otherwise
}

// Quantifier is a quantified formula together with its trigger patterns.
type Quantifier struct {
	Name           string
	Term           TermIdx
	NumVars        int
	Patterns       []TermIdx
	Body           TermIdx
	Instantiations int
}

// BlameKind says how a match depends on an earlier term.
type BlameKind uint8

const (
	BlameTerm BlameKind = iota
	BlameEquality
)

func (k BlameKind) String() string {
	if k == BlameEquality {
		return "equality"
	}
	return "term"
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k BlameKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Blame is one trigger dependency recorded on a new-match line.
type Blame struct {
	Kind BlameKind
	Term TermIdx // BlameTerm
	Lhs  TermIdx // BlameEquality
	Rhs  TermIdx // BlameEquality
}

// Match is a pattern match that may later be instantiated.
type Match struct {
	Fingerprint string
	Quant       QuantIdx
	Pattern     TermIdx
	Bindings    []TermIdx
	Blamed      []Blame
}

// Instantiation is a match that Z3 actually instantiated.
type Instantiation struct {
	Match  MatchIdx
	Proof  TermIdx
	Gen    int // Z3 generation, None when the log omits it
	Yields []TermIdx
	Line   int64
}

// EqExplKind is the justification attached to an eq-expl line.
type EqExplKind uint8

const (
	EqRoot EqExplKind = iota
	EqLiteral
	EqCongruence
	EqTheory
	EqAxiom
	EqUnknown
)

func (k EqExplKind) String() string {
	switch k {
	case EqRoot:
		return "root"
	case EqLiteral:
		return "lit"
	case EqCongruence:
		return "cg"
	case EqTheory:
		return "th"
	case EqAxiom:
		return "ax"
	default:
		return "unknown"
	}
}

// Equality explains why From is equal to To.
type Equality struct {
	From   TermIdx
	Kind   EqExplKind
	To     TermIdx
	Lit    TermIdx      // EqLiteral
	Theory string       // EqTheory
	Pairs  [][2]TermIdx // EqCongruence
}

// Trace is everything the parser extracted from one log.
type Trace struct {
	Version     string
	Terms       []Term
	Quantifiers []Quantifier
	Matches     []Match
	Insts       []Instantiation
	Equalities  []Equality

	// EqualityOf maps a term to its most recent explanation.
	EqualityOf map[TermIdx]EqIdx

	Lines       int64
	Bytes       int64
	ParseErrors int
}

// NewTrace returns an empty trace ready to be filled by a parser.
func NewTrace() *Trace {
	return &Trace{EqualityOf: make(map[TermIdx]EqIdx)}
}

// Term returns the term at i, or nil when i is out of range.
func (t *Trace) Term(i TermIdx) *Term {
	if i < 0 || int(i) >= len(t.Terms) {
		return nil
	}
	return &t.Terms[i]
}

// Inst returns the instantiation at i, or nil when i is out of range.
func (t *Trace) Inst(i InstIdx) *Instantiation {
	if i < 0 || int(i) >= len(t.Insts) {
		return nil
	}
	return &t.Insts[i]
}

// MatchOf returns the match an instantiation was created from.
func (t *Trace) MatchOf(i InstIdx) *Match {
	inst := t.Inst(i)
	if inst == nil {
		return nil
	}
	return &t.Matches[inst.Match]
}

// QuantOf returns the quantifier an instantiation belongs to.
func (t *Trace) QuantOf(i InstIdx) QuantIdx {
	m := t.MatchOf(i)
	if m == nil {
		return None
	}
	return m.Quant
}

// Explanation returns the latest equality explanation recorded for term.
func (t *Trace) Explanation(term TermIdx) *Equality {
	idx, ok := t.EqualityOf[term]
	if !ok {
		return nil
	}
	return &t.Equalities[idx]
}

// QuantUsage is the instantiation count of one quantifier.
type QuantUsage struct {
	Name           string `json:"name" yaml:"name"`
	Instantiations int    `json:"instantiations" yaml:"instantiations"`
}

// Usage returns instantiation counts per quantifier name, busiest first.
// Quantifiers sharing a name are counted together; quantifiers that were
// never instantiated are left out.
func (t *Trace) Usage() []QuantUsage {
	var out []QuantUsage
	pos := make(map[string]int)
	for _, q := range t.Quantifiers {
		if q.Instantiations == 0 {
			continue
		}
		if i, ok := pos[q.Name]; ok {
			out[i].Instantiations += q.Instantiations
			continue
		}
		pos[q.Name] = len(out)
		out = append(out, QuantUsage{Name: q.Name, Instantiations: q.Instantiations})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Instantiations != out[j].Instantiations {
			return out[i].Instantiations > out[j].Instantiations
		}
		return out[i].Name < out[j].Name
	})
	return out
}
