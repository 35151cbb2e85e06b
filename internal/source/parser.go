// Package source discovers, opens and parses Z3 quantifier-instantiation traces.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/theirongolddev/qiprof/internal/model"
)

// DefaultCheckEvery is how many lines the parser consumes between calls to
// the continuation predicate.
const DefaultCheckEvery = 100_000

var (
	// ErrMalformedInput reports bytes that do not decode as UTF-8 text.
	ErrMalformedInput = errors.New("malformed input: not valid UTF-8")
	// ErrStreamUnavailable means a source can only be read as a whole.
	ErrStreamUnavailable = errors.New("streaming unavailable")
)

// ReaderState is the progress the parser reports to its predicate.
type ReaderState struct {
	LinesRead int64
	BytesRead int64
}

// Outcome says whether ProcessUntil consumed the whole input.
type Outcome uint8

const (
	Finished Outcome = iota
	TimedOut
)

func (o Outcome) String() string {
	if o == TimedOut {
		return "timed-out"
	}
	return "finished"
}

// Parser incrementally turns trace lines into a model.Trace.
//
// Lines are processed in order; the predicate passed to ProcessUntil is
// invoked once every CheckEvery lines and parsing stops as soon as it
// returns false. Parsing may be resumed with another ProcessUntil call.
type Parser struct {
	r          *bufio.Reader
	st         ReaderState
	checkEvery int64
	done       bool
	long       []byte

	trace     *model.Trace
	termByID  map[string]model.TermIdx
	matchByFP map[string]model.MatchIdx
	current   model.InstIdx
}

// Option configures a Parser.
type Option func(*Parser)

// WithCheckEvery changes the predicate cadence. Values below 1 are ignored.
func WithCheckEvery(n int64) Option {
	return func(p *Parser) {
		if n > 0 {
			p.checkEvery = n
		}
	}
}

// NewStreamParser parses lines as they arrive from r.
func NewStreamParser(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		r:          bufio.NewReaderSize(r, 256*1024),
		checkEvery: DefaultCheckEvery,
		trace:      model.NewTrace(),
		termByID:   make(map[string]model.TermIdx),
		matchByFP:  make(map[string]model.MatchIdx),
		current:    model.None,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewBufferParser parses an in-memory log. The caller is expected to have
// validated data as UTF-8; invalid lines still fail with ErrMalformedInput.
func NewBufferParser(data []byte, opts ...Option) *Parser {
	return NewStreamParser(bytes.NewReader(data), opts...)
}

// State returns how far the parser has read.
func (p *Parser) State() ReaderState { return p.st }

// ProcessUntil consumes lines until the input ends or keepGoing returns
// false. It returns TimedOut in the latter case.
func (p *Parser) ProcessUntil(keepGoing func(ReaderState) bool) (Outcome, error) {
	if p.done {
		return Finished, nil
	}
	for {
		line, err := p.readLine()
		if len(line) > 0 {
			p.st.LinesRead++
			p.st.BytesRead += int64(len(line))
			if !utf8.Valid(line) {
				p.done = true
				return Finished, fmt.Errorf("line %d: %w", p.st.LinesRead, ErrMalformedInput)
			}
			p.processLine(trimEOL(line))
			if p.st.LinesRead%p.checkEvery == 0 && !keepGoing(p.st) {
				return TimedOut, nil
			}
		}
		if errors.Is(err, io.EOF) {
			p.done = true
			return Finished, nil
		}
		if err != nil {
			p.done = true
			return Finished, fmt.Errorf("read trace: %w", err)
		}
	}
}

// TakeResult hands over the parsed trace. Later calls return nil.
func (p *Parser) TakeResult() *model.Trace {
	t := p.trace
	if t == nil {
		return nil
	}
	t.Lines = p.st.LinesRead
	t.Bytes = p.st.BytesRead
	p.trace = nil
	p.termByID = nil
	p.matchByFP = nil
	return t
}

func (p *Parser) readLine() ([]byte, error) {
	line, err := p.r.ReadSlice('\n')
	if !errors.Is(err, bufio.ErrBufferFull) {
		return line, err
	}
	p.long = append(p.long[:0], line...)
	for errors.Is(err, bufio.ErrBufferFull) {
		line, err = p.r.ReadSlice('\n')
		p.long = append(p.long, line...)
	}
	return p.long, err
}

func trimEOL(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n]
}

// processLine routes one line by its bracketed tag. Unknown tags are
// skipped; known tags with unusable arguments count as parse errors.
func (p *Parser) processLine(line []byte) {
	if len(line) == 0 || line[0] != '[' {
		return
	}
	end := bytes.IndexByte(line, ']')
	if end < 0 {
		p.trace.ParseErrors++
		return
	}
	tk := tokenizer{line: line[end+1:]}

	var ok bool
	switch string(line[1:end]) {
	case "tool-version":
		ok = p.toolVersion(&tk)
	case "mk-app":
		ok = p.mkApp(&tk, model.TermApp)
	case "mk-proof":
		ok = p.mkApp(&tk, model.TermProof)
	case "mk-var":
		ok = p.mkVar(&tk)
	case "mk-pattern":
		ok = p.mkPattern(&tk)
	case "mk-quant":
		ok = p.mkQuant(&tk)
	case "attach-enode":
		ok = p.attachEnode(&tk)
	case "new-match":
		ok = p.newMatch(&tk)
	case "instance":
		ok = p.instance(&tk)
	case "end-of-instance":
		p.current = model.None
		ok = true
	case "eq-expl":
		ok = p.eqExpl(&tk)
	default:
		return
	}
	if !ok {
		p.trace.ParseErrors++
	}
}

func (p *Parser) toolVersion(tk *tokenizer) bool {
	var parts []byte
	for tok := tk.next(); tok != nil; tok = tk.next() {
		if len(parts) > 0 {
			parts = append(parts, ' ')
		}
		parts = append(parts, tok...)
	}
	p.trace.Version = string(parts)
	return true
}

func (p *Parser) define(id []byte, t model.Term) model.TermIdx {
	t.ID = string(id)
	t.Gen = model.None
	t.CreatedBy = model.None
	if t.Kind != model.TermQuant {
		t.Quant = model.None
	}
	idx := model.TermIdx(len(p.trace.Terms))
	if p.current != model.None {
		t.CreatedBy = p.current
		inst := &p.trace.Insts[p.current]
		inst.Yields = append(inst.Yields, idx)
	}
	p.trace.Terms = append(p.trace.Terms, t)
	p.termByID[t.ID] = idx
	return idx
}

func (p *Parser) lookup(tok []byte) (model.TermIdx, bool) {
	if !isID(tok) {
		return model.None, false
	}
	idx, ok := p.termByID[string(tok)]
	return idx, ok
}

// args resolves the remaining tokens as term references.
func (p *Parser) args(tk *tokenizer) ([]model.TermIdx, bool) {
	var out []model.TermIdx
	for tok := tk.next(); tok != nil; tok = tk.next() {
		idx, ok := p.lookup(tok)
		if !ok {
			return nil, false
		}
		out = append(out, idx)
	}
	return out, true
}

// mkApp handles "#id name #arg...".
func (p *Parser) mkApp(tk *tokenizer, kind model.TermKind) bool {
	id := tk.next()
	name := tk.next()
	if !isID(id) || name == nil {
		return false
	}
	args, ok := p.args(tk)
	if !ok {
		return false
	}
	p.define(id, model.Term{Kind: kind, Name: string(name), Args: args})
	return true
}

// mkVar handles "#id index".
func (p *Parser) mkVar(tk *tokenizer) bool {
	id := tk.next()
	n, ok := atoi(tk.next())
	if !isID(id) || !ok {
		return false
	}
	p.define(id, model.Term{Kind: model.TermVar, Name: "qvar_" + strconv.Itoa(n), VarIndex: n})
	return true
}

// mkPattern handles "#id #arg...".
func (p *Parser) mkPattern(tk *tokenizer) bool {
	id := tk.next()
	if !isID(id) {
		return false
	}
	args, ok := p.args(tk)
	if !ok {
		return false
	}
	p.define(id, model.Term{Kind: model.TermPattern, Name: "pattern", Args: args})
	return true
}

// mkQuant handles "#id name num_vars #pattern... #body".
func (p *Parser) mkQuant(tk *tokenizer) bool {
	id := tk.next()
	name := tk.next()
	nvars, ok := atoi(tk.next())
	if !isID(id) || name == nil || !ok {
		return false
	}
	refs, ok := p.args(tk)
	if !ok || len(refs) == 0 {
		return false
	}
	qidx := model.QuantIdx(len(p.trace.Quantifiers))
	tidx := p.define(id, model.Term{Kind: model.TermQuant, Name: string(name), Args: refs, Quant: qidx})
	p.trace.Quantifiers = append(p.trace.Quantifiers, model.Quantifier{
		Name:     string(name),
		Term:     tidx,
		NumVars:  nvars,
		Patterns: refs[:len(refs)-1],
		Body:     refs[len(refs)-1],
	})
	return true
}

// attachEnode handles "#id generation". Inside an instance block the term
// also becomes one of the instance's yields.
func (p *Parser) attachEnode(tk *tokenizer) bool {
	idx, ok := p.lookup(tk.next())
	if !ok {
		return false
	}
	term := &p.trace.Terms[idx]
	if gen, ok := atoi(tk.next()); ok {
		term.Gen = gen
	}
	if p.current != model.None && term.CreatedBy != p.current {
		if term.CreatedBy == model.None {
			term.CreatedBy = p.current
		}
		inst := &p.trace.Insts[p.current]
		inst.Yields = append(inst.Yields, idx)
	}
	return true
}

// newMatch handles "fingerprint #quant #pattern #binding... ; blame...",
// where each blame is either "#t" or "(#a #b)".
func (p *Parser) newMatch(tk *tokenizer) bool {
	fp := tk.next()
	qterm, ok := p.lookup(tk.next())
	if fp == nil || !ok || p.trace.Terms[qterm].Kind != model.TermQuant {
		return false
	}
	pattern, ok := p.lookup(tk.next())
	if !ok {
		return false
	}
	m := model.Match{
		Fingerprint: string(fp),
		Quant:       p.trace.Terms[qterm].Quant,
		Pattern:     pattern,
	}
	tok := tk.next()
	for ; tok != nil && !isSemicolon(tok); tok = tk.next() {
		idx, ok := p.lookup(tok)
		if !ok {
			return false
		}
		m.Bindings = append(m.Bindings, idx)
	}
	for tok = tk.next(); tok != nil; tok = tk.next() {
		if len(tok) == 1 && tok[0] == '(' {
			lhs, ok1 := p.lookup(tk.next())
			rhs, ok2 := p.lookup(tk.next())
			if !ok1 || !ok2 || !isClose(tk.next()) {
				return false
			}
			m.Blamed = append(m.Blamed, model.Blame{Kind: model.BlameEquality, Term: model.None, Lhs: lhs, Rhs: rhs})
			continue
		}
		idx, ok := p.lookup(tok)
		if !ok {
			return false
		}
		m.Blamed = append(m.Blamed, model.Blame{Kind: model.BlameTerm, Term: idx, Lhs: model.None, Rhs: model.None})
	}
	p.matchByFP[m.Fingerprint] = model.MatchIdx(len(p.trace.Matches))
	p.trace.Matches = append(p.trace.Matches, m)
	return true
}

// instance handles "fingerprint [#proof] [; generation]".
func (p *Parser) instance(tk *tokenizer) bool {
	fp := tk.next()
	midx, ok := p.matchByFP[string(fp)]
	if fp == nil || !ok {
		return false
	}
	inst := model.Instantiation{Match: midx, Proof: model.None, Gen: model.None, Line: p.st.LinesRead}
	for tok := tk.next(); tok != nil; tok = tk.next() {
		if isSemicolon(tok) {
			if gen, ok := atoi(tk.next()); ok {
				inst.Gen = gen
			}
			break
		}
		if idx, ok := p.lookup(tok); ok {
			inst.Proof = idx
		}
	}
	p.current = model.InstIdx(len(p.trace.Insts))
	p.trace.Insts = append(p.trace.Insts, inst)
	p.trace.Quantifiers[p.trace.Matches[midx].Quant].Instantiations++
	return true
}

// eqExpl handles the explanation forms root, lit, cg, th, ax and unknown.
func (p *Parser) eqExpl(tk *tokenizer) bool {
	from, ok := p.lookup(tk.next())
	kind := tk.next()
	if !ok || kind == nil {
		return false
	}
	eq := model.Equality{From: from, To: model.None, Lit: model.None}
	switch string(kind) {
	case "root":
		eq.Kind = model.EqRoot
	case "lit":
		eq.Kind = model.EqLiteral
		if eq.Lit, ok = p.lookup(tk.next()); !ok {
			return false
		}
	case "cg":
		eq.Kind = model.EqCongruence
		for tok := tk.next(); tok != nil && !isSemicolon(tok); tok = tk.next() {
			if len(tok) != 1 || tok[0] != '(' {
				return false
			}
			a, ok1 := p.lookup(tk.next())
			b, ok2 := p.lookup(tk.next())
			if !ok1 || !ok2 || !isClose(tk.next()) {
				return false
			}
			eq.Pairs = append(eq.Pairs, [2]model.TermIdx{a, b})
		}
		return p.eqTarget(tk, eq, false)
	case "th":
		eq.Kind = model.EqTheory
		eq.Theory = string(tk.next())
	case "ax":
		eq.Kind = model.EqAxiom
	case "unknown":
		eq.Kind = model.EqUnknown
	default:
		return false
	}
	return p.eqTarget(tk, eq, eq.Kind != model.EqRoot)
}

// eqTarget reads the "; #to" suffix and records the equality.
func (p *Parser) eqTarget(tk *tokenizer, eq model.Equality, needSemicolon bool) bool {
	if eq.Kind != model.EqRoot {
		if needSemicolon && !isSemicolon(tk.next()) {
			return false
		}
		to, ok := p.lookup(tk.next())
		if !ok {
			return false
		}
		eq.To = to
	}
	p.trace.EqualityOf[eq.From] = model.EqIdx(len(p.trace.Equalities))
	p.trace.Equalities = append(p.trace.Equalities, eq)
	return true
}
