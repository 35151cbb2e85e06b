package graph

import (
	"strconv"
	"strings"

	"github.com/theirongolddev/qiprof/internal/model"
)

// maxTermNodes caps the nodes one rendered term may visit. Terms are
// shared DAGs, so a tree walk bounded only by depth can be exponential.
const maxTermNodes = 4096

// printer renders terms. With showIDs every application is prefixed by
// its log identifier, e.g. "#9:f(#8:g(#1:a))". env substitutes bound
// variables by index.
type printer struct {
	tr       *model.Trace
	showIDs  bool
	maxDepth int
	env      []model.TermIdx
	left     int // node budget of the term being rendered
}

func (p *printer) term(idx model.TermIdx) string {
	var b strings.Builder
	p.left = maxTermNodes
	p.write(&b, idx, 0)
	return b.String()
}

func (p *printer) write(b *strings.Builder, idx model.TermIdx, depth int) {
	t := p.tr.Term(idx)
	if t == nil {
		b.WriteString("?")
		return
	}
	if depth >= p.maxDepth || p.left <= 0 {
		b.WriteString("...")
		return
	}
	p.left--
	if t.Kind == model.TermVar {
		if t.VarIndex < len(p.env) {
			inner := p.env
			p.env = nil
			p.write(b, inner[t.VarIndex], depth)
			p.env = inner
			return
		}
		b.WriteString(t.Name)
		return
	}
	if p.showIDs {
		b.WriteString(t.ID)
		b.WriteByte(':')
	}
	if t.Kind == model.TermQuant {
		p.writeQuant(b, t, depth)
		return
	}
	b.WriteString(t.Name)
	if len(t.Args) == 0 {
		return
	}
	b.WriteByte('(')
	for i, a := range t.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.left <= 0 {
			b.WriteString("...")
			break
		}
		p.write(b, a, depth+1)
	}
	b.WriteByte(')')
}

func (p *printer) writeQuant(b *strings.Builder, t *model.Term, depth int) {
	q := p.tr.Quantifiers[t.Quant]
	b.WriteString("FORALL ")
	for i := 0; i < q.NumVars; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("qvar_" + strconv.Itoa(i))
	}
	for _, pat := range q.Patterns {
		b.WriteString(" {")
		pt := p.tr.Term(pat)
		if pt != nil && pt.Kind == model.TermPattern {
			for i, a := range pt.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				p.write(b, a, depth+1)
			}
		} else {
			p.write(b, pat, depth+1)
		}
		b.WriteByte('}')
	}
	b.WriteString(" . ")
	p.write(b, q.Body, depth+1)
}

// pattern is a term shape where wild marks positions that differed
// between the folded terms.
type pattern struct {
	name string
	args []*pattern
	wild bool
}

// patternOf unfolds idx into a pattern at most depth deep, spending one
// unit of *left per node. Positions past either bound are wild.
func patternOf(tr *model.Trace, idx model.TermIdx, depth int, left *int) *pattern {
	t := tr.Term(idx)
	if t == nil || depth <= 0 || *left <= 0 {
		return &pattern{wild: true}
	}
	*left--
	p := &pattern{name: t.Name}
	for _, a := range t.Args {
		p.args = append(p.args, patternOf(tr, a, depth-1, left))
	}
	return p
}

func fold(a, b *pattern) *pattern {
	if a.wild || b.wild || a.name != b.name || len(a.args) != len(b.args) {
		return &pattern{wild: true}
	}
	out := &pattern{name: a.name, args: make([]*pattern, len(a.args))}
	for i := range a.args {
		out.args[i] = fold(a.args[i], b.args[i])
	}
	return out
}

func (p *pattern) String() string {
	var b strings.Builder
	p.write(&b)
	return b.String()
}

func (p *pattern) write(b *strings.Builder) {
	if p.wild {
		b.WriteByte('_')
		return
	}
	b.WriteString(p.name)
	if len(p.args) == 0 {
		return
	}
	b.WriteByte('(')
	for i, a := range p.args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.write(b)
	}
	b.WriteByte(')')
}
