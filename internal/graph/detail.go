package graph

import (
	"fmt"

	"github.com/theirongolddev/qiprof/internal/model"
)

func (ig *InstGraph) printer(ignoreTermIDs bool) *printer {
	return &printer{tr: ig.trace, showIDs: !ignoreTermIDs, maxDepth: ig.opts.MaxTermDepth}
}

// NodeDetail renders the detail of one instantiation.
func (ig *InstGraph) NodeDetail(id model.InstIdx, ignoreTermIDs bool) (model.InstInfo, error) {
	tr := ig.trace
	inst := tr.Inst(id)
	if inst == nil {
		return model.InstInfo{}, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	m := &tr.Matches[inst.Match]
	q := &tr.Quantifiers[m.Quant]
	p := ig.printer(ignoreTermIDs)

	info := model.InstInfo{
		Inst:      id,
		Quant:     m.Quant,
		QuantName: q.Name,
		Cost:      ig.cost[id],
		Formula:   p.term(q.Term),
	}
	if inst.Gen != model.None {
		gen := inst.Gen
		info.Z3Gen = &gen
	}

	for _, b := range m.Blamed {
		switch b.Kind {
		case model.BlameTerm:
			info.BlamedTerms = append(info.BlamedTerms, p.term(b.Term))
		case model.BlameEquality:
			info.BlamedTerms = append(info.BlamedTerms, p.term(b.Lhs)+" = "+p.term(b.Rhs))
			for _, side := range []model.TermIdx{b.Lhs, b.Rhs} {
				if eq := tr.Explanation(side); eq != nil {
					info.EqualityExpls = append(info.EqualityExpls, p.equality(eq))
				}
			}
		}
	}
	for i, bound := range m.Bindings {
		info.BoundTerms = append(info.BoundTerms, fmt.Sprintf("qvar_%d := %s", i, p.term(bound)))
	}
	for _, y := range inst.Yields {
		info.YieldTerms = append(info.YieldTerms, p.term(y))
	}

	p.env = m.Bindings
	info.ResultingTerm = p.term(q.Body)
	return info, nil
}

// EdgeDetail renders the detail of one dependency edge.
func (ig *InstGraph) EdgeDetail(id model.EdgeIdx, ignoreTermIDs bool) (model.EdgeInfo, error) {
	e, ok := ig.Edge(id)
	if !ok {
		return model.EdgeInfo{}, fmt.Errorf("%w: %d", ErrUnknownEdge, id)
	}
	p := ig.printer(ignoreTermIDs)
	info := model.EdgeInfo{Edge: id, From: e.From, To: e.To, Kind: e.Blame.Kind}
	if e.Blame.Kind == model.BlameTerm {
		info.BlameTerm = p.term(e.Blame.Term)
	} else {
		info.BlameTerm = p.term(e.Blame.Lhs) + " = " + p.term(e.Blame.Rhs)
	}
	return info, nil
}

func (p *printer) equality(eq *model.Equality) string {
	from := p.term(eq.From)
	switch eq.Kind {
	case model.EqRoot:
		return from + " (root)"
	case model.EqLiteral:
		return fmt.Sprintf("%s = %s (lit %s)", from, p.term(eq.To), p.term(eq.Lit))
	case model.EqCongruence:
		s := fmt.Sprintf("%s = %s (cg", from, p.term(eq.To))
		for _, pair := range eq.Pairs {
			s += fmt.Sprintf(" %s=%s", p.term(pair[0]), p.term(pair[1]))
		}
		return s + ")"
	case model.EqTheory:
		return fmt.Sprintf("%s = %s (th %s)", from, p.term(eq.To), eq.Theory)
	default:
		return fmt.Sprintf("%s = %s (%s)", from, p.term(eq.To), eq.Kind)
	}
}
