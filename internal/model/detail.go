package model

// InstInfo is the displayable detail of one instantiation graph node.
// Term strings carry "#id:" prefixes unless term ids are being ignored.
type InstInfo struct {
	Inst          InstIdx  `json:"inst" yaml:"inst"`
	Quant         QuantIdx `json:"quant" yaml:"quant"`
	QuantName     string   `json:"quantifier" yaml:"quantifier"`
	Cost          float64  `json:"cost" yaml:"cost"`
	Z3Gen         *int     `json:"z3_gen,omitempty" yaml:"z3_gen,omitempty"`
	Formula       string   `json:"formula" yaml:"formula"`
	BlamedTerms   []string `json:"blamed_terms,omitempty" yaml:"blamed_terms,omitempty"`
	BoundTerms    []string `json:"bound_terms,omitempty" yaml:"bound_terms,omitempty"`
	YieldTerms    []string `json:"yield_terms,omitempty" yaml:"yield_terms,omitempty"`
	EqualityExpls []string `json:"equality_expls,omitempty" yaml:"equality_expls,omitempty"`
	ResultingTerm string   `json:"resulting_term,omitempty" yaml:"resulting_term,omitempty"`
}

// EdgeInfo is the displayable detail of one dependency edge.
type EdgeInfo struct {
	Edge      EdgeIdx   `json:"edge" yaml:"edge"`
	From      InstIdx   `json:"from" yaml:"from"`
	To        InstIdx   `json:"to" yaml:"to"`
	Kind      BlameKind `json:"kind" yaml:"kind"`
	BlameTerm string    `json:"blame_term" yaml:"blame_term"`
}
