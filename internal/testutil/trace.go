// Package testutil builds synthetic Z3 traces for tests.
package testutil

import (
	"fmt"
	"io"
	"strings"
)

// Header declares ax_fg, forall x. f(x) -> f(g(x)), and the seed term f(a).
// Term ids #1 through #8 are used.
const Header = `[tool-version] Z3 4.8.7
[mk-app] #1 a
[mk-var] #2 0
[mk-app] #3 f #2
[mk-pattern] #4 #3
[mk-app] #5 g #2
[mk-app] #6 f #5
[mk-quant] #7 ax_fg 1 #4 #6
[mk-app] #8 f #1
[attach-enode] #8 0
`

// LoopTrace returns a trace where ax_fg is instantiated reps times in a
// chain: instantiation i+1 matches the f(g(...)) term yielded by i.
func LoopTrace(reps int) string {
	var b strings.Builder
	b.WriteString(Header)
	bound, blamed := 1, 8
	next := 9
	for i := 0; i < reps; i++ {
		g, fg := next, next+1
		next += 2
		fmt.Fprintf(&b, "[new-match] 0x%x #7 #4 #%d ; #%d\n", i+1, bound, blamed)
		fmt.Fprintf(&b, "[instance] 0x%x ; %d\n", i+1, i+1)
		fmt.Fprintf(&b, "[mk-app] #%d g #%d\n", g, bound)
		fmt.Fprintf(&b, "[mk-app] #%d f #%d\n", fg, g)
		fmt.Fprintf(&b, "[attach-enode] #%d %d\n", fg, i+1)
		b.WriteString("[end-of-instance]\n")
		bound, blamed = g, fg
	}
	return b.String()
}

// PingPongTrace alternates two quantifiers, ax_pq: p(x) -> q(x) and
// ax_qp: q(x) -> p(h(x)), for rounds full rounds. It also records an
// equality explanation and one equality blame.
func PingPongTrace(rounds int) string {
	var b strings.Builder
	b.WriteString(`[tool-version] Z3 4.12.2
[mk-app] #1 c
[mk-var] #2 0
[mk-app] #3 p #2
[mk-pattern] #4 #3
[mk-app] #5 q #2
[mk-quant] #6 ax_pq 1 #4 #5
[mk-app] #7 q #2
[mk-pattern] #8 #7
[mk-app] #9 h #2
[mk-app] #10 p #9
[mk-quant] #11 ax_qp 1 #8 #10
[mk-app] #12 p #1
[attach-enode] #12 0
[mk-app] #13 d
[eq-expl] #13 lit #12 ; #1
[eq-expl] #1 root
`)
	arg, blamed := 1, 12
	next := 20
	fp := 1
	for i := 0; i < rounds; i++ {
		q := next
		next++
		if i == 0 {
			fmt.Fprintf(&b, "[new-match] 0x%x #6 #4 #%d ; #%d (#13 #1)\n", fp, arg, blamed)
		} else {
			fmt.Fprintf(&b, "[new-match] 0x%x #6 #4 #%d ; #%d\n", fp, arg, blamed)
		}
		fmt.Fprintf(&b, "[instance] 0x%x ; %d\n", fp, 2*i+1)
		fmt.Fprintf(&b, "[mk-app] #%d q #%d\n", q, arg)
		fmt.Fprintf(&b, "[attach-enode] #%d %d\n", q, 2*i+1)
		b.WriteString("[end-of-instance]\n")
		fp++

		h, p := next, next+1
		next += 2
		fmt.Fprintf(&b, "[new-match] 0x%x #11 #8 #%d ; #%d\n", fp, arg, q)
		fmt.Fprintf(&b, "[instance] 0x%x ; %d\n", fp, 2*i+2)
		fmt.Fprintf(&b, "[mk-app] #%d h #%d\n", h, arg)
		fmt.Fprintf(&b, "[mk-app] #%d p #%d\n", p, h)
		fmt.Fprintf(&b, "[attach-enode] #%d %d\n", p, 2*i+2)
		b.WriteString("[end-of-instance]\n")
		fp++
		arg, blamed = h, p
	}
	return b.String()
}

// SameNameTrace declares two distinct quantifiers both named ax and
// instantiates each once.
const SameNameTrace = `[tool-version] Z3 4.8.7
[mk-app] #1 a
[mk-var] #2 0
[mk-app] #3 f #2
[mk-pattern] #4 #3
[mk-app] #5 g #2
[mk-quant] #6 ax 1 #4 #5
[mk-app] #7 k #2
[mk-pattern] #8 #7
[mk-quant] #9 ax 1 #8 #5
[mk-app] #10 f #1
[attach-enode] #10 0
[mk-app] #11 k #1
[attach-enode] #11 0
[new-match] 0x1 #6 #4 #1 ; #10
[instance] 0x1 ; 1
[mk-app] #12 g #1
[end-of-instance]
[new-match] 0x2 #9 #8 #1 ; #11
[instance] 0x2 ; 1
[end-of-instance]
`

// SharedTermTrace builds h(t, t) on itself levels times, a term whose tree
// size doubles with every level, and instantiates one quantifier on it.
func SharedTermTrace(levels int) string {
	var b strings.Builder
	b.WriteString("[tool-version] Z3 4.8.7\n[mk-app] #1 a\n")
	for i := 1; i <= levels; i++ {
		fmt.Fprintf(&b, "[mk-app] #%d h #%d #%d\n", i+1, i, i)
	}
	top := levels + 1
	v, fv, pat, body, q, seed := top+1, top+2, top+3, top+4, top+5, top+6
	fmt.Fprintf(&b, "[mk-var] #%d 0\n", v)
	fmt.Fprintf(&b, "[mk-app] #%d f #%d\n", fv, v)
	fmt.Fprintf(&b, "[mk-pattern] #%d #%d\n", pat, fv)
	fmt.Fprintf(&b, "[mk-app] #%d g #%d\n", body, v)
	fmt.Fprintf(&b, "[mk-quant] #%d ax_h 1 #%d #%d\n", q, pat, body)
	fmt.Fprintf(&b, "[mk-app] #%d f #%d\n", seed, top)
	fmt.Fprintf(&b, "[attach-enode] #%d 0\n", seed)
	fmt.Fprintf(&b, "[new-match] 0x1 #%d #%d #%d ; #%d\n", q, pat, top, seed)
	b.WriteString("[instance] 0x1 ; 1\n[end-of-instance]\n")
	return b.String()
}

// FillerReader yields n copies of line (which must end in a newline)
// without materialising them.
type FillerReader struct {
	line      string
	remaining int
	off       int
}

// NewFillerReader returns a reader of n lines.
func NewFillerReader(n int, line string) *FillerReader {
	return &FillerReader{line: line, remaining: n}
}

func (f *FillerReader) Read(p []byte) (int, error) {
	if f.remaining == 0 {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && f.remaining > 0 {
		c := copy(p[n:], f.line[f.off:])
		n += c
		f.off += c
		if f.off == len(f.line) {
			f.off = 0
			f.remaining--
		}
	}
	return n, nil
}
