package source

import (
	"errors"
	"strings"
	"testing"

	"github.com/theirongolddev/qiprof/internal/model"
	"github.com/theirongolddev/qiprof/internal/testutil"
)

func parseAll(t *testing.T, text string) *model.Trace {
	t.Helper()
	p := NewStreamParser(strings.NewReader(text))
	outcome, err := p.ProcessUntil(func(ReaderState) bool { return true })
	if err != nil {
		t.Fatalf("ProcessUntil: %v", err)
	}
	if outcome != Finished {
		t.Fatalf("outcome = %v, want finished", outcome)
	}
	return p.TakeResult()
}

func TestParse_LoopTrace(t *testing.T) {
	tr := parseAll(t, testutil.LoopTrace(3))

	if tr.Version != "Z3 4.8.7" {
		t.Errorf("Version = %q, want %q", tr.Version, "Z3 4.8.7")
	}
	if len(tr.Quantifiers) != 1 {
		t.Fatalf("Quantifiers = %d, want 1", len(tr.Quantifiers))
	}
	q := tr.Quantifiers[0]
	if q.Name != "ax_fg" || q.NumVars != 1 || len(q.Patterns) != 1 {
		t.Errorf("quantifier = %+v", q)
	}
	if q.Instantiations != 3 {
		t.Errorf("Instantiations = %d, want 3", q.Instantiations)
	}
	if len(tr.Insts) != 3 {
		t.Fatalf("Insts = %d, want 3", len(tr.Insts))
	}
	if tr.ParseErrors != 0 {
		t.Errorf("ParseErrors = %d, want 0", tr.ParseErrors)
	}

	second := tr.Insts[1]
	if second.Gen != 2 {
		t.Errorf("Gen = %d, want 2", second.Gen)
	}
	if len(second.Yields) != 2 {
		t.Fatalf("Yields = %d, want 2", len(second.Yields))
	}
	m := tr.Matches[second.Match]
	if len(m.Blamed) != 1 || m.Blamed[0].Kind != model.BlameTerm {
		t.Fatalf("Blamed = %+v", m.Blamed)
	}
	creator := tr.Terms[m.Blamed[0].Term].CreatedBy
	if creator != 0 {
		t.Errorf("blamed term created by %d, want 0", creator)
	}
	if tr.Lines == 0 || tr.Bytes == 0 {
		t.Errorf("Lines/Bytes not recorded: %d/%d", tr.Lines, tr.Bytes)
	}
}

func TestParse_EqualitiesAndEqualityBlame(t *testing.T) {
	tr := parseAll(t, testutil.PingPongTrace(2))

	if len(tr.Insts) != 4 {
		t.Fatalf("Insts = %d, want 4", len(tr.Insts))
	}
	if len(tr.Equalities) != 2 {
		t.Fatalf("Equalities = %d, want 2", len(tr.Equalities))
	}
	first := tr.Matches[tr.Insts[0].Match]
	var eq *model.Blame
	for i := range first.Blamed {
		if first.Blamed[i].Kind == model.BlameEquality {
			eq = &first.Blamed[i]
		}
	}
	if eq == nil {
		t.Fatal("no equality blame on first match")
	}
	expl := tr.Explanation(eq.Lhs)
	if expl == nil || expl.Kind != model.EqLiteral {
		t.Fatalf("Explanation(lhs) = %+v, want literal", expl)
	}
	if got := tr.Terms[expl.To].Name; got != "c" {
		t.Errorf("explanation target = %q, want c", got)
	}

	usage := tr.Usage()
	if len(usage) != 2 || usage[0].Instantiations != 2 {
		t.Errorf("Usage = %+v", usage)
	}
}

func TestParse_MalformedLinesCounted(t *testing.T) {
	text := strings.Join([]string{
		"[mk-app] #1 a",
		"[mk-app] #2 f #99",       // unknown argument
		"[mk-var] #3 x",           // non-numeric index
		"[instance] 0xdead ; 1",   // unknown fingerprint
		"[mk-app broken",          // no closing bracket
		"[push] 1",                // unknown tag, ignored
		"not a trace line at all", // ignored
	}, "\n") + "\n"

	tr := parseAll(t, text)
	if tr.ParseErrors != 4 {
		t.Errorf("ParseErrors = %d, want 4", tr.ParseErrors)
	}
	if len(tr.Terms) != 1 {
		t.Errorf("Terms = %d, want 1", len(tr.Terms))
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	text := "[mk-app] #1 a\n[mk-app] #2 \xff\xfe\n"
	p := NewStreamParser(strings.NewReader(text))
	_, err := p.ProcessUntil(func(ReaderState) bool { return true })
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("err = %v, want ErrMalformedInput", err)
	}
}

func TestProcessUntil_Cadence(t *testing.T) {
	const lines = 1000
	p := NewStreamParser(testutil.NewFillerReader(lines, "[push] 1\n"), WithCheckEvery(100))

	var calls []ReaderState
	outcome, err := p.ProcessUntil(func(st ReaderState) bool {
		calls = append(calls, st)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != Finished {
		t.Errorf("outcome = %v, want finished", outcome)
	}
	if len(calls) != 10 {
		t.Fatalf("predicate calls = %d, want 10", len(calls))
	}
	for i, st := range calls {
		want := int64(i+1) * 100
		if st.LinesRead != want {
			t.Errorf("call %d LinesRead = %d, want %d", i, st.LinesRead, want)
		}
		if st.BytesRead != want*int64(len("[push] 1\n")) {
			t.Errorf("call %d BytesRead = %d", i, st.BytesRead)
		}
	}
}

func TestProcessUntil_StopAndResume(t *testing.T) {
	p := NewStreamParser(testutil.NewFillerReader(500, "[push] 1\n"), WithCheckEvery(100))

	outcome, err := p.ProcessUntil(func(st ReaderState) bool { return st.LinesRead < 200 })
	if err != nil {
		t.Fatal(err)
	}
	if outcome != TimedOut {
		t.Fatalf("outcome = %v, want timed-out", outcome)
	}
	if got := p.State().LinesRead; got != 200 {
		t.Errorf("LinesRead = %d, want 200", got)
	}

	outcome, err = p.ProcessUntil(func(ReaderState) bool { return true })
	if err != nil {
		t.Fatal(err)
	}
	if outcome != Finished || p.State().LinesRead != 500 {
		t.Errorf("resume: outcome=%v lines=%d", outcome, p.State().LinesRead)
	}
}

func TestParse_LongLine(t *testing.T) {
	name := strings.Repeat("x", 600*1024)
	tr := parseAll(t, "[mk-app] #1 "+name+"\n[mk-app] #2 f #1\n")
	if len(tr.Terms) != 2 || tr.Terms[0].Name != name {
		t.Fatalf("long line not parsed: %d terms", len(tr.Terms))
	}
}

func TestParse_NoTrailingNewline(t *testing.T) {
	tr := parseAll(t, "[mk-app] #1 a\n[mk-app] #2 b")
	if len(tr.Terms) != 2 {
		t.Errorf("Terms = %d, want 2", len(tr.Terms))
	}
	if tr.Lines != 2 {
		t.Errorf("Lines = %d, want 2", tr.Lines)
	}
}

func TestBufferParserMatchesStream(t *testing.T) {
	text := testutil.LoopTrace(5)
	a := parseAll(t, text)

	p := NewBufferParser([]byte(text))
	if _, err := p.ProcessUntil(func(ReaderState) bool { return true }); err != nil {
		t.Fatal(err)
	}
	b := p.TakeResult()
	if len(a.Insts) != len(b.Insts) || len(a.Terms) != len(b.Terms) || a.Bytes != b.Bytes {
		t.Errorf("stream and buffer differ: %d/%d insts, %d/%d terms", len(a.Insts), len(b.Insts), len(a.Terms), len(b.Terms))
	}
}

func TestTokenizer(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{" 0x1 #7 #4 #1 ; #8", []string{"0x1", "#7", "#4", "#1", ";", "#8"}},
		{" #5 ;(#1 #2)", []string{"#5", ";", "(", "#1", "#2", ")"}},
		{"", nil},
		{"   ", nil},
	}
	for _, tt := range tests {
		tk := tokenizer{line: []byte(tt.in)}
		var got []string
		for tok := tk.next(); tok != nil; tok = tk.next() {
			got = append(got, string(tok))
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("tokens(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func FuzzProcessLine(f *testing.F) {
	f.Add([]byte("[mk-app] #1 a"))
	f.Add([]byte("[new-match] 0x1 #7 #4 #1 ; #8 (#1 #2)"))
	f.Add([]byte("[eq-expl] #1 cg (#2 #3) ; #4"))
	f.Add([]byte("[instance] 0x1 #9 ; 3"))
	f.Add([]byte("[mk-quant] #7 q 1 #4"))
	f.Add([]byte("["))

	f.Fuzz(func(t *testing.T, line []byte) {
		p := NewStreamParser(strings.NewReader(testutil.Header))
		if _, err := p.ProcessUntil(func(ReaderState) bool { return true }); err != nil {
			t.Fatal(err)
		}
		p.processLine(line) // must not panic
	})
}
