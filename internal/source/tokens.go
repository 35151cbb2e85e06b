package source

// tokenizer splits the argument part of a trace line on spaces. Parentheses
// and semicolons are returned as tokens of their own even when they touch
// a neighbouring word, so "(#1 #2)" yields "(", "#1", "#2", ")".
type tokenizer struct {
	line []byte
	pos  int
}

// next returns the next token, or nil at end of line. The returned slice
// aliases the line.
func (t *tokenizer) next() []byte {
	for t.pos < len(t.line) && (t.line[t.pos] == ' ' || t.line[t.pos] == '\t') {
		t.pos++
	}
	if t.pos >= len(t.line) {
		return nil
	}
	start := t.pos
	switch t.line[start] {
	case '(', ')', ';':
		t.pos++
		return t.line[start:t.pos]
	}
	for t.pos < len(t.line) {
		switch t.line[t.pos] {
		case ' ', '\t', '(', ')', ';':
			return t.line[start:t.pos]
		}
		t.pos++
	}
	return t.line[start:t.pos]
}

// isID reports whether tok looks like a term reference such as "#12".
func isID(tok []byte) bool {
	if len(tok) < 2 || tok[0] != '#' {
		return false
	}
	for _, c := range tok[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isSemicolon(tok []byte) bool { return len(tok) == 1 && tok[0] == ';' }

func isClose(tok []byte) bool { return len(tok) == 1 && tok[0] == ')' }

// atoi parses a non-negative decimal without allocating.
func atoi(tok []byte) (int, bool) {
	if len(tok) == 0 || len(tok) > 18 {
		return 0, false
	}
	n := 0
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
