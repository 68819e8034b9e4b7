package safety

import (
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// token is one lexed token with its byte span in the original text.
type token struct {
	typ        int
	val        string
	start, end int
	depth      int
}

// lex splits text into tokens with offsets. The tokenizer's Position sits one
// past its lookahead character, so a token ends at Position-1. ok is false
// when the text holds a MySQL executable comment, whose inner tokens do not
// map back onto the outer text.
func lex(text string) (toks []token, ok bool) {
	if strings.Contains(text, "/*!") {
		return nil, false
	}
	tkn := sqlparser.NewStringTokenizer(text)
	prevEnd, depth := 0, 0
	for {
		typ, val := tkn.Scan()
		if typ == 0 || typ == sqlparser.LEX_ERROR {
			return toks, typ == 0
		}
		end := min(tkn.Position-1, len(text))
		start := prevEnd
		if typ != sqlparser.STRING && typ != sqlparser.COMMENT {
			start = end - len(val)
		}
		if typ == ')' {
			depth--
		}
		toks = append(toks, token{typ: typ, val: string(val), start: start, end: end, depth: depth})
		if typ == '(' {
			depth++
		}
		prevEnd = end
	}
}

// maskStrings blanks plain string literals so keyword screening only sees
// SQL text. Literals with backslashes stay visible: dialects disagree on
// whether a backslash escapes the closing quote.
func maskStrings(text string) string {
	toks, ok := lex(text)
	if !ok {
		return text
	}
	b := []byte(text)
	for _, t := range toks {
		if t.typ != sqlparser.STRING || strings.ContainsRune(text[t.start:t.end], '\\') {
			continue
		}
		for i := t.start; i < t.end; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// rowcountSpan finds the row count of the statement's outermost LIMIT: the
// last LIMIT at the shallowest nesting depth. For "LIMIT offset, count" the
// second number is the row count.
func rowcountSpan(text string) (token, bool) {
	toks, ok := lex(text)
	if !ok {
		return token{}, false
	}
	at, best := -1, 0
	for i, t := range toks {
		if t.typ != sqlparser.LIMIT {
			continue
		}
		if at < 0 || t.depth <= best {
			at, best = i, t.depth
		}
	}
	if at < 0 || at+1 >= len(toks) || toks[at+1].typ != sqlparser.INTEGRAL {
		return token{}, false
	}
	n := toks[at+1]
	if at+3 < len(toks) && toks[at+2].typ == ',' && toks[at+3].typ == sqlparser.INTEGRAL {
		n = toks[at+3]
	}
	return n, true
}

// lastCodeEnd is the end offset of the last token that is not a comment.
func lastCodeEnd(text string) int {
	toks, ok := lex(text)
	if !ok {
		return len(text)
	}
	end := len(text)
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].typ != sqlparser.COMMENT {
			return toks[i].end
		}
	}
	return end
}

// rewriteRowcount replaces only the LIMIT row count, leaving identifiers,
// quoting and dialect-specific text exactly as written.
func rewriteRowcount(text string, limit int) (string, bool) {
	span, ok := rowcountSpan(text)
	if !ok {
		return "", false
	}
	return text[:span.start] + strconv.Itoa(limit) + text[span.end:], true
}

// appendLimit bounds a statement that has no LIMIT of its own.
func appendLimit(text string, limit int) string {
	end := lastCodeEnd(text)
	return text[:end] + " LIMIT " + strconv.Itoa(limit) + text[end:]
}
