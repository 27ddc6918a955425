package engine

import (
	"fmt"
	"io"
	"regexp"
)

// Grammar answers whether a candidate block, taken as a whole, is valid.
// Implementations must use full-match semantics: a candidate that merely
// starts with a valid block is not valid.
type Grammar interface {
	FullMatch(candidate []byte) bool
}

// GrammarFunc adapts an ordinary function to a Grammar.
type GrammarFunc func(candidate []byte) bool

// FullMatch calls f(candidate).
func (f GrammarFunc) FullMatch(candidate []byte) bool { return f(candidate) }

type regexGrammar struct {
	re *regexp.Regexp
}

func (g regexGrammar) FullMatch(candidate []byte) bool {
	return g.re.MatchReader(&byteRunes{b: candidate})
}

func (g regexGrammar) String() string { return g.re.String() }

// byteRunes yields every byte as the rune of the same value, so the regexp
// sees one character per byte and never decodes UTF-8.
type byteRunes struct {
	b []byte
	i int
}

func (r *byteRunes) ReadRune() (rune, int, error) {
	if r.i >= len(r.b) {
		return 0, 0, io.EOF
	}
	c := r.b[r.i]
	r.i++
	return rune(c), 1, nil
}

// CompileGrammar compiles pattern into a Grammar anchored at both ends of
// the candidate. Patterns use RE2 syntax over byte values: each input byte
// is one character, \xff matches the byte 0xFF and {n} counts bytes. A
// literal character above U+00FF in the pattern never matches.
func CompileGrammar(pattern string) (Grammar, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty block pattern", ErrInvalidSpec)
	}
	re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("%w: block pattern %q: %v", ErrInvalidSpec, pattern, err)
	}
	return regexGrammar{re: re}, nil
}
