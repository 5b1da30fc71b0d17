// Package translate rewrites repository URLs through an ordered list of
// regular-expression rules.
//
// A rule pattern must match the whole URL unless the rule is marked partial,
// in which case every non-overlapping match is replaced. Replacement
// templates reference capture groups as $1, ${1}, ${name}; $$ is a literal
// dollar sign. Bytes outside replaced spans are copied unchanged, so escapes
// and non-ASCII text the rule did not touch survive exactly.
package translate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidPattern marks a rule whose pattern does not compile.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrInvalidReplacement marks a replacement template that references an
	// undefined group or is otherwise malformed.
	ErrInvalidReplacement = errors.New("invalid replacement")
)

// Rule is one pattern/replacement pair.
type Rule struct {
	Name        string
	Pattern     string
	Replacement string
	// Partial rules replace matches anywhere in the URL instead of requiring
	// the pattern to match the full string.
	Partial bool
}

// ConfigError reports a rule that cannot be compiled.
type ConfigError struct {
	Rule        string
	Pattern     string
	Replacement string
	Err         error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("translation rule %s (pattern %q, replacement %q): %v", e.Rule, e.Pattern, e.Replacement, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Translator applies compiled rules in order.
type Translator struct {
	rules []compiledRule
}

type compiledRule struct {
	Rule
	re     *regexp.Regexp
	pieces []piece
}

// piece is either literal text or a capture group reference (group >= 0).
type piece struct {
	literal string
	group   int
}

// Compile validates and compiles rules. The first invalid rule aborts
// compilation with a *ConfigError.
func Compile(rules []Rule) (*Translator, error) {
	t := &Translator{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("#%d", i+1)
		}
		cr, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		t.rules = append(t.rules, cr)
	}
	return t, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(rules ...Rule) *Translator {
	t, err := Compile(rules)
	if err != nil {
		panic(err)
	}
	return t
}

func compileRule(r Rule) (compiledRule, error) {
	fail := func(kind error, format string, args ...any) (compiledRule, error) {
		return compiledRule{}, &ConfigError{
			Rule:        r.Name,
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
			Err:         fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)),
		}
	}

	if r.Pattern == "" {
		return fail(ErrInvalidPattern, "empty pattern")
	}
	expr := r.Pattern
	if !r.Partial {
		expr = "^(?:" + expr + ")$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		// Report the error against the pattern the user wrote.
		if _, perr := regexp.Compile(r.Pattern); perr != nil {
			err = perr
		}
		return fail(ErrInvalidPattern, "%v", err)
	}

	pieces, err := parseTemplate(r.Replacement, re)
	if err != nil {
		return fail(ErrInvalidReplacement, "%v", err)
	}
	return compiledRule{Rule: r, re: re, pieces: pieces}, nil
}

func parseTemplate(tmpl string, re *regexp.Regexp) ([]piece, error) {
	var (
		pieces []piece
		lit    strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			pieces = append(pieces, piece{literal: lit.String(), group: -1})
			lit.Reset()
		}
	}
	groups := re.NumSubexp()

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '$' {
			lit.WriteByte(c)
			continue
		}
		if i+1 >= len(tmpl) {
			return nil, fmt.Errorf("dangling '$' at end of template (use $$ for a literal dollar)")
		}

		var (
			name string
			next = tmpl[i+1]
		)
		switch {
		case next == '$':
			lit.WriteByte('$')
			i++
			continue
		case next == '{':
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated ${ at offset %d", i)
			}
			name = tmpl[i+2 : i+2+end]
			i += 2 + end
		case isDigit(next):
			j := i + 1
			for j < len(tmpl) && isDigit(tmpl[j]) {
				j++
			}
			name = tmpl[i+1 : j]
			i = j - 1
		default:
			return nil, fmt.Errorf("unexpected %q after '$' at offset %d (use $$ for a literal dollar)", next, i)
		}

		idx, err := groupIndex(name, re, groups)
		if err != nil {
			return nil, err
		}
		flush()
		pieces = append(pieces, piece{group: idx})
	}
	flush()
	return pieces, nil
}

func groupIndex(name string, re *regexp.Regexp, groups int) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("empty group reference")
	}
	if allDigits(name) {
		n := 0
		for i := 0; i < len(name); i++ {
			n = n*10 + int(name[i]-'0')
			if n > groups {
				return 0, fmt.Errorf("group $%s is not defined (pattern has %d groups)", name, groups)
			}
		}
		return n, nil
	}
	if idx := re.SubexpIndex(name); idx > 0 {
		return idx, nil
	}
	return 0, fmt.Errorf("group ${%s} is not defined", name)
}

// Translate applies every rule in order and returns the rewritten URL.
func (t *Translator) Translate(url string) string {
	for i := range t.rules {
		url = t.rules[i].apply(url)
	}
	return url
}

// Len returns the number of rules.
func (t *Translator) Len() int {
	return len(t.rules)
}

func (r *compiledRule) apply(s string) string {
	if !r.Partial {
		m := r.re.FindStringSubmatchIndex(s)
		if m == nil {
			return s
		}
		var b strings.Builder
		r.expand(&b, s, m)
		return b.String()
	}

	matches := r.re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		r.expand(&b, s, m)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func (r *compiledRule) expand(b *strings.Builder, s string, m []int) {
	for _, p := range r.pieces {
		if p.group < 0 {
			b.WriteString(p.literal)
			continue
		}
		// Unmatched optional groups report -1 and expand to nothing.
		if start := m[2*p.group]; start >= 0 {
			b.WriteString(s[start:m[2*p.group+1]])
		}
	}
}

// Translate compiles rules and applies them to url in one step.
func Translate(url string, rules []Rule) (string, error) {
	t, err := Compile(rules)
	if err != nil {
		return "", err
	}
	return t.Translate(url), nil
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
