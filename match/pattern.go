// CLAUDE:SUMMARY Search term compilation: literal and regex modes, case sensitive or not, with unsafe-regex fallback to literal.
package match

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects literal or regular-expression matching and case handling.
type Mode string

const (
	CaseSensitive        Mode = "caseSensitive"
	CaseInsensitive      Mode = "caseInsensitive"
	CaseSensitiveRegex   Mode = "caseSensitiveRegex"
	CaseInsensitiveRegex Mode = "caseInsensitiveRegex"
)

// MaxPatternLen caps regex-mode patterns; longer ones are searched literally.
const MaxPatternLen = 500

// ParseMode returns the mode named s, defaulting to CaseInsensitive.
func ParseMode(s string) Mode {
	switch m := Mode(s); m {
	case CaseSensitive, CaseInsensitive, CaseSensitiveRegex, CaseInsensitiveRegex:
		return m
	}
	return CaseInsensitive
}

func (m Mode) regex() bool {
	return m == CaseSensitiveRegex || m == CaseInsensitiveRegex
}

func (m Mode) folded() bool {
	return m == CaseInsensitive || m == CaseInsensitiveRegex
}

var (
	// A group containing a quantifier, itself quantified: (a+)+, (.*)*, (\w+){2,}.
	nestedQuantifier = regexp.MustCompile(`\([^()]*[+*}][^()]*\)\s*[+*{]`)
	backReference    = regexp.MustCompile(`\\[1-9]|\\k<`)
)

// ErrRejected reports why a regex-mode pattern was searched literally.
type ErrRejected struct {
	Pattern string
	Reason  string
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("match: pattern rejected (%s), searching literally", e.Reason)
}

// Screen checks a regex-mode pattern against the shapes that are refused.
func Screen(pattern string) error {
	switch {
	case len(pattern) > MaxPatternLen:
		return &ErrRejected{Pattern: pattern, Reason: "too long"}
	case nestedQuantifier.MatchString(pattern):
		return &ErrRejected{Pattern: pattern, Reason: "nested quantifier"}
	case backReference.MatchString(pattern):
		return &ErrRejected{Pattern: pattern, Reason: "back-reference"}
	}
	return nil
}

// Compile builds the matcher for term in mode. Regex patterns that fail
// screening or compilation fall back to an escaped literal; the returned
// error explains the fallback and is informational only.
func Compile(term string, mode Mode) (*regexp.Regexp, error) {
	prefix := ""
	if mode.folded() {
		prefix = "(?i)"
	}
	literal := func() *regexp.Regexp {
		return regexp.MustCompile(prefix + regexp.QuoteMeta(term))
	}
	if !mode.regex() {
		return literal(), nil
	}
	if err := Screen(term); err != nil {
		return literal(), err
	}
	re, err := regexp.Compile(prefix + term)
	if err != nil {
		return literal(), &ErrRejected{Pattern: term, Reason: strings.TrimPrefix(err.Error(), "error parsing regexp: ")}
	}
	return re, nil
}
