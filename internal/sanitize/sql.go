package sanitize

import (
	"context"
	"regexp"
	"strings"

	"github.com/arborsec/arbor/internal/taint"
)

// SQLSanitizer validates dynamic identifiers and escapes LIKE patterns.
// It is not a substitute for parameterized queries: values belong in bind
// parameters, this only covers the two places bind parameters cannot reach
// (identifiers and LIKE wildcards).
type SQLSanitizer struct{}

func (s *SQLSanitizer) Kind() Kind     { return KindSQL }
func (s *SQLSanitizer) Bit() taint.Bit { return taint.SQL }

var sqlInjectionPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"union_select", regexp.MustCompile(`(?i)\bunion\b[\s/*]+\bselect\b`)},
	{"or_true", regexp.MustCompile(`(?i)\bor\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+`)},
	{"comment_terminator", regexp.MustCompile(`(--|#|/\*)`)},
	{"stacked_statement", regexp.MustCompile(`;\s*(?i:drop|delete|insert|update|alter|create)\b`)},
	{"quote_break", regexp.MustCompile(`'\s*(?i:or|and)\s+'`)},
}

// Sanitize runs in one of two modes. Identifier mode (the default) checks the
// value against a caller-supplied allowlist; there is deliberately no default
// allowlist, so a missing one is a hard error rather than a silent pass.
// LIKE mode escapes backslash, percent, and underscore.
func (s *SQLSanitizer) Sanitize(_ context.Context, value string, t taint.Taint, opts Options) (Result, error) {
	mode := opts.SQLMode
	if mode == "" {
		mode = SQLIdentifier
	}

	switch mode {
	case SQLIdentifier:
		if opts.AllowedIdentifiers == nil {
			return Result{}, errf(ReasonMissingOption, "identifier mode requires allowed_identifiers")
		}
		for _, id := range opts.AllowedIdentifiers {
			if value == id {
				return Result{Value: value, Taint: t.With(taint.SQL, taint.Verified)}, nil
			}
		}
		return Result{}, errf(ReasonIdentifierDenied, "identifier %q is not in the allowlist", value)

	case SQLLike:
		escaped := escapeLike(value)
		return Result{Value: escaped, Taint: t.With(taint.SQL, taint.Verified)}, nil

	default:
		return Result{}, errf(ReasonMissingOption, "unknown sql mode %q", mode)
	}
}

func (s *SQLSanitizer) Detect(value string) Detection {
	var patterns []string
	for _, p := range sqlInjectionPatterns {
		if p.re.MatchString(value) {
			patterns = append(patterns, p.name)
		}
	}
	if len(patterns) > 0 {
		return Detection{Patterns: patterns}
	}
	score := 1.0
	if strings.ContainsAny(value, `'";`) {
		score = 0.6
	}
	return Detection{Safe: true, Score: score}
}

// escapeLike escapes LIKE metacharacters, backslash first so that the escape
// character itself cannot be smuggled.
func escapeLike(value string) string {
	v := strings.ReplaceAll(value, `\`, `\\`)
	v = strings.ReplaceAll(v, `%`, `\%`)
	v = strings.ReplaceAll(v, `_`, `\_`)
	return v
}
