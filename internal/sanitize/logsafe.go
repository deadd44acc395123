package sanitize

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/arborsec/arbor/internal/redact"
	"github.com/arborsec/arbor/internal/taint"
)

// DefaultMaxLogLength caps sanitized log values when no MaxLength is given.
const DefaultMaxLogLength = 1024

var ansiEscapeRe = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[ -/]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[@-Z\\-_])`)

// LogSanitizer neutralizes log forging: CR/LF injection, ANSI terminal
// escapes, and raw control characters. Optionally masks credentials via the
// redact package.
type LogSanitizer struct{}

func (s *LogSanitizer) Kind() Kind     { return KindLog }
func (s *LogSanitizer) Bit() taint.Bit { return taint.Log }

func (s *LogSanitizer) Sanitize(_ context.Context, value string, t taint.Taint, opts Options) (Result, error) {
	cleaned := ansiEscapeRe.ReplaceAllString(value, "")

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		switch {
		case r == '\r' || r == '\n':
			b.WriteByte(' ')
		case r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			// drop remaining control characters
		default:
			b.WriteRune(r)
		}
	}
	cleaned = b.String()

	if opts.Redact {
		cleaned = redact.Credentials(cleaned)
	}

	max := opts.MaxLength
	if max <= 0 {
		max = DefaultMaxLogLength
	}
	if len(cleaned) > max {
		// Back up to a rune boundary so the cut never emits invalid UTF-8.
		cut := max
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut] + "...[truncated]"
	}

	return Result{Value: cleaned, Taint: t.With(taint.Log, taint.Verified)}, nil
}

func (s *LogSanitizer) Detect(value string) Detection {
	var patterns []string
	if strings.ContainsAny(value, "\r\n") {
		patterns = append(patterns, "crlf_injection")
	}
	if ansiEscapeRe.MatchString(value) {
		patterns = append(patterns, "ansi_escape")
	}
	if redact.ContainsCredentials(value) {
		patterns = append(patterns, "credential_material")
	}
	if len(patterns) > 0 {
		return Detection{Patterns: patterns}
	}
	return Detection{Safe: true, Score: 1.0}
}
