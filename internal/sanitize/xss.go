package sanitize

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/arborsec/arbor/internal/taint"
)

// maxDecodeRounds bounds iterative URL-decoding. Three rounds defeat
// double- and triple-encoding without looping on adversarial input.
const maxDecodeRounds = 3

var (
	unicodeEscapeRe = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)
	scriptBlockRe   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	scriptOpenRe    = regexp.MustCompile(`(?i)<script\b[^>]*>`)
	scriptCloseRe   = regexp.MustCompile(`(?i)</script\s*>`)
	jsURIRe         = regexp.MustCompile(`(?i)j\s*a\s*v\s*a\s*s\s*c\s*r\s*i\s*p\s*t\s*:`)
	vbURIRe         = regexp.MustCompile(`(?i)vbscript\s*:`)
	dataHTMLRe      = regexp.MustCompile(`(?i)data\s*:\s*text/html`)
	eventHandlerRe  = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	cssExpressionRe = regexp.MustCompile(`(?i)expression\s*\(`)
)

// XSSSanitizer neutralizes markup injection. The pipeline decodes first
// (iterative URL-decode until stable, then \uXXXX normalization) so that
// double-encoded payloads cannot slip past the later stages, then strips
// script blocks and neutralizes javascript:/vbscript: URIs, inline event
// handlers, and CSS expression() on the decoded text, and entity-encodes
// the five critical characters last.
//
// The upstream pipeline encoded before stripping, which left the strip stage
// operating on already-escaped text; the stages here run strip-then-encode so
// each one sees the form it is written against. Re-sanitizing output never
// introduces an unescaped critical character.
type XSSSanitizer struct{}

func (s *XSSSanitizer) Kind() Kind     { return KindXSS }
func (s *XSSSanitizer) Bit() taint.Bit { return taint.XSS }

func (s *XSSSanitizer) Sanitize(_ context.Context, value string, t taint.Taint, _ Options) (Result, error) {
	decoded := decodeFully(value)

	cleaned := scriptBlockRe.ReplaceAllString(decoded, "")
	cleaned = scriptOpenRe.ReplaceAllString(cleaned, "")
	cleaned = scriptCloseRe.ReplaceAllString(cleaned, "")
	cleaned = jsURIRe.ReplaceAllString(cleaned, "blocked:")
	cleaned = vbURIRe.ReplaceAllString(cleaned, "blocked:")
	cleaned = dataHTMLRe.ReplaceAllString(cleaned, "blocked:text/html")
	cleaned = eventHandlerRe.ReplaceAllString(cleaned, "")
	cleaned = cssExpressionRe.ReplaceAllString(cleaned, "blocked(")

	encoded := encodeCritical(cleaned)

	return Result{
		Value: encoded,
		Taint: t.With(taint.XSS, taint.Verified),
	}, nil
}

func (s *XSSSanitizer) Detect(value string) Detection {
	decoded := decodeFully(value)
	var patterns []string
	for name, re := range map[string]*regexp.Regexp{
		"script_block":   scriptOpenRe,
		"javascript_uri": jsURIRe,
		"vbscript_uri":   vbURIRe,
		"data_html_uri":  dataHTMLRe,
		"event_handler":  eventHandlerRe,
		"css_expression": cssExpressionRe,
	} {
		if re.MatchString(decoded) {
			patterns = append(patterns, name)
		}
	}
	if len(patterns) > 0 {
		return Detection{Patterns: sortedCopy(patterns)}
	}
	score := 1.0
	if strings.ContainsAny(decoded, "<>") {
		score = 0.7
	}
	return Detection{Safe: true, Score: score}
}

// decodeFully applies up to maxDecodeRounds of URL-decoding until the value
// is stable, then normalizes \uXXXX escapes.
func decodeFully(value string) string {
	cur := value
	for i := 0; i < maxDecodeRounds; i++ {
		next, err := url.PathUnescape(cur)
		if err != nil || next == cur {
			break
		}
		cur = next
	}
	return unicodeEscapeRe.ReplaceAllStringFunc(cur, func(m string) string {
		code, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(code))
	})
}

// encodeCritical entity-encodes & < > " ' (ampersand first).
func encodeCritical(value string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	return r.Replace(value)
}
