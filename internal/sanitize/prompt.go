package sanitize

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/arborsec/arbor/internal/taint"
)

// DefaultFailThreshold is the number of distinct high-risk phrase matches at
// which the prompt sanitizer refuses the value instead of wrapping it.
const DefaultFailThreshold = 2

// highRiskPhrases are instruction-override patterns. Matching is
// probabilistic by nature: a match count below the threshold still wraps the
// value, it just never certifies more than plausible confidence.
var highRiskPhrases = []struct {
	name string
	re   *regexp.Regexp
}{
	{"ignore_instructions", regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\b[\s\w]{0,30}\b(previous|prior|above|all|earlier)\b[\s\w]{0,20}\binstructions?\b`)},
	{"new_instructions", regexp.MustCompile(`(?i)\bnew\s+instructions?\s*:`)},
	{"role_reassignment", regexp.MustCompile(`(?i)\byou\s+are\s+now\b|\bact\s+as\s+(?:a|an|the)\b|\bpretend\s+(?:to\s+be|you\s+are)\b`)},
	{"system_prompt_probe", regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output)\b[\s\w]{0,30}\b(system\s+prompt|instructions)\b`)},
	{"developer_mode", regexp.MustCompile(`(?i)\bdeveloper\s+mode\b|\bjailbreak\b|\bdo\s+anything\s+now\b`)},
	{"dan_persona", regexp.MustCompile(`\bDAN\b`)},
	{"safety_override", regexp.MustCompile(`(?i)\b(override|disable|bypass|turn\s+off)\b[\s\w]{0,30}\b(safety|filter|guardrail|restriction)s?\b`)},
	{"delimiter_forgery", regexp.MustCompile(`(?i)</?\s*(system|assistant|untrusted)[->]`)},
}

// PromptSanitizer wraps untrusted text in nonce-tagged delimiters so the
// consuming system prompt can mark everything inside as data. The nonce is
// shared with the system instructions; an attacker who cannot predict it
// cannot forge a closing tag. A declared attack (distinct high-risk matches
// at or above the threshold) fails closed with a typed error rather than
// being "neutralized"; neutralizing an active injection attempt is a
// confidence claim this sanitizer must never make.
type PromptSanitizer struct{}

func (s *PromptSanitizer) Kind() Kind     { return KindPrompt }
func (s *PromptSanitizer) Bit() taint.Bit { return taint.Prompt }

func (s *PromptSanitizer) Sanitize(_ context.Context, value string, t taint.Taint, opts Options) (Result, error) {
	threshold := opts.FailThreshold
	if threshold <= 0 {
		threshold = DefaultFailThreshold
	}

	matched := matchHighRisk(value)
	if len(matched) >= threshold {
		return Result{}, &Error{
			Reason:   ReasonPromptInjection,
			Detail:   fmt.Sprintf("%d distinct high-risk phrases (threshold %d)", len(matched), threshold),
			Patterns: matched,
		}
	}

	nonce := opts.Nonce
	if nonce == "" {
		var err error
		nonce, err = newNonce()
		if err != nil {
			return Result{}, errf(ReasonPromptInjection, "nonce generation failed: %v", err)
		}
	}

	openTag := fmt.Sprintf("<untrusted-%s>", nonce)
	closeTag := fmt.Sprintf("</untrusted-%s>", nonce)

	// A caller-supplied nonce may already appear in hostile input; strip any
	// embedded delimiter so the closing tag cannot be forged.
	body := strings.ReplaceAll(value, openTag, "")
	body = strings.ReplaceAll(body, closeTag, "")

	wrapped := openTag + "\n" + body + "\n" + closeTag

	// Never verified. Prompt-injection screening is probabilistic; plausible
	// is the ceiling regardless of the input's prior confidence.
	return Result{
		Value: wrapped,
		Taint: t.With(taint.Prompt, taint.Plausible),
		Nonce: nonce,
	}, nil
}

func (s *PromptSanitizer) Detect(value string) Detection {
	matched := matchHighRisk(value)
	if len(matched) > 0 {
		return Detection{Patterns: matched}
	}
	return Detection{Safe: true, Score: 0.9}
}

// matchHighRisk returns the names of distinct high-risk phrases present.
func matchHighRisk(value string) []string {
	var matched []string
	for _, p := range highRiskPhrases {
		if p.re.MatchString(value) {
			matched = append(matched, p.name)
		}
	}
	return matched
}

func newNonce() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
