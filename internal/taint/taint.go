package taint

import (
	"sort"
	"strings"
)

// Confidence expresses how much scrutiny a value has survived.
type Confidence string

const (
	Unverified Confidence = "unverified"
	Plausible  Confidence = "plausible"
	Verified   Confidence = "verified"
)

// confRank maps confidence to a comparable integer for monotonic ordering.
var confRank = map[Confidence]int{
	Unverified: 0,
	Plausible:  1,
	Verified:   2,
}

// AtLeast reports whether c is at least as strong as other.
func (c Confidence) AtLeast(other Confidence) bool {
	return confRank[c] >= confRank[other]
}

// Bit identifies one sanitizer in the sanitization mask.
type Bit uint8

const (
	XSS Bit = 1 << iota
	SQL
	Path
	Prompt
	SSRF
	Log
	Deserialization
)

var bitNames = map[Bit]string{
	XSS:             "xss",
	SQL:             "sql",
	Path:            "path",
	Prompt:          "prompt",
	SSRF:            "ssrf",
	Log:             "log",
	Deserialization: "deserialization",
}

func (b Bit) String() string {
	if name, ok := bitNames[b]; ok {
		return name
	}
	return "unknown"
}

// Taint records which sanitizers a value has passed through and the
// confidence of the last one applied. The mask is OR-accumulated and
// never cleared: once a bit is set it persists for the value's lifetime.
type Taint struct {
	Confidence    Confidence `json:"confidence"`
	Sanitizations Bit        `json:"sanitizations"`
}

// Untrusted returns the zero-trust starting taint for external input.
func Untrusted() Taint {
	return Taint{Confidence: Unverified}
}

// With returns a copy with the given bit added and confidence replaced.
// The mask of the result is always a superset of the receiver's mask.
func (t Taint) With(b Bit, c Confidence) Taint {
	return Taint{
		Confidence:    c,
		Sanitizations: t.Sanitizations | b,
	}
}

// Has reports whether the given sanitization bit is set.
func (t Taint) Has(b Bit) bool {
	return t.Sanitizations&b != 0
}

// String renders the taint for audit output, e.g. "plausible[prompt,xss]".
func (t Taint) String() string {
	var names []string
	for b, name := range bitNames {
		if t.Has(b) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return string(t.Confidence) + "[" + strings.Join(names, ",") + "]"
}
