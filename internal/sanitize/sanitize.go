// Package sanitize implements the seven attack-specific sanitizers behind a
// single contract. Every sanitizer is a pure transform: it either returns the
// neutralized value with an updated taint, or a typed error that must surface
// verbatim to the caller. A failed sanitization blocks the unsafe operation;
// there is no best-effort cleaned value.
package sanitize

import (
	"context"
	"sort"

	"github.com/arborsec/arbor/internal/taint"
)

// Kind identifies one sanitizer in the registry.
type Kind string

const (
	KindXSS             Kind = "xss"
	KindSQL             Kind = "sql"
	KindPath            Kind = "path"
	KindPrompt          Kind = "prompt"
	KindSSRF            Kind = "ssrf"
	KindLog             Kind = "log"
	KindDeserialization Kind = "deserialization"
)

// SQLMode selects between the two SQL sanitization modes.
type SQLMode string

const (
	SQLIdentifier SQLMode = "identifier"
	SQLLike       SQLMode = "like"
)

// Format selects the deserialization wire format.
type Format string

const (
	FormatJSON   Format = "json"
	FormatBinary Format = "binary"
)

// Options carries per-call sanitizer parameters. Each sanitizer reads only
// the fields it documents; required fields produce a missing_option error
// when absent.
type Options struct {
	// Path traversal. Required.
	AllowedRoot string

	// SQL identifier mode. Required in identifier mode; there is no default
	// allowlist on purpose.
	AllowedIdentifiers []string
	SQLMode            SQLMode

	// SSRF.
	AllowedSchemes []string
	AllowedPorts   []int
	AllowPrivate   bool

	// Prompt injection.
	Nonce         string
	FailThreshold int

	// Deserialization.
	Format      Format
	MaxDepth    int
	MaxSize     int
	MaxByteSize int64

	// Log injection.
	MaxLength int
	Redact    bool
}

// Result is a successful sanitization outcome.
type Result struct {
	Value string
	Taint taint.Taint

	// Nonce is set by the prompt-injection sanitizer: the delimiter nonce the
	// caller must share with its system instructions.
	Nonce string
}

// Detection is the outcome of a non-mutating probe, for audit use.
type Detection struct {
	Safe     bool
	Score    float64
	Patterns []string
}

// Sanitizer is the common contract shared by all seven sanitizers.
// Sanitize sets exactly one dedicated taint bit on success and never clears
// another. Detect inspects without mutating.
type Sanitizer interface {
	Kind() Kind
	Bit() taint.Bit
	Sanitize(ctx context.Context, value string, t taint.Taint, opts Options) (Result, error)
	Detect(value string) Detection
}

// Registry returns the fixed, ordered table of sanitizers. The set is closed
// and security-reviewed; there is deliberately no runtime plugin loading.
func Registry() []Sanitizer {
	return []Sanitizer{
		&XSSSanitizer{},
		&SQLSanitizer{},
		&PathSanitizer{},
		&PromptSanitizer{},
		&SSRFSanitizer{},
		&LogSanitizer{},
		&DeserializationSanitizer{},
	}
}

// ForKind looks up a sanitizer by kind.
func ForKind(k Kind) (Sanitizer, bool) {
	for _, s := range Registry() {
		if s.Kind() == k {
			return s, true
		}
	}
	return nil, false
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
