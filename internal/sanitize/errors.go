package sanitize

import (
	"fmt"
	"strings"
)

// Reason is the machine-readable sanitizer error code.
type Reason string

const (
	ReasonBlockedScheme     Reason = "blocked_scheme"
	ReasonBlockedPort       Reason = "blocked_port"
	ReasonMetadataEndpoint  Reason = "metadata_endpoint"
	ReasonPrivateIP         Reason = "private_ip"
	ReasonDNSFailed         Reason = "dns_resolution_failed"
	ReasonPathTraversal     Reason = "path_traversal"
	ReasonPromptInjection   Reason = "prompt_injection_detected"
	ReasonMaxDepthExceeded  Reason = "max_depth_exceeded"
	ReasonMaxSizeExceeded   Reason = "max_size_exceeded"
	ReasonUnsafeTerm        Reason = "unsafe_term"
	ReasonJSONDecode        Reason = "json_decode_error"
	ReasonIdentifierDenied  Reason = "identifier_not_allowed"
	ReasonMissingOption     Reason = "missing_option"
	ReasonTooLarge          Reason = "too_large"
	ReasonInvalidURL        Reason = "invalid_url"
)

// Error is a typed sanitizer failure. Reason is stable; Detail and Patterns
// are for humans and audit logs.
type Error struct {
	Reason   Reason
	Detail   string
	Patterns []string
}

func (e *Error) Error() string {
	if len(e.Patterns) > 0 {
		return fmt.Sprintf("%s: %s [%s]", e.Reason, e.Detail, strings.Join(e.Patterns, ", "))
	}
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func errf(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the Reason from an error, or "" if it is not a sanitizer
// error.
func ReasonOf(err error) Reason {
	if se, ok := err.(*Error); ok {
		return se.Reason
	}
	return ""
}
