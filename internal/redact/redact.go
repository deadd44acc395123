// Package redact masks credential material in free text before it reaches
// log sinks or webhook payloads.
package redact

import "regexp"

// Mask is what a redacted credential is replaced with.
const Mask = "[REDACTED]"

// Compiled patterns for credential material.
var (
	// key=value / key: value pairs where the key suggests a secret.
	credKVRe = regexp.MustCompile(`(?i)\b((?:password|passwd|secret|token|api[_-]?key|auth|credential|private[_-]?key)[ \t]*[=:][ \t]*)\S+`)

	// Authorization header bearer tokens.
	bearerRe = regexp.MustCompile(`(?i)\b(bearer[ \t]+)[A-Za-z0-9._~+/=-]+`)

	// AWS access key IDs.
	awsKeyRe = regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`)

	// PEM private key blocks.
	pemRe = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)

	// Basic-auth credentials embedded in URLs.
	urlCredRe = regexp.MustCompile(`(://[^/\s:@]+:)[^@\s]+@`)
)

// Credentials replaces credential material in text with the mask, keeping
// the key/header prefix so the log line stays readable.
func Credentials(text string) string {
	out := pemRe.ReplaceAllString(text, Mask)
	out = credKVRe.ReplaceAllString(out, "${1}"+Mask)
	out = bearerRe.ReplaceAllString(out, "${1}"+Mask)
	out = awsKeyRe.ReplaceAllString(out, Mask)
	out = urlCredRe.ReplaceAllString(out, "${1}"+Mask+"@")
	return out
}

// ContainsCredentials reports whether text carries anything Credentials
// would mask. Probe only, no mutation.
func ContainsCredentials(text string) bool {
	return credKVRe.MatchString(text) ||
		bearerRe.MatchString(text) ||
		awsKeyRe.MatchString(text) ||
		pemRe.MatchString(text) ||
		urlCredRe.MatchString(text)
}
