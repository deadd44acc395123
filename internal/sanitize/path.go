package sanitize

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/arborsec/arbor/internal/taint"
)

// PathSanitizer confines a relative path to an explicit allowed root. It
// resolves symlinks rather than lexically stripping "..": a symlink inside
// the root pointing outside it defeats lexical checks, so the canonicalized
// path is what gets compared against the canonicalized root.
type PathSanitizer struct{}

func (s *PathSanitizer) Kind() Kind     { return KindPath }
func (s *PathSanitizer) Bit() taint.Bit { return taint.Path }

func (s *PathSanitizer) Sanitize(_ context.Context, value string, t taint.Taint, opts Options) (Result, error) {
	if opts.AllowedRoot == "" {
		return Result{}, errf(ReasonMissingOption, "path sanitizer requires allowed_root")
	}

	if err := rejectHostileBytes(value); err != nil {
		return Result{}, err
	}

	root, err := filepath.EvalSymlinks(opts.AllowedRoot)
	if err != nil {
		return Result{}, errf(ReasonPathTraversal, "allowed_root %q cannot be resolved: %v", opts.AllowedRoot, err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return Result{}, errf(ReasonPathTraversal, "allowed_root %q: %v", opts.AllowedRoot, err)
	}

	candidate := filepath.Join(root, filepath.Clean("/"+value))
	resolved, err := resolveExisting(candidate)
	if err != nil {
		return Result{}, errf(ReasonPathTraversal, "cannot canonicalize %q: %v", value, err)
	}

	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return Result{}, errf(ReasonPathTraversal, "%q escapes allowed root", value)
	}

	return Result{Value: resolved, Taint: t.With(taint.Path, taint.Verified)}, nil
}

func (s *PathSanitizer) Detect(value string) Detection {
	if err := rejectHostileBytes(value); err != nil {
		se := err.(*Error)
		return Detection{Patterns: []string{se.Detail}}
	}
	if strings.Contains(value, "..") {
		return Detection{Patterns: []string{"dotdot_segment"}}
	}
	return Detection{Safe: true, Score: 1.0}
}

// rejectHostileBytes blocks null bytes, backslash separators, and single- or
// double-URL-encoded traversal sequences before any filesystem access.
func rejectHostileBytes(value string) error {
	if strings.ContainsRune(value, 0) {
		return &Error{Reason: ReasonPathTraversal, Detail: "null_byte"}
	}
	if strings.Contains(value, `\`) {
		return &Error{Reason: ReasonPathTraversal, Detail: "backslash_separator"}
	}
	for _, seg := range strings.Split(value, "/") {
		if seg == ".." {
			return &Error{Reason: ReasonPathTraversal, Detail: "dotdot_segment"}
		}
	}
	lower := strings.ToLower(value)
	if strings.Contains(lower, "%2e") || strings.Contains(lower, "%2f") || strings.Contains(lower, "%5c") || strings.Contains(lower, "%25") {
		return &Error{Reason: ReasonPathTraversal, Detail: "encoded_traversal"}
	}
	// One decode round catches sequences hidden behind a single layer that
	// the raw checks above did not see.
	if decoded, err := url.PathUnescape(value); err == nil && strings.Contains(decoded, "..") {
		return &Error{Reason: ReasonPathTraversal, Detail: "encoded_traversal"}
	}
	return nil
}

// resolveExisting canonicalizes path, falling back to the nearest existing
// ancestor when the leaf does not exist yet (the usual case for writes).
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	dir, base := filepath.Split(filepath.Clean(path))
	parent, err := resolveExisting(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}
