package sanitize

import (
	"context"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"

	"github.com/arborsec/arbor/internal/taint"
)

// Deserialization caps when the caller supplies none. Conservative on
// purpose: a decoder crash from resource exhaustion must become a typed
// error before business logic sees the payload.
const (
	DefaultMaxDepth    = 32
	DefaultMaxElements = 10_000
	DefaultMaxBytes    = 1 << 20 // 1 MiB
)

// DeserializationSanitizer gates untrusted payloads before decoding reaches
// business logic. Binary payloads decode through a CBOR mode with hard
// nesting/element limits and tags forbidden, so a hostile term becomes an
// unsafe_term error instead of unbounded allocation. JSON payloads decode
// first, then the decoded tree is walked against depth and element-count
// caps. encoding/json has no depth knob, so the walk is the enforcement.
type DeserializationSanitizer struct{}

func (s *DeserializationSanitizer) Kind() Kind     { return KindDeserialization }
func (s *DeserializationSanitizer) Bit() taint.Bit { return taint.Deserialization }

func (s *DeserializationSanitizer) Sanitize(_ context.Context, value string, t taint.Taint, opts Options) (Result, error) {
	maxBytes := opts.MaxByteSize
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(value)) > maxBytes {
		return Result{}, errf(ReasonTooLarge, "payload is %d bytes, cap is %d", len(value), maxBytes)
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxElements
	}

	format := opts.Format
	if format == "" {
		format = FormatJSON
	}

	switch format {
	case FormatBinary:
		if err := decodeBinary([]byte(value), maxDepth, maxSize); err != nil {
			return Result{}, err
		}
	case FormatJSON:
		if err := decodeJSON([]byte(value), maxDepth, maxSize); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, errf(ReasonMissingOption, "unknown format %q", format)
	}

	return Result{Value: value, Taint: t.With(taint.Deserialization, taint.Verified)}, nil
}

func (s *DeserializationSanitizer) Detect(value string) Detection {
	if int64(len(value)) > DefaultMaxBytes {
		return Detection{Patterns: []string{"oversized_payload"}}
	}
	if err := decodeJSON([]byte(value), DefaultMaxDepth, DefaultMaxElements); err != nil {
		if se, ok := err.(*Error); ok && se.Reason != ReasonJSONDecode {
			return Detection{Patterns: []string{string(se.Reason)}}
		}
		// Not JSON at all; try the binary path.
		if err := decodeBinary([]byte(value), DefaultMaxDepth, DefaultMaxElements); err != nil {
			return Detection{Patterns: []string{"undecodable_payload"}}
		}
	}
	return Detection{Safe: true, Score: 0.9}
}

// decodeBinary decodes CBOR with strict limits. New tag registration is
// forbidden, which is what turns atom-exhaustion style payloads into typed
// errors instead of decoder state growth.
func decodeBinary(data []byte, maxDepth, maxSize int) error {
	dm, err := cbor.DecOptions{
		MaxNestedLevels:  maxDepth,
		MaxArrayElements: maxSize,
		MaxMapPairs:      maxSize,
		IndefLength:      cbor.IndefLengthForbidden,
		TagsMd:           cbor.TagsForbidden,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		return errf(ReasonUnsafeTerm, "decoder setup: %v", err)
	}

	var v any
	if err := dm.Unmarshal(data, &v); err != nil {
		return errf(ReasonUnsafeTerm, "%v", err)
	}
	return nil
}

// decodeJSON decodes then walks the tree against the caps.
func decodeJSON(data []byte, maxDepth, maxSize int) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return errf(ReasonJSONDecode, "%v", err)
	}

	count := 0
	if err := walkJSON(v, 1, maxDepth, maxSize, &count); err != nil {
		return err
	}
	return nil
}

// walkJSON counts container nesting. A bare scalar is depth 0; "[]" is depth
// 1. A tree whose deepest container sits exactly at maxDepth passes.
func walkJSON(v any, depth, maxDepth, maxSize int, count *int) error {
	switch node := v.(type) {
	case []any:
		if depth > maxDepth {
			return errf(ReasonMaxDepthExceeded, "nesting exceeds %d", maxDepth)
		}
		*count += len(node)
		if *count > maxSize {
			return errf(ReasonMaxSizeExceeded, "element count exceeds %d", maxSize)
		}
		for _, el := range node {
			if err := walkJSON(el, depth+1, maxDepth, maxSize, count); err != nil {
				return err
			}
		}
	case map[string]any:
		if depth > maxDepth {
			return errf(ReasonMaxDepthExceeded, "nesting exceeds %d", maxDepth)
		}
		*count += len(node)
		if *count > maxSize {
			return errf(ReasonMaxSizeExceeded, "element count exceeds %d", maxSize)
		}
		for _, el := range node {
			if err := walkJSON(el, depth+1, maxDepth, maxSize, count); err != nil {
				return err
			}
		}
	}
	return nil
}
