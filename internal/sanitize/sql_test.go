package sanitize

import (
	"context"
	"testing"

	"github.com/arborsec/arbor/internal/taint"
)

func TestSQLIdentifierAllowlist(t *testing.T) {
	s := &SQLSanitizer{}
	allowed := []string{"users", "orders", "audit_log"}

	res, err := s.Sanitize(context.Background(), "orders", taint.Untrusted(), Options{
		AllowedIdentifiers: allowed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "orders" {
		t.Errorf("identifier changed: %q", res.Value)
	}
	if !res.Taint.Has(taint.SQL) {
		t.Error("sql bit not set")
	}

	_, err = s.Sanitize(context.Background(), "users; DROP TABLE users", taint.Untrusted(), Options{
		AllowedIdentifiers: allowed,
	})
	if ReasonOf(err) != ReasonIdentifierDenied {
		t.Errorf("expected identifier_not_allowed, got %v", err)
	}
}

func TestSQLIdentifierNoDefaultAllowlist(t *testing.T) {
	s := &SQLSanitizer{}
	_, err := s.Sanitize(context.Background(), "users", taint.Untrusted(), Options{})
	if ReasonOf(err) != ReasonMissingOption {
		t.Fatalf("missing allowlist must be a hard error, got %v", err)
	}
}

func TestSQLIdentifierCaseSensitive(t *testing.T) {
	s := &SQLSanitizer{}
	_, err := s.Sanitize(context.Background(), "Users", taint.Untrusted(), Options{
		AllowedIdentifiers: []string{"users"},
	})
	if ReasonOf(err) != ReasonIdentifierDenied {
		t.Errorf("case-mismatched identifier must be denied, got %v", err)
	}
}

func TestSQLLikeEscape(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
		{"clean", "clean"},
	}

	s := &SQLSanitizer{}
	for _, tt := range tests {
		res, err := s.Sanitize(context.Background(), tt.input, taint.Untrusted(), Options{SQLMode: SQLLike})
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.input, err)
		}
		if res.Value != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.input, res.Value, tt.want)
		}
	}
}

func TestSQLDetect(t *testing.T) {
	tests := []struct {
		input string
		safe  bool
	}{
		{"alice", true},
		{"1 UNION SELECT password FROM users", false},
		{"x' OR '1'='1", false},
		{"name; DROP TABLE users", false},
		{"robert'); --", false},
	}

	s := &SQLSanitizer{}
	for _, tt := range tests {
		d := s.Detect(tt.input)
		if d.Safe != tt.safe {
			t.Errorf("Detect(%q).Safe = %v, want %v (patterns %v)", tt.input, d.Safe, tt.safe, d.Patterns)
		}
	}
}
