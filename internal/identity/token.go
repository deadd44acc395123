package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Token is a self-contained signed credential a principal attaches to a
// request. The signature covers the principal, session and issue time, so
// a token replayed under another principal ID fails verification.
// IssuedAt is carried as UnixNano so the signed instant survives encoding
// exactly; a lossy time representation would break every signature.
type Token struct {
	PrincipalID string `cbor:"1,keyasint"`
	SessionID   string `cbor:"2,keyasint"`
	IssuedAt    int64  `cbor:"3,keyasint"`
	Signature   []byte `cbor:"4,keyasint"`
}

// NewToken mints a signed token for the principal with a fresh session ID.
func NewToken(priv ed25519.PrivateKey, principalID string) ([]byte, error) {
	t := Token{
		PrincipalID: principalID,
		SessionID:   newSessionID(),
		IssuedAt:    time.Now().UTC().UnixNano(),
	}
	t.Signature = ed25519.Sign(priv, tokenMessage(&t))
	return cbor.Marshal(&t)
}

func decodeToken(raw []byte) (*Token, error) {
	var t Token
	if err := cbor.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &t, nil
}

// tokenMessage is the canonical byte form the signature covers. The
// signature field itself is excluded.
func tokenMessage(t *Token) []byte {
	fields := []string{
		t.PrincipalID,
		t.SessionID,
		strconv.FormatInt(t.IssuedAt, 10),
	}
	return []byte(strings.Join(fields, "|"))
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess-%x", time.Now().UnixNano())
	}
	return "sess-" + hex.EncodeToString(b)
}
