package capability

import (
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"
)

// Signer produces and validates capability signatures. The signature is an
// opaque blob to the store; only presence and validity are checked here,
// key management lives with the caller.
type Signer interface {
	Sign(c *Capability) ([]byte, error)
	Verify(c *Capability, sig []byte) bool
}

// Ed25519Signer signs the canonical capability tuple with an ed25519 key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer builds a signer from a private key.
func NewEd25519Signer(priv ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// NewEd25519Verifier builds a verify-only signer from a public key.
func NewEd25519Verifier(pub ed25519.PublicKey) *Ed25519Signer {
	return &Ed25519Signer{pub: pub}
}

func (s *Ed25519Signer) Sign(c *Capability) ([]byte, error) {
	if s.priv == nil {
		return nil, fmt.Errorf("signer has no private key")
	}
	return ed25519.Sign(s.priv, signingMessage(c)), nil
}

func (s *Ed25519Signer) Verify(c *Capability, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.pub, signingMessage(c), sig)
}

// signingMessage is the canonical byte form of the fields a signature
// covers. RevokedAt and Signature itself are deliberately excluded.
func signingMessage(c *Capability) []byte {
	fields := []string{
		c.ID,
		c.PrincipalID,
		c.ResourceURI,
		c.Action,
		strconv.FormatInt(c.GrantedAt.UTC().UnixNano(), 10),
	}
	if c.ExpiresAt != nil {
		fields = append(fields, strconv.FormatInt(c.ExpiresAt.UTC().UnixNano(), 10))
	}
	return []byte(strings.Join(fields, "|"))
}
