// Package identity provides the signing primitives used for host keys.
package identity

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
)

// Algorithm identifies a signing algorithm.
type Algorithm string

// AlgEd25519 is the only algorithm hosts sign invocations with.
const AlgEd25519 Algorithm = "ed25519"

// PublicKey is an algorithm-tagged public key.
type PublicKey struct {
	Algo  Algorithm
	Bytes []byte
}

// Equal reports whether two keys carry the same algorithm and bytes.
func (pk PublicKey) Equal(other PublicKey) bool {
	return pk.algo() == other.algo() && bytes.Equal(pk.Bytes, other.Bytes)
}

func (pk PublicKey) algo() Algorithm {
	if pk.Algo == "" {
		return AlgEd25519
	}
	return pk.Algo
}

// Signature is an algorithm-tagged signature.
type Signature struct {
	Algo  Algorithm
	Bytes []byte
}

// Signer represents a private key capable of signing.
type Signer interface {
	PublicKey() PublicKey
	Sign(payload []byte) (Signature, error)
	Algorithm() Algorithm
}

// Provider loads or generates a signer for a runtime.
type Provider interface {
	Load(ctx context.Context) (Signer, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) (Signer, error)

// Load implements Provider.
func (f ProviderFunc) Load(ctx context.Context) (Signer, error) {
	return f(ctx)
}

var (
	// ErrUnknownAlgorithm indicates an unknown algorithm.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrInvalidKey indicates a malformed or wrongly typed key.
	ErrInvalidKey = errors.New("invalid key")
)

// Verify checks a signature over the given payload.
// A signature tagged with a different algorithm than the key never verifies.
func Verify(pub PublicKey, payload []byte, sig Signature) bool {
	if sig.Algo != "" && sig.Algo != pub.algo() {
		return false
	}
	switch pub.algo() {
	case AlgEd25519:
		if len(pub.Bytes) != ed25519.PublicKeySize || len(sig.Bytes) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(pub.Bytes, payload, sig.Bytes)
	default:
		return false
	}
}
