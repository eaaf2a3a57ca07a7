// Package nkey provides an identity.Signer for host keys in nkey form.
//
// Hosts are identified on the lattice by the public half of a server nkey
// ("N..."), and carry the matching seed ("SN...") to sign invocations.
package nkey

import (
	"context"
	"fmt"

	"github.com/nats-io/nkeys"

	"github.com/gezibash/wasmbus/pkg/identity"
)

// Keypair implements identity.Signer over an nkeys.KeyPair.
type Keypair struct {
	kp      nkeys.KeyPair
	encoded string
	raw     []byte
}

// Generate creates a new random server keypair.
func Generate() (*Keypair, error) {
	kp, err := nkeys.CreateServer()
	if err != nil {
		return nil, fmt.Errorf("create server key: %w", err)
	}
	return wrap(kp)
}

// FromSeed loads a keypair from an encoded seed ("SN...").
func FromSeed(seed string) (*Keypair, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrInvalidKey, err)
	}
	return wrap(kp)
}

func wrap(kp nkeys.KeyPair) (*Keypair, error) {
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, err
	}
	raw, err := nkeys.Decode(nkeys.Prefix(pub), []byte(pub))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrInvalidKey, err)
	}
	return &Keypair{kp: kp, encoded: pub, raw: raw}, nil
}

// Encoded returns the public key in nkey form.
func (k *Keypair) Encoded() string { return k.encoded }

// Seed returns the encoded seed.
func (k *Keypair) Seed() (string, error) {
	seed, err := k.kp.Seed()
	if err != nil {
		return "", err
	}
	return string(seed), nil
}

// PublicKey returns the public key.
func (k *Keypair) PublicKey() identity.PublicKey {
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return identity.PublicKey{Algo: identity.AlgEd25519, Bytes: out}
}

// Sign signs a payload.
func (k *Keypair) Sign(payload []byte) (identity.Signature, error) {
	sig, err := k.kp.Sign(payload)
	if err != nil {
		return identity.Signature{}, err
	}
	return identity.Signature{Algo: identity.AlgEd25519, Bytes: sig}, nil
}

// Algorithm returns the algorithm identifier.
func (k *Keypair) Algorithm() identity.Algorithm {
	return identity.AlgEd25519
}

// Wipe clears the private key material.
func (k *Keypair) Wipe() { k.kp.Wipe() }

// Encode returns the nkey form of a signer's public key. Signers that know
// their own encoding (such as *Keypair) are asked directly, anything else is
// encoded as a server key.
func Encode(s identity.Signer) (string, error) {
	if e, ok := s.(interface{ Encoded() string }); ok {
		return e.Encoded(), nil
	}
	return EncodePublicKey(s.PublicKey())
}

// EncodePublicKey encodes a raw ed25519 public key as a server nkey.
func EncodePublicKey(pk identity.PublicKey) (string, error) {
	if pk.Algo != "" && pk.Algo != identity.AlgEd25519 {
		return "", fmt.Errorf("%w: %s", identity.ErrUnknownAlgorithm, pk.Algo)
	}
	out, err := nkeys.Encode(nkeys.PrefixByteServer, pk.Bytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", identity.ErrInvalidKey, err)
	}
	return string(out), nil
}

// DecodePublicKey decodes any public nkey into its raw ed25519 key.
func DecodePublicKey(s string) (identity.PublicKey, error) {
	if !nkeys.IsValidPublicKey(s) {
		return identity.PublicKey{}, fmt.Errorf("%w: %q is not a public nkey", identity.ErrInvalidKey, s)
	}
	raw, err := nkeys.Decode(nkeys.Prefix(s), []byte(s))
	if err != nil {
		return identity.PublicKey{}, fmt.Errorf("%w: %v", identity.ErrInvalidKey, err)
	}
	return identity.PublicKey{Algo: identity.AlgEd25519, Bytes: raw}, nil
}

// Provider returns an identity.Provider that loads from a seed, generating
// an ephemeral key when the seed is empty.
type Provider struct {
	Seed string
}

// Load implements identity.Provider.
func (p Provider) Load(_ context.Context) (identity.Signer, error) {
	if p.Seed == "" {
		return Generate()
	}
	return FromSeed(p.Seed)
}
