package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
)

type edSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newEdSigner(t *testing.T) *edSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return &edSigner{priv: priv, pub: pub}
}

func (s *edSigner) PublicKey() PublicKey {
	return PublicKey{Algo: AlgEd25519, Bytes: s.pub}
}

func (s *edSigner) Sign(payload []byte) (Signature, error) {
	return Signature{Algo: AlgEd25519, Bytes: ed25519.Sign(s.priv, payload)}, nil
}

func (s *edSigner) Algorithm() Algorithm { return AlgEd25519 }

func TestVerify(t *testing.T) {
	s := newEdSigner(t)
	payload := []byte("wasmbus://MABC/HandleRequest")
	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other := newEdSigner(t)

	tests := []struct {
		name    string
		pub     PublicKey
		payload []byte
		sig     Signature
		want    bool
	}{
		{"valid", s.PublicKey(), payload, sig, true},
		{"untagged key", PublicKey{Bytes: s.pub}, payload, sig, true},
		{"tampered payload", s.PublicKey(), []byte("wasmbus://MABC/Other"), sig, false},
		{"wrong key", other.PublicKey(), payload, sig, false},
		{"algorithm mismatch", s.PublicKey(), payload, Signature{Algo: "secp256k1", Bytes: sig.Bytes}, false},
		{"unknown algorithm", PublicKey{Algo: "rsa", Bytes: s.pub}, payload, Signature{Algo: "rsa", Bytes: sig.Bytes}, false},
		{"short key", PublicKey{Algo: AlgEd25519, Bytes: s.pub[:8]}, payload, sig, false},
		{"short signature", s.PublicKey(), payload, Signature{Algo: AlgEd25519, Bytes: sig.Bytes[:10]}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.pub, tt.payload, tt.sig); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublicKeyEqual(t *testing.T) {
	s := newEdSigner(t)
	a := s.PublicKey()
	b := PublicKey{Bytes: append([]byte(nil), s.pub...)}
	if !a.Equal(b) {
		t.Error("expected keys with default algorithm to be equal")
	}
	if a.Equal(newEdSigner(t).PublicKey()) {
		t.Error("expected distinct keys to differ")
	}
}

func TestProviderFunc(t *testing.T) {
	want := errors.New("no seed")
	p := ProviderFunc(func(ctx context.Context) (Signer, error) {
		return nil, want
	})
	if _, err := p.Load(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Load() error = %v, want %v", err, want)
	}
}
