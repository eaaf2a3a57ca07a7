package wasmbus

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gezibash/wasmbus/pkg/identity"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
)

// SigningAlgorithm is the JWT "alg" header value of invocation claims.
const SigningAlgorithm = "Ed25519"

// InvocationMetadata is the signed description of an invocation embedded in
// its claims token.
type InvocationMetadata struct {
	InvocationHash string `json:"invocation_hash"`
	TargetURL      string `json:"target_url"`
	OriginURL      string `json:"origin_url"`
}

// InvocationClaims is the payload of an invocation claims token.
type InvocationClaims struct {
	jwt.RegisteredClaims
	Metadata *InvocationMetadata `json:"wascap,omitempty"`
}

// signingMethodEd25519 signs with an identity.Signer and verifies against an
// identity.PublicKey, so host keys never leave their Signer.
type signingMethodEd25519 struct{}

var ed25519Method jwt.SigningMethod = signingMethodEd25519{}

func init() {
	jwt.RegisterSigningMethod(SigningAlgorithm, func() jwt.SigningMethod { return ed25519Method })
}

func (signingMethodEd25519) Alg() string { return SigningAlgorithm }

func (signingMethodEd25519) Sign(signingString string, key any) ([]byte, error) {
	signer, ok := key.(identity.Signer)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	sig, err := signer.Sign([]byte(signingString))
	if err != nil {
		return nil, err
	}
	return sig.Bytes, nil
}

func (signingMethodEd25519) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(identity.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if !identity.Verify(pub, []byte(signingString), identity.Signature{Algo: pub.Algo, Bytes: sig}) {
		return jwt.ErrTokenSignatureInvalid
	}
	return nil
}

func signClaims(signer identity.Signer, claims *InvocationClaims) (string, error) {
	token := jwt.NewWithClaims(ed25519Method, claims)
	s, err := token.SignedString(signer)
	if err != nil {
		return "", fmt.Errorf("sign invocation claims: %w", err)
	}
	return s, nil
}

func newInvocationClaims(issuer, subject string, meta InvocationMetadata, o options) *InvocationClaims {
	now := o.now()
	claims := &InvocationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Metadata: &meta,
	}
	if o.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(o.ttl))
	}
	if !o.notBefore.IsZero() {
		claims.NotBefore = jwt.NewNumericDate(o.notBefore)
	}
	return claims
}

// DecodeClaims verifies the token signature against its own issuer key and
// returns the claims. Time-based claims are not checked here.
func DecodeClaims(token string) (*InvocationClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &InvocationClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		pub, err := nkey.DecodePublicKey(claims.Issuer)
		if err != nil {
			return nil, err
		}
		return pub, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

type options struct {
	ttl       time.Duration
	notBefore time.Time
	now       func() time.Time
}

// DefaultTokenTTL bounds how long an invocation stays acceptable after signing.
const DefaultTokenTTL = 5 * time.Minute

func defaultOptions() options {
	return options{ttl: DefaultTokenTTL, now: time.Now}
}

// Option configures invocation construction.
type Option func(*options)

// WithTokenTTL sets the claims lifetime. Zero issues a token without expiry.
func WithTokenTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithNotBefore sets the earliest time the invocation may be accepted.
func WithNotBefore(t time.Time) Option {
	return func(o *options) { o.notBefore = t }
}

// WithClock overrides the signing clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
