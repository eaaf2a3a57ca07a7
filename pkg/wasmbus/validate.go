package wasmbus

import (
	"fmt"
	"slices"
	"time"
)

// Reason identifies why an invocation failed anti-forgery validation.
type Reason string

const (
	ReasonBadSignature    Reason = "bad-signature"
	ReasonExpired         Reason = "expired"
	ReasonNotYetValid     Reason = "not-yet-valid"
	ReasonMissingMetadata Reason = "missing-metadata"
	ReasonHashMismatch    Reason = "hash-mismatch"
	ReasonSubjectMismatch Reason = "subject-mismatch"
	ReasonIssuerMismatch  Reason = "issuer-mismatch"
	ReasonUntrustedIssuer Reason = "untrusted-issuer"
	ReasonURLMismatch     Reason = "url-mismatch"
)

var reasonMessages = map[Reason]string{
	ReasonBadSignature:    "invocation claims signature invalid",
	ReasonExpired:         "invocation claims token expired",
	ReasonNotYetValid:     "attempt to use invocation before claims token allows",
	ReasonMissingMetadata: "no invocation metadata found on claims",
	ReasonHashMismatch:    "invocation hash does not match signed claims hash",
	ReasonSubjectMismatch: "subject of invocation claims token does not match invocation id",
	ReasonIssuerMismatch:  "invocation claims issuer does not match invocation host",
	ReasonUntrustedIssuer: "issuer of this invocation is not among the list of valid issuers",
	ReasonURLMismatch:     "invocation claims and invocation URL do not match",
}

// ValidationError is a terminal rejection of a forged, tampered or stale invocation.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	msg := reasonMessages[e.Reason]
	if msg == "" {
		msg = string(e.Reason)
	}
	if e.Detail != "" {
		return msg + ": " + e.Detail
	}
	return msg
}

// Is matches another *ValidationError with the same Reason, so callers can
// test with errors.Is(err, &ValidationError{Reason: ReasonExpired}).
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Reason == e.Reason
}

func invalid(reason Reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks the invocation against its claims token at the current time.
// validIssuers is the set of host keys this receiver trusts.
func (inv *Invocation) Validate(validIssuers []string) error {
	return inv.ValidateAt(time.Now(), validIssuers)
}

// ValidateAt is Validate with an explicit clock. The first failing check
// determines the returned reason.
func (inv *Invocation) ValidateAt(now time.Time, validIssuers []string) error {
	claims, err := DecodeClaims(inv.EncodedClaims)
	if err != nil {
		return &ValidationError{Reason: ReasonBadSignature, Detail: err.Error()}
	}

	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return invalid(ReasonExpired, "expired at %s", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return invalid(ReasonNotYetValid, "valid from %s", claims.NotBefore.Time.UTC().Format(time.RFC3339))
	}

	meta := claims.Metadata
	if meta == nil || meta.InvocationHash == "" || meta.TargetURL == "" || meta.OriginURL == "" {
		return &ValidationError{Reason: ReasonMissingMetadata}
	}

	if hash := inv.Hash(); meta.InvocationHash != hash {
		return invalid(ReasonHashMismatch, "signed %s, computed %s", meta.InvocationHash, hash)
	}
	if claims.Subject != inv.ID {
		return invalid(ReasonSubjectMismatch, "subject %q, invocation %q", claims.Subject, inv.ID)
	}
	if claims.Issuer != inv.HostID {
		return invalid(ReasonIssuerMismatch, "issuer %q, host %q", claims.Issuer, inv.HostID)
	}
	if !slices.Contains(validIssuers, claims.Issuer) {
		return invalid(ReasonUntrustedIssuer, "issuer %q", claims.Issuer)
	}
	if target := inv.TargetURL(); meta.TargetURL != target {
		return invalid(ReasonURLMismatch, "target %q, signed %q", target, meta.TargetURL)
	}
	if origin := inv.OriginURL(); meta.OriginURL != origin {
		return invalid(ReasonURLMismatch, "origin %q, signed %q", origin, meta.OriginURL)
	}
	return nil
}
