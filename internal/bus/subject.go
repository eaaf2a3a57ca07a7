package bus

import (
	"fmt"
	"strings"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
)

const (
	wildcardToken = "*"
	wildcardTail  = ">"
)

// validSubject checks a literal publish subject.
func validSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("%w: empty subject", wberrors.ErrInvalidInput)
	}
	for _, tok := range strings.Split(subject, ".") {
		if tok == "" {
			return fmt.Errorf("%w: empty token in subject %q", wberrors.ErrInvalidInput, subject)
		}
		if tok == wildcardToken || tok == wildcardTail {
			return fmt.Errorf("%w: wildcard in publish subject %q", wberrors.ErrInvalidInput, subject)
		}
	}
	return nil
}

// validPattern checks a subscription subject, which may contain wildcards.
// ">" is only allowed as the last token.
func validPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty subject", wberrors.ErrInvalidInput)
	}
	toks := strings.Split(pattern, ".")
	for i, tok := range toks {
		if tok == "" {
			return fmt.Errorf("%w: empty token in subject %q", wberrors.ErrInvalidInput, pattern)
		}
		if tok == wildcardTail && i != len(toks)-1 {
			return fmt.Errorf("%w: %q must be the last token in %q", wberrors.ErrInvalidInput, wildcardTail, pattern)
		}
	}
	return nil
}

// matchSubject reports whether a literal subject matches a pattern.
// "*" matches exactly one token, ">" matches one or more trailing tokens.
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == wildcardTail {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != wildcardToken && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
