// Package storage provides typed access to string-keyed backend options,
// such as link definition values and store URL query parameters.
package storage

import (
	"errors"
	"fmt"
)

// OptionError reports a store option that cannot be used. Errors from the
// Get helpers carry no Store until a backend claims them with InStore.
type OptionError struct {
	Store  string
	Option string
	Value  string
	Reason string
	Err    error
}

func (e *OptionError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	var subject string
	switch {
	case e.Option == "":
	case e.Value == "":
		subject = e.Option + ": "
	default:
		subject = fmt.Sprintf("%s=%q: ", e.Option, e.Value)
	}
	if e.Store == "" {
		return subject + reason
	}
	return e.Store + ": " + subject + reason
}

func (e *OptionError) Unwrap() error {
	return e.Err
}

// MissingOption reports a required option left empty.
func MissingOption(store, option string) *OptionError {
	return &OptionError{Store: store, Option: option, Reason: "cannot be empty"}
}

// OpenFailed reports a store that could not be opened with option.
func OpenFailed(store, option, reason string, err error) *OptionError {
	return &OptionError{Store: store, Option: option, Reason: reason, Err: err}
}

// InStore attributes an option error to store. Other errors pass through.
func InStore(store string, err error) error {
	var oe *OptionError
	if errors.As(err, &oe) && oe.Store == "" {
		oe.Store = store
	}
	return err
}
