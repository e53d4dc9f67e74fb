package auth

import (
	"errors"
	"fmt"
)

// Kind classifies sign-in failures.
type Kind string

const (
	KindCancelled           Kind = "auth_cancelled"
	KindMissingAttribute    Kind = "missing_attribute"
	KindProviderUnreachable Kind = "provider_unreachable"
	KindProviderRejected    Kind = "provider_rejected"
	KindDirectoryConflict   Kind = "directory_conflict"
	KindStateMismatch       Kind = "state_mismatch"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrCancelled           = &Error{Kind: KindCancelled}
	ErrMissingAttribute    = &Error{Kind: KindMissingAttribute}
	ErrProviderUnreachable = &Error{Kind: KindProviderUnreachable}
	ErrProviderRejected    = &Error{Kind: KindProviderRejected}
	ErrDirectoryConflict   = &Error{Kind: KindDirectoryConflict}
	ErrStateMismatch       = &Error{Kind: KindStateMismatch}
)

// Error is returned by providers and the directory. Status is the
// provider's HTTP status when one was received.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage is the text shown on the failure page. It never includes
// provider response bodies or token material.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindCancelled:
		return "Authentication canceled."
	case KindMissingAttribute:
		return "Error: the identity provider did not return the required account details."
	case KindProviderUnreachable:
		return "Error: Connection to " + e.providerLabel() + " failed. Please contact an Administrator"
	case KindProviderRejected:
		if e.Status != 0 {
			return fmt.Sprintf("Error: Connection to %s failed. Error code(%d). Please contact an Administrator",
				e.providerLabel(), e.Status)
		}
		return "Error: " + e.providerLabel() + " rejected the sign-in. Please start again."
	case KindDirectoryConflict:
		return "Error: your account could not be created. Please try again."
	case KindStateMismatch:
		return "Error: the sign-in request expired or was tampered with. Please start again."
	default:
		return "Error: sign-in failed."
	}
}

func (e *Error) providerLabel() string {
	switch e.Provider {
	case "jira":
		return "Jira"
	case "":
		return "the identity provider"
	default:
		return e.Provider
	}
}

func Cancelled(provider string) error {
	return &Error{Kind: KindCancelled, Provider: provider}
}

func MissingAttribute(provider, attr string) error {
	return &Error{Kind: KindMissingAttribute, Provider: provider, Detail: attr}
}

func Unreachable(provider string, err error) error {
	return &Error{Kind: KindProviderUnreachable, Provider: provider, Err: err}
}

func Rejected(provider string, status int, err error) error {
	return &Error{Kind: KindProviderRejected, Provider: provider, Status: status, Err: err}
}

func Conflict(subject string, err error) error {
	return &Error{Kind: KindDirectoryConflict, Detail: subject, Err: err}
}

func StateMismatch(provider string) error {
	return &Error{Kind: KindStateMismatch, Provider: provider}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage returns a safe failure text for any error.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return "Error: sign-in failed. Please contact an Administrator"
}
