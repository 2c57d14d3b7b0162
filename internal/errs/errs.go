// Package errs holds the failure taxonomy shared by the wallet session and the
// ledger gateway.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	ProviderUnavailable Kind = "provider_unavailable"
	UserRejected        Kind = "user_rejected"
	NotReady            Kind = "not_ready"
	NetworkMismatch     Kind = "network_mismatch"
	NetworkUnconfigured Kind = "network_unconfigured"
	NoSigner            Kind = "no_signer"
	InsufficientBalance Kind = "insufficient_balance"
	ValidationError     Kind = "validation_error"
	ChainCallFailure    Kind = "chain_call_failure"
)

// Error is a classified failure. Two errors match under errors.Is when their
// kinds are equal and the target carries no message of its own.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Sentinels for errors.Is checks.
var (
	ErrProviderUnavailable = &Error{Kind: ProviderUnavailable}
	ErrUserRejected        = &Error{Kind: UserRejected}
	ErrNotReady            = &Error{Kind: NotReady}
	ErrNetworkMismatch     = &Error{Kind: NetworkMismatch}
	ErrNetworkUnconfigured = &Error{Kind: NetworkUnconfigured}
	ErrNoSigner            = &Error{Kind: NoSigner}
	ErrInsufficientBalance = &Error{Kind: InsufficientBalance}
	ErrValidation          = &Error{Kind: ValidationError}
	ErrChainCall           = &Error{Kind: ChainCallFailure}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. An err that is already an *Error keeps its own kind.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
