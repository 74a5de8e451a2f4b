// Package apperr defines the error kinds reported to chat hosts.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindStore             Kind = "store"
	KindParse             Kind = "parse"
	KindInvalidCredential Kind = "invalid_credential"
	KindNetwork           Kind = "network"
	KindRemoteRejected    Kind = "remote_rejected"
	KindMalformed         Kind = "malformed"
	KindPrecondition      Kind = "precondition"
	KindUnknown           Kind = "unknown"
)

// Error is a failure with a stable kind and a short human-readable message.
// Code carries the remote status for KindRemoteRejected and is zero otherwise.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func New(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Store(message string, cause error) error {
	return New(KindStore, message, cause)
}

func Parse(message string, cause error) error {
	return New(KindParse, message, cause)
}

func Precondition(message string) error {
	return New(KindPrecondition, message, nil)
}

func InvalidCredential(message string, cause error) error {
	return New(KindInvalidCredential, message, cause)
}

func Network(message string, cause error) error {
	return New(KindNetwork, message, cause)
}

func Malformed(message string, cause error) error {
	return New(KindMalformed, message, cause)
}

func RemoteRejected(code int, message string, cause error) error {
	return &Error{Kind: KindRemoteRejected, Message: message, Code: code, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the short message of the first *Error in err's chain,
// falling back to err.Error().
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
