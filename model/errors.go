package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	KindConfiguration   Kind = "Configuration"
	KindDuplicateName   Kind = "DuplicateName"
	KindInvalidName     Kind = "InvalidName"
	KindPayloadTooLarge Kind = "PayloadTooLarge"
	KindNetwork         Kind = "Network"
	KindUploadFailed    Kind = "UploadFailed"
	KindCIDMismatch     Kind = "CIDMismatch"
)

// Error is the structured error returned across the module.
//
// Name carries the file or directory path the error relates to, if any.
// CIDs carries the blocks involved. For KindUploadFailed it is the full set
// of blocks that were not submitted, so a caller can resume.
type Error struct {
	Kind    Kind
	Message string
	Name    string
	CIDs    []cid.Cid
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Name != "" {
		msg = fmt.Sprintf("%s: %s", e.Name, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindNetwork
}

// NewError returns a *Error of the given kind.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError returns a *Error of the given kind wrapping cause.
func WrapError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithName sets Name and returns e.
func (e *Error) WithName(name string) *Error {
	e.Name = name
	return e
}

// WithCIDs sets CIDs and returns e.
func (e *Error) WithCIDs(ids ...cid.Cid) *Error {
	e.CIDs = ids
	return e
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// Retryable reports whether err is a transient failure worth retrying.
// Errors without a Kind are treated as terminal.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Retryable()
}

// PendingCIDs returns the CIDs attached to the outermost *Error in err's chain.
func PendingCIDs(err error) []cid.Cid {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	return e.CIDs
}

// FormatCIDs renders ids as a comma separated list of CID strings.
func FormatCIDs(ids []cid.Cid) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ", ")
}
