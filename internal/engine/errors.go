package engine

import (
	"errors"
	"fmt"
)

// Error is the typed failure every engine operation returns.
//
// Errors are matched by Code: errors.Is(err, ErrNotAllowed) holds for any
// *Error with CodeNotAllowed, wherever it sits in a wrap chain.
type Error struct {
	// Code identifies the failure category.
	Code Code

	// Op is the operation that failed.
	Op Op

	// VaultID is the affected vault, zero for create.
	VaultID uint64

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause (transfer, registry or proof failure).
	Err error
}

// Code categorizes engine failures.
type Code string

const (
	CodeNotAllowed        Code = "NOT_ALLOWED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeBadID             Code = "BAD_ID"
	CodeAlreadyHandled    Code = "ALREADY_HANDLED"
	CodeExpired           Code = "EXPIRED"
	CodeNotExpired        Code = "NOT_EXPIRED"
	CodeBadValue          Code = "BAD_VALUE"
	CodeBadRecipient      Code = "BAD_RECIPIENT"
	CodeTransferFailed    Code = "TRANSFER_FAILED"
	CodeProofInvalid      Code = "PROOF_INVALID"
	CodePrincipalMismatch Code = "PRINCIPAL_MISMATCH"

	// CodeInternal marks registry or event sink failures. These are not
	// part of the transition contract; they mean a collaborator broke.
	CodeInternal Code = "INTERNAL"
)

// Sentinels for errors.Is matching.
var (
	ErrNotAllowed        = &Error{Code: CodeNotAllowed}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrBadID             = &Error{Code: CodeBadID}
	ErrAlreadyHandled    = &Error{Code: CodeAlreadyHandled}
	ErrExpired           = &Error{Code: CodeExpired}
	ErrNotExpired        = &Error{Code: CodeNotExpired}
	ErrBadValue          = &Error{Code: CodeBadValue}
	ErrBadRecipient      = &Error{Code: CodeBadRecipient}
	ErrTransferFailed    = &Error{Code: CodeTransferFailed}
	ErrProofInvalid      = &Error{Code: CodeProofInvalid}
	ErrPrincipalMismatch = &Error{Code: CodePrincipalMismatch}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Op != "" {
		if e.VaultID != 0 {
			msg = fmt.Sprintf("%s (op=%s, vault=%d)", msg, e.Op, e.VaultID)
		} else {
			msg = fmt.Sprintf("%s (op=%s)", msg, e.Op)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code Code, op Op, id uint64, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, VaultID: id, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, op Op, id uint64, err error, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, VaultID: id, Message: fmt.Sprintf(format, args...), Err: err}
}
