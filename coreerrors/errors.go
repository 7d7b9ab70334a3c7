// Package coreerrors defines the stable error taxonomy shared by the ledger,
// identity registry, consensus module, and skill marketplace. Every
// operation in those packages returns a *Error (or nil) instead of raising,
// so callers can branch on Code without string-matching messages.
package coreerrors

import (
	"errors"
	"fmt"
)

// Code identifies a stable error category. Codes are part of the external
// contract: callers (CLI, RPC clients, SDK embedders) match on Code, not on
// Message text.
type Code string

const (
	CodeInvalidSignature   Code = "INVALID_SIGNATURE"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeInvalidNonce       Code = "INVALID_NONCE"
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeUnknownSender      Code = "UNKNOWN_SENDER"
	CodeUnknownRecipient   Code = "UNKNOWN_RECIPIENT"
	CodeStakeRequired      Code = "STAKE_REQUIRED"
	CodeReputationTooLow   Code = "REPUTATION_TOO_LOW"
	CodeDuplicateTx        Code = "DUPLICATE_TRANSACTION"
	CodeInvalidSkill       Code = "INVALID_SKILL"
	CodeDuplicateSkill     Code = "DUPLICATE_SKILL"
	CodeListingNotActive   Code = "LISTING_NOT_ACTIVE"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeConsensusFailure   Code = "CONSENSUS_FAILURE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
)

// Error is the structured error type returned by ledger, identity, and
// marketplace operations. It never wraps a lower-level error directly
// (operations there fail closed on the first validation problem), but the
// Message carries any context needed for a human or log line.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an *Error with the given code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a *Error carrying exactly this code, letting
// callers write `errors.Is(err, coreerrors.New(coreerrors.CodeDuplicateTx, ""))`-style
// checks via CodeOf instead. Provided so *Error satisfies common error
// interfaces cleanly; callers should prefer CodeOf for code comparisons.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error, and
// reports whether extraction succeeded.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Code, true
}
