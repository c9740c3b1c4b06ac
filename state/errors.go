/*
errors.go - Canonical error shape for everything above the transport

PURPOSE:
  The upstream surfaces failures in several shapes (an errors array, a bare
  message field, or nothing useful at all). All of that sniffing happens
  exactly once, below this package, in the client adapter. Everything the
  cache engine and its consumers see is a *state.Error with a Kind and a
  single human-readable Message.

ERROR CATEGORIES:
  1. Transport  - the HTTP call itself failed (no usable response)
  2. API        - the upstream answered with a structured failure
  3. Validation - a payload failed the shared shape check (local, never thrown)
  4. Auth       - credentials expired and the silent refresh also failed

SEE ALSO:
  - validate.go: produces KindValidation errors
  - client package: produces KindTransport/KindAPI/KindAuth errors
*/
package state

import (
	"errors"
	"fmt"
)

// Kind classifies a normalized error.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindAPI        Kind = "api"
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
)

// FallbackMessage is surfaced when a failure carries no usable message.
// The portal is Persian-language, so the generic copy is too.
const FallbackMessage = "خطایی رخ داده است. لطفا دوباره تلاش کنید"

// Error is the one error shape the cache engine traffics in.
type Error struct {
	Kind    Kind
	Message string
	Status  int // HTTP status when known, 0 otherwise
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a normalized error, substituting the fallback copy when
// the message is empty.
func NewError(kind Kind, message string) *Error {
	if message == "" {
		message = FallbackMessage
	}
	return &Error{Kind: kind, Message: message}
}

// MessageOf extracts the user-facing message from any error. Non-normalized
// errors collapse to the generic fallback: raw Go error text is never shown
// to a portal user.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return FallbackMessage
}

// IsAuth reports whether err is a credential failure that survived the
// adapter's silent refresh-and-retry.
func IsAuth(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindAuth
}

// IsValidation reports whether err came from the shared payload shape check.
func IsValidation(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindValidation
}
