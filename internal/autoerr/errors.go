package autoerr

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialExpired means the outbound channel rejected our session
	// or token. Never retried automatically; an operator has to rotate
	// credentials first.
	ErrCredentialExpired = errors.New("channel credential expired")
	// ErrStoreUnavailable means a coordination-store primitive failed.
	// The coordinator wraps every Redis failure with it; callers fail
	// open on it rather than blocking all auto-responses.
	ErrStoreUnavailable = errors.New("coordination store unavailable")
)

// TransientDispatchError wraps a dispatch failure that is eligible for a
// later sweep retry once the dedup claim lapses.
type TransientDispatchError struct {
	Err error
}

func (e *TransientDispatchError) Error() string {
	return fmt.Sprintf("transient dispatch failure: %v", e.Err)
}

func (e *TransientDispatchError) Unwrap() error { return e.Err }

// MalformedEventError marks a queue payload that failed strict parsing.
// Such events are relocated to the poison list, never retried.
type MalformedEventError struct {
	Raw    string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return "malformed event: " + e.Reason
}

func IsCredentialExpired(err error) bool {
	return errors.Is(err, ErrCredentialExpired)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsTransient(err error) bool {
	var te *TransientDispatchError
	return errors.As(err, &te)
}

func IsMalformed(err error) bool {
	var me *MalformedEventError
	return errors.As(err, &me)
}
