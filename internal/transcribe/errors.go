package transcribe

import (
	"errors"
	"fmt"
)

// TransportError classifies a provider failure. Temporary errors
// (timeouts, 5xx, 429/408) are retried by the dispatch queue;
// permanent ones (other 4xx) fail the item immediately.
type TransportError struct {
	Code      int
	Message   string
	Temporary bool
}

func (e *TransportError) Error() string {
	kind := "permanent"
	if e.Temporary {
		kind = "transient"
	}
	return fmt.Sprintf("transcriber %s error (code=%d): %s", kind, e.Code, e.Message)
}

// NewTransientError wraps a retryable provider failure.
func NewTransientError(code int, msg string) *TransportError {
	return &TransportError{Code: code, Message: msg, Temporary: true}
}

// NewPermanentError wraps a terminal provider failure.
func NewPermanentError(code int, msg string) *TransportError {
	return &TransportError{Code: code, Message: msg, Temporary: false}
}

// IsRetryable reports whether a dispatch failure should be retried.
// Unclassified errors (network faults, timeouts) default to retryable.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Temporary
	}
	return true
}
