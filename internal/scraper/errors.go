package scraper

import (
	"context"
	"errors"
	"fmt"
)

// TransientFetchError marks a retryable failure (rate limit, network error).
type TransientFetchError struct {
	Source     SourceID
	Reason     string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient fetch error from %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("transient fetch error from %s: %s", e.Source, e.Reason)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError marks a failure that will not resolve on retry
// (blocked, bad credentials, malformed response).
type PermanentFetchError struct {
	Source     SourceID
	Reason     string
	StatusCode int
	Err        error
}

func (e *PermanentFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent fetch error from %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("permanent fetch error from %s: %s", e.Source, e.Reason)
}

func (e *PermanentFetchError) Unwrap() error { return e.Err }

// StoreError wraps a failed dedup check or insert for one fingerprint.
type StoreError struct {
	Fingerprint string
	Err         error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("dedup store %s: %v", e.Fingerprint, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DeliveryError wraps a failed notification.
type DeliveryError struct {
	UserID string
	URL    string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.URL, e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Transient builds a TransientFetchError.
func Transient(source SourceID, reason string, status int, err error) error {
	return &TransientFetchError{Source: source, Reason: reason, StatusCode: status, Err: err}
}

// Permanent builds a PermanentFetchError.
func Permanent(source SourceID, reason string, status int, err error) error {
	return &PermanentFetchError{Source: source, Reason: reason, StatusCode: status, Err: err}
}

// IsTransient reports whether err is retryable. Context errors never are.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsPermanent reports whether err carries a PermanentFetchError.
func IsPermanent(err error) bool {
	var pe *PermanentFetchError
	return errors.As(err, &pe)
}

// ClassifyStatus maps an HTTP status code from a source to an error class.
// It returns nil for 2xx codes.
func ClassifyStatus(source SourceID, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429:
		return Transient(source, "rate limited", status, nil)
	case status == 408 || status >= 500:
		return Transient(source, "server error", status, nil)
	case status == 401 || status == 403:
		return Permanent(source, "blocked", status, nil)
	default:
		return Permanent(source, "unexpected status", status, nil)
	}
}
