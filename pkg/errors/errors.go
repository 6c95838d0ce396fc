package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a fetch error
type Kind string

const (
	// KindInvalidInput represents malformed or unsupported URLs; never retried
	KindInvalidInput Kind = "invalid_input"
	// KindSessionUnavailable represents a browser session that could not be
	// created or maintained; transient
	KindSessionUnavailable Kind = "session_unavailable"
	// KindBlocked represents anti-bot defenses preventing extraction after
	// the retry budget was exhausted
	KindBlocked Kind = "blocked"
	// KindParsing represents a retrieved payload that yielded no usable data
	KindParsing Kind = "parsing"
	// KindStore represents persistence errors
	KindStore Kind = "store"
	// KindNotify represents notification delivery errors
	KindNotify Kind = "notify"
)

// FetchError represents an error raised while checking a tracked item
type FetchError struct {
	Kind        Kind
	Marketplace string
	Message     string
	Err         error
	Time        time.Time
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Kind, e.Marketplace, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Marketplace, e.Message)
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if another attempt may succeed
func (e *FetchError) IsRetryable() bool {
	return e.Kind == KindSessionUnavailable
}

// New creates a new FetchError
func New(kind Kind, marketplace, message string, err error) *FetchError {
	return &FetchError{
		Kind:        kind,
		Marketplace: marketplace,
		Message:     message,
		Err:         err,
		Time:        time.Now(),
	}
}

// NewInvalidInput creates an invalid input error
func NewInvalidInput(marketplace, message string) *FetchError {
	return New(KindInvalidInput, marketplace, message, nil)
}

// NewSessionUnavailable creates a session unavailable error
func NewSessionUnavailable(marketplace, message string, err error) *FetchError {
	return New(KindSessionUnavailable, marketplace, message, err)
}

// NewBlocked creates a blocked error
func NewBlocked(marketplace, message string, err error) *FetchError {
	return New(KindBlocked, marketplace, message, err)
}

// NewParsing creates a parsing error
func NewParsing(marketplace, message string, err error) *FetchError {
	return New(KindParsing, marketplace, message, err)
}

// NewStore creates a store error
func NewStore(message string, err error) *FetchError {
	return New(KindStore, "", message, err)
}

// NewNotify creates a notification delivery error
func NewNotify(message string, err error) *FetchError {
	return New(KindNotify, "", message, err)
}

// IsKind reports whether err is a FetchError of the given kind
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// IsInvalidInput reports whether err classifies as invalid input
func IsInvalidInput(err error) bool {
	return IsKind(err, KindInvalidInput)
}

// IsBlocked reports whether err classifies as blocked
func IsBlocked(err error) bool {
	return IsKind(err, KindBlocked)
}
