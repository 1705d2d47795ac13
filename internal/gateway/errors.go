package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure as retryable or not.
type Kind int

const (
	// KindTransient covers timeouts, rate limits and 5xx-class responses.
	// The pipeline retries these with backoff.
	KindTransient Kind = iota
	// KindPermanent covers bad references, auth rejections and other
	// 4xx-class responses. The pipeline fails the job immediately.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Machine-readable failure reasons surfaced as the job's error kind.
const (
	ReasonPRNotFound  = "PRNotFound"
	ReasonAuth        = "AuthError"
	ReasonAnalysis    = "AnalysisError"
	ReasonRateLimited = "RateLimited"
	ReasonUnavailable = "Unavailable"
	ReasonNetwork     = "Network"
)

// Error is the failure contract for every external call.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s gateway error (%s): %s: %v", e.Kind, e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s gateway error (%s): %s", e.Kind, e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Transient creates a retryable gateway error.
func Transient(reason, message string, cause error) *Error {
	return &Error{Kind: KindTransient, Reason: reason, Message: message, Cause: cause}
}

// Permanent creates a non-retryable gateway error.
func Permanent(reason, message string, cause error) *Error {
	return &Error{Kind: KindPermanent, Reason: reason, Message: message, Cause: cause}
}

// IsTransient reports whether err is a retryable gateway error.
func IsTransient(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == KindTransient
}
