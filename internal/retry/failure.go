package retry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gophercloud/gophercloud/v2"
)

// Failure is the error returned by an operation attempt and, after annotation,
// the single error surfaced by a Caller.
//
// Operations may return a *Failure directly (the BigQuery client does) or any
// other error; the Caller annotates whatever it got with the number of attempts
// made and the classification that ended the call.
type Failure struct {
	// StatusCode is the remote (HTTP) status, 0 when the call never got a response.
	StatusCode int
	// Message is the remote error message, if the payload carried one.
	Message string
	// Reason is the machine readable reason from the remote payload (e.g. "rateLimitExceeded").
	Reason string
	// IsAuthError marks failures caused by an expired or rejected credential.
	IsAuthError bool

	// Attempts is the number of times the operation was invoked. Set by the Caller.
	Attempts int
	// Classification is the decision that ended the call. Set by the Caller.
	// A Failure with Attempts set is finished and Classify returns this value.
	Classification Classification
	// Exhausted is set when the call ended because MaxAttempts was reached
	// on a failure that would otherwise have been retried.
	Exhausted bool

	Err error
}

// NewFailure builds a Failure for a remote response with the given status.
func NewFailure(statusCode int, message string) *Failure {
	return &Failure{
		StatusCode:  statusCode,
		Message:     message,
		IsAuthError: ClassifyStatus(statusCode) == RetriableAfterReauth,
	}
}

func (f *Failure) Error() string {
	var b strings.Builder

	switch {
	case f.Message != "":
		b.WriteString(f.Message)
		if f.StatusCode != 0 {
			fmt.Fprintf(&b, " (status %d)", f.StatusCode)
		}
		if f.Err != nil {
			b.WriteString(": ")
			b.WriteString(f.Err.Error())
		}
	case f.Err != nil:
		b.WriteString(f.Err.Error())
	case f.StatusCode != 0:
		fmt.Fprintf(&b, "remote call failed with status %d", f.StatusCode)
	default:
		b.WriteString("remote call failed")
	}

	if f.Attempts > 0 {
		fmt.Fprintf(&b, " [attempts=%d classification=%s", f.Attempts, f.Classification)
		if f.Exhausted {
			b.WriteString(" exhausted")
		}
		b.WriteString("]")
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// annotate returns a fresh *Failure describing err after the given number of
// attempts. A *Failure found in err is copied, never mutated, because the
// same value may be returned to several concurrent callers.
func annotate(err error, attempts int, class Classification) *Failure {
	var out Failure

	var found *Failure
	if errors.As(err, &found) {
		out = *found
		if error(found) != err {
			// err wraps the failure with extra context; keep the full chain.
			out.Message = ""
			out.Err = err
		}
	} else {
		out.Err = err
		out.StatusCode = statusCodeOf(err)
	}

	out.Attempts = attempts
	out.Classification = class
	return &out
}

// statusCodeOf extracts a remote status from errors that are not Failures.
func statusCodeOf(err error) int {
	var gopherErr gophercloud.ErrUnexpectedResponseCode
	if errors.As(err, &gopherErr) {
		return gopherErr.Actual
	}
	return 0
}
