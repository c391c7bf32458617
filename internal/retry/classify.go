package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/gophercloud/gophercloud/v2"
	"golang.org/x/oauth2"
)

// Classification is the retry decision for a failed remote call.
// The zero value is Fatal so an unset classification never causes a retry.
type Classification int

const (
	// Fatal failures are returned to the caller immediately.
	Fatal Classification = iota
	// RetriableImmediately failures are transient (rate limits, 5xx, network resets)
	// and are retried up to the attempt bound without any state change.
	RetriableImmediately
	// RetriableAfterReauth failures indicate an expired or rejected credential.
	// They trigger one coordinated token refresh before the next attempt.
	RetriableAfterReauth
)

func (c Classification) String() string {
	switch c {
	case RetriableImmediately:
		return "retriable_immediately"
	case RetriableAfterReauth:
		return "retriable_after_reauth"
	default:
		return "fatal"
	}
}

// Remote error reasons (as reported in the "errors[].reason" payload of Google APIs)
// that are safe to retry even when the HTTP status alone would be fatal.
// BigQuery reports rate limiting as 403 rateLimitExceeded, for example.
var transientReasons = map[string]bool{
	"rateLimitExceeded": true,
	"backendError":      true,
	"internalError":     true,
	"jobBackendError":   true,
}

// ClassifyStatus maps an HTTP status code to a Classification.
// Anything not listed is Fatal.
func ClassifyStatus(code int) Classification {
	switch code {
	case http.StatusUnauthorized: // 401 - token expired or revoked
		return RetriableAfterReauth
	case http.StatusTooManyRequests, // 429 - Rate Limiting
		http.StatusRequestTimeout,      // 408 - Client Timeout
		http.StatusInternalServerError, // 500 - Server Error
		http.StatusBadGateway,          // 502 - Upstream Failure
		http.StatusServiceUnavailable,  // 503 - Maintenance/Overload
		http.StatusGatewayTimeout:      // 504 - Upstream Timeout
		return RetriableImmediately
	default:
		// Malformed requests, not-found and permission errors are not going
		// to succeed by sending the same request again.
		return Fatal
	}
}

// Classify decides how a failed attempt should be handled. It is a pure,
// total function: every error maps to exactly one Classification and
// anything unrecognised is Fatal.
func Classify(err error) Classification {
	if err == nil {
		return Fatal
	}

	// Cancellation is never retried, regardless of what the remote said.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	var failure *Failure
	if errors.As(err, &failure) {
		switch {
		case failure.Attempts > 0:
			// Already through a Caller; its verdict stands.
			return failure.Classification
		case failure.IsAuthError:
			return RetriableAfterReauth
		case transientReasons[failure.Reason]:
			return RetriableImmediately
		case failure.StatusCode != 0:
			return ClassifyStatus(failure.StatusCode)
		case failure.Err != nil:
			return Classify(failure.Err)
		default:
			return Fatal
		}
	}

	var gopherErr gophercloud.ErrUnexpectedResponseCode
	if errors.As(err, &gopherErr) {
		return ClassifyStatus(gopherErr.Actual)
	}

	// The identity provider rejected the refresh itself; retrying the
	// grant will not change the answer.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return Fatal
	}

	if isTransientNetworkError(err) {
		return RetriableImmediately
	}

	return Fatal
}

// IsTokenExpired reports whether err carries a rejected credential (a 401 or
// an explicit auth error), whatever the call finally made of it.
func IsTokenExpired(err error) bool {
	var failure *Failure
	if errors.As(err, &failure) && (failure.IsAuthError || failure.StatusCode == http.StatusUnauthorized) {
		return true
	}

	var gopherErr gophercloud.ErrUnexpectedResponseCode
	return errors.As(err, &gopherErr) && gopherErr.Actual == http.StatusUnauthorized
}

func isTransientNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
