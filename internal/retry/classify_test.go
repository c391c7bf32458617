package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/gophercloud/gophercloud/v2"
	"golang.org/x/oauth2"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{name: "Unauthorized", err: NewFailure(401, "token expired"), want: RetriableAfterReauth},
		{name: "Auth Flag Without Status", err: &Failure{IsAuthError: true}, want: RetriableAfterReauth},
		{name: "Wrapped Unauthorized", err: fmt.Errorf("list datasets: %w", NewFailure(401, "")), want: RetriableAfterReauth},
		{name: "Rate Limited", err: NewFailure(429, "slow down"), want: RetriableImmediately},
		{name: "Service Unavailable", err: NewFailure(503, ""), want: RetriableImmediately},
		{name: "Gateway Timeout", err: NewFailure(504, ""), want: RetriableImmediately},
		{name: "Forbidden Rate Limit Reason", err: &Failure{StatusCode: 403, Reason: "rateLimitExceeded"}, want: RetriableImmediately},
		{name: "Forbidden", err: NewFailure(403, "access denied"), want: Fatal},
		{name: "Bad Request", err: NewFailure(400, "syntax error"), want: Fatal},
		{name: "Not Found", err: NewFailure(404, "no such table"), want: Fatal},
		{name: "Unknown Status", err: NewFailure(599, ""), want: Fatal},
		{name: "Teapot", err: NewFailure(418, ""), want: Fatal},
		{name: "Empty Failure", err: &Failure{}, want: Fatal},
		{name: "Failure Wrapping Reset", err: &Failure{Err: syscall.ECONNRESET}, want: RetriableImmediately},
		{name: "Gophercloud Unauthorized", err: gophercloud.ErrUnexpectedResponseCode{Actual: 401}, want: RetriableAfterReauth},
		{name: "Gophercloud Overloaded", err: gophercloud.ErrUnexpectedResponseCode{Actual: 503}, want: RetriableImmediately},
		{name: "Gophercloud Not Found", err: gophercloud.ErrUnexpectedResponseCode{Actual: 404}, want: Fatal},
		{name: "OAuth2 Rejection", err: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, want: Fatal},
		{name: "Connection Reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, want: RetriableImmediately},
		{name: "Connection Refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: RetriableImmediately},
		{name: "Unexpected EOF", err: io.ErrUnexpectedEOF, want: RetriableImmediately},
		{name: "DNS Timeout", err: &net.DNSError{Err: "timeout", IsTimeout: true}, want: RetriableImmediately},
		{name: "DNS Not Found", err: &net.DNSError{Err: "no such host", IsNotFound: true}, want: Fatal},
		{name: "Cancelled", err: context.Canceled, want: Fatal},
		{name: "Cancelled Over Unauthorized", err: &Failure{StatusCode: 401, Err: context.Canceled}, want: Fatal},
		{name: "Deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: Fatal},
		{name: "Finished Auth Failure", err: &Failure{StatusCode: 401, IsAuthError: true, Attempts: 1, Classification: Fatal}, want: Fatal},
		{name: "Wrapped Finished Failure", err: fmt.Errorf("fetch token: %w", &Failure{StatusCode: 503, Attempts: 3, Classification: Fatal, Exhausted: true}), want: Fatal},
		{name: "Plain Error", err: errors.New("something odd"), want: Fatal},
		{name: "Nil", err: nil, want: Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus_UnknownCodesAreFatal(t *testing.T) {
	known := map[int]bool{401: true, 408: true, 429: true, 500: true, 502: true, 503: true, 504: true}

	for code := 100; code < 600; code++ {
		if known[code] {
			continue
		}
		if got := ClassifyStatus(code); got != Fatal {
			t.Errorf("ClassifyStatus(%d) = %s, want fatal", code, got)
		}
	}
}

func TestIsTokenExpired(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "Unauthorized", err: NewFailure(401, ""), want: true},
		{name: "Finished Unauthorized", err: &Failure{StatusCode: 401, Attempts: 2, Classification: Fatal}, want: true},
		{name: "Refresh Failure", err: &Failure{Message: "credential refresh failed", IsAuthError: true, Attempts: 1}, want: true},
		{name: "Gophercloud Unauthorized", err: fmt.Errorf("auth: %w", gophercloud.ErrUnexpectedResponseCode{Actual: 401}), want: true},
		{name: "Forbidden", err: NewFailure(403, ""), want: false},
		{name: "Plain Error", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTokenExpired(tt.err); got != tt.want {
				t.Errorf("IsTokenExpired(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassification_String(t *testing.T) {
	cases := map[Classification]string{
		Fatal:                "fatal",
		RetriableImmediately: "retriable_immediately",
		RetriableAfterReauth: "retriable_after_reauth",
		Classification(42):   "fatal",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
