package bigquery

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// errorPayload is the Google API error envelope.
type errorPayload struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// StatusFailure converts a non-2xx response into a *retry.Failure, keeping
// the remote message and reason when the body is a Google API error.
func StatusFailure(resp *http.Response) *retry.Failure {
	failure := retry.NewFailure(resp.StatusCode, http.StatusText(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return failure
	}

	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return failure
	}

	if payload.Error.Message != "" {
		failure.Message = payload.Error.Message
	}
	if len(payload.Error.Errors) > 0 {
		failure.Reason = payload.Error.Errors[0].Reason
	}
	if payload.Error.Status == "UNAUTHENTICATED" {
		failure.IsAuthError = true
	}
	return failure
}
