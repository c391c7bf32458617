package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
)

// Webhook posts failure reports to an alerting endpoint.
type Webhook struct {
	URL      string
	Username string
	Password string
}

// FailureReport is the alert payload sent when a call gives up.
type FailureReport struct {
	Service        string `json:"service"`
	Version        string `json:"version"`
	Project        string `json:"project_id"`
	Operation      string `json:"operation"`
	StatusCode     int    `json:"status_code,omitempty"`
	Classification string `json:"classification"`
	Attempts       int    `json:"attempts"`
	Exhausted      bool   `json:"exhausted,omitempty"`
	// CredentialRejected is set when the remote refused the credential.
	CredentialRejected bool      `json:"credential_rejected,omitempty"`
	Message            string    `json:"message"`
	Time               time.Time `json:"time"`
}

// NewFailureReport describes err, filling status and attempts when err is a *retry.Failure.
func NewFailureReport(operation string, err error) FailureReport {
	report := FailureReport{
		Operation:      operation,
		Classification: retry.Fatal.String(),
		Message:        err.Error(),
		Time:           time.Now().UTC(),

		CredentialRejected: retry.IsTokenExpired(err),
	}

	var failure *retry.Failure
	if errors.As(err, &failure) {
		report.StatusCode = failure.StatusCode
		report.Classification = failure.Classification.String()
		report.Attempts = failure.Attempts
		report.Exhausted = failure.Exhausted
	}
	return report
}

// Enabled reports whether a webhook URL is configured.
func (w *Webhook) Enabled() bool {
	return w != nil && w.URL != ""
}

func (w *Webhook) Notify(ctx context.Context, report FailureReport) error {

	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	client := http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if w.Username != "" || w.Password != "" {
		req.SetBasicAuth(w.Username, w.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification via webhook: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to send notification via webhook: %d", resp.StatusCode)
	}

	return nil
}
