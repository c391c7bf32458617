package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/buildinfo"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/config"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/diagnostics"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
)

// ProbeResult summarises one probe run.
type ProbeResult struct {
	Datasets int
	Dataset  string
	Duration time.Duration
}

// BuildStack parses the driver options and builds a Stack for them.
func BuildStack(options map[string]string, settings StackSettings) (*Stack, error) {
	opts, err := config.Parse(options)
	if err != nil {
		return nil, err
	}
	return NewStack(opts, settings)
}

// RunProbe checks that the connection described by stack works end to end.
//
// Responsibilities:
//  1. Authentication: the first call fetches a token; an expired one is refreshed once.
//  2. Discovery: lists the project's datasets, or fetches the configured dataset.
//  3. Alerting: a failed probe is reported to the webhook, if one is configured.
//  4. Safety: respects the timeout so a hung endpoint can't block the caller forever.
func RunProbe(ctx context.Context, stack *Stack, timeoutSeconds int, webhook *diagnostics.Webhook, logger *slog.Logger) (ProbeResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if timeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
		logger.Debug("Probe timeout configured", "timeout_seconds", timeoutSeconds)
	}

	start := time.Now()
	result := ProbeResult{}
	operation := "ListDatasets"

	var err error
	if dataset := stack.Options.DatasetID; dataset != "" {
		operation = "GetDataset"
		logger.Debug("Fetching configured dataset", "dataset_id", dataset)
		ds, getErr := stack.Client.GetDataset(ctx, dataset)
		result.Dataset, err = ds.ID, getErr
	} else {
		logger.Debug("Listing project datasets")
		list, listErr := stack.Client.ListDatasets(ctx)
		result.Datasets, err = len(list.Datasets), listErr
	}
	result.Duration = time.Since(start)

	if err != nil {
		logProbeFailure(logger, operation, err)
		if retry.IsTokenExpired(err) {
			// The cached credential was rejected even after a refresh; the
			// next run starts from a fresh fetch instead of resending it.
			stack.Refresher.Invalidate()
		}
		notifyFailure(ctx, webhook, stack, operation, err, logger)
		return result, fmt.Errorf("probe failed: %w", err)
	}

	logger.Info("Probe completed",
		"operation", operation,
		"datasets", result.Datasets,
		"dataset", result.Dataset,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// RunCredentialRefresh refreshes the connection's token ahead of expiry.
func RunCredentialRefresh(ctx context.Context, stack *Stack, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := stack.Refresher.RefreshToken(ctx, 0); err != nil {
		logger.Error("Credential refresh failed", "error", err)
		return err
	}

	logger.Info("Credential refreshed", "physical_refreshes", stack.Refresher.Refreshes())
	return nil
}

func logProbeFailure(logger *slog.Logger, operation string, err error) {
	var failure *retry.Failure
	if errors.As(err, &failure) {
		logger.Error("Probe failed",
			"operation", operation,
			"status", failure.StatusCode,
			"classification", failure.Classification.String(),
			"attempts", failure.Attempts,
			"exhausted", failure.Exhausted,
			"credential_rejected", retry.IsTokenExpired(err),
			"error", err)
		return
	}
	logger.Error("Probe failed", "operation", operation, "error", err)
}

func notifyFailure(ctx context.Context, webhook *diagnostics.Webhook, stack *Stack, operation string, err error, logger *slog.Logger) {
	if !webhook.Enabled() {
		return
	}

	report := diagnostics.NewFailureReport(operation, err)
	report.Service = buildinfo.Name()
	report.Version = buildinfo.Version()
	report.Project = stack.Options.ProjectID

	// The probe context may already be exhausted; the alert gets its own budget.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if notifyErr := webhook.Notify(notifyCtx, report); notifyErr != nil {
		logger.Warn("Failed to send failure notification", "error", notifyErr)
	}
}
