package workflow

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/auth"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/bigquery"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/buildinfo"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/config"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/diagnostics"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
	"github.com/prometheus/client_golang/prometheus"
)

// Stack is one connection's worth of collaborators. Everything in it is
// shared by all calls made on that connection, the Refresher in particular.
type Stack struct {
	Options   config.Options
	Refresher *auth.Refresher
	Caller    *retry.Caller
	Client    *bigquery.Client
	Metrics   *diagnostics.MetricsSink
}

// StackSettings holds what the stack needs beyond the driver options.
type StackSettings struct {
	Logger *slog.Logger
	// Registerer receives the retry metrics; nil disables them.
	Registerer prometheus.Registerer
	// TraceSafe opens the trace gate in addition to the trace option.
	TraceSafe  bool
	HTTPClient *http.Client
}

// NewStack validates the options and wires the token source, refresher,
// retry caller and BigQuery client together.
func NewStack(opts config.Options, settings StackSettings) (*Stack, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stack := &Stack{Options: opts}

	sinks := diagnostics.MultiSink{diagnostics.LogSink{Logger: logger.With("component", "retry")}}
	if settings.Registerer != nil {
		stack.Metrics = diagnostics.NewMetricsSink(settings.Registerer)
		sinks = append(sinks, stack.Metrics)
	}

	caller := &retry.Caller{
		Config: opts.RetryConfig(),
		Sink:   sinks,
		Gate:   retry.NewTraceGate(opts.TraceSafe || settings.TraceSafe),
	}

	source, err := newTokenSource(opts, caller, settings.HTTPClient)
	if err != nil {
		return nil, err
	}

	stack.Refresher = auth.NewRefresher(source)
	caller.Refresher = stack.Refresher
	stack.Caller = caller

	httpClient := settings.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	stack.Client = &bigquery.Client{
		Endpoint:   opts.Endpoint,
		ProjectID:  opts.ProjectID,
		UserAgent:  buildinfo.UserAgent(),
		HTTPClient: httpClient,
		Tokens:     stack.Refresher,
		Caller:     caller,
	}

	return stack, nil
}

func newTokenSource(opts config.Options, caller *retry.Caller, httpClient *http.Client) (auth.TokenSource, error) {
	switch opts.AuthType {
	case config.AuthTypeUserAuthentication:
		source := auth.NewOAuth2Source(opts.ClientID, opts.ClientSecret, opts.RefreshToken, opts.Scopes)
		source.HTTPClient = httpClient
		return source, nil
	case config.AuthTypeTemporaryAccessToken:
		return auth.StaticSource{Token: opts.Credentials}, nil
	case config.AuthTypeKeystone:
		// Authentication gets its own caller without a Refresher: a 401 from
		// Keystone must not try to refresh through the source being built.
		authCaller := &retry.Caller{Config: caller.Config, Sink: caller.Sink, Gate: caller.Gate}
		return &auth.KeystoneSource{ProfileName: opts.KeystoneProfile, Caller: authCaller}, nil
	default:
		return nil, fmt.Errorf("unsupported %s '%s'", config.OptionAuthType, opts.AuthType)
	}
}
