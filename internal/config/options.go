// Package config turns ADBC-style driver options into typed settings.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
	"github.com/go-viper/mapstructure/v2"
)

// Driver option keys.
const (
	OptionAuthType         = "adbc.bigquery.sql.auth_type"
	OptionAuthCredentials  = "adbc.bigquery.sql.auth_credentials"
	OptionAuthClientID     = "adbc.bigquery.sql.auth.client_id"
	OptionAuthClientSecret = "adbc.bigquery.sql.auth.client_secret"
	OptionAuthRefreshToken = "adbc.bigquery.sql.auth.refresh_token"
	OptionProjectID        = "adbc.bigquery.sql.project_id"
	OptionDatasetID        = "adbc.bigquery.sql.dataset_id"
	OptionTableID          = "adbc.bigquery.sql.table_id"

	OptionScopes           = "callguard.auth.scopes"
	OptionKeystoneProfile  = "callguard.auth.keystone_profile"
	OptionEndpoint         = "callguard.endpoint"
	OptionMaxAttempts      = "callguard.retry.max_attempts"
	OptionBaseDelay        = "callguard.retry.base_delay"
	OptionMaxDelay         = "callguard.retry.max_delay"
	OptionOperationTimeout = "callguard.retry.operation_timeout"
	OptionTraceSafe        = "callguard.trace.safe"
)

// Supported values of OptionAuthType.
const (
	AuthTypeUserAuthentication   = "adbc.bigquery.sql.auth_type.user_authentication"
	AuthTypeTemporaryAccessToken = "adbc.bigquery.sql.auth_type.temporary_access_token"
	AuthTypeKeystone             = "callguard.auth_type.keystone"
)

// Options is the typed form of the driver option map.
type Options struct {
	AuthType     string `json:"adbc.bigquery.sql.auth_type"`
	Credentials  string `json:"adbc.bigquery.sql.auth_credentials"`
	ClientID     string `json:"adbc.bigquery.sql.auth.client_id"`
	ClientSecret string `json:"adbc.bigquery.sql.auth.client_secret"`
	RefreshToken string `json:"adbc.bigquery.sql.auth.refresh_token"`
	ProjectID    string `json:"adbc.bigquery.sql.project_id"`
	DatasetID    string `json:"adbc.bigquery.sql.dataset_id"`
	TableID      string `json:"adbc.bigquery.sql.table_id"`

	// Scopes is a comma separated list; empty means the default BigQuery scopes.
	Scopes          []string `json:"callguard.auth.scopes"`
	KeystoneProfile string   `json:"callguard.auth.keystone_profile"`
	Endpoint        string   `json:"callguard.endpoint"`

	MaxAttempts      int           `json:"callguard.retry.max_attempts"`
	BaseDelay        time.Duration `json:"callguard.retry.base_delay"`
	MaxDelay         time.Duration `json:"callguard.retry.max_delay"`
	OperationTimeout time.Duration `json:"callguard.retry.operation_timeout"`

	TraceSafe bool `json:"callguard.trace.safe"`
}

// Parse decodes a driver option map. Unknown keys are ignored so options
// meant for other layers of the driver can share the same map.
func Parse(options map[string]string) (Options, error) {
	parsed, err := decodeOptions[Options](options)
	if err != nil {
		return Options{}, fmt.Errorf("invalid driver options: %w", err)
	}

	parsed.AuthType = strings.TrimSpace(parsed.AuthType)
	parsed.ProjectID = strings.TrimSpace(parsed.ProjectID)
	return *parsed, nil
}

// Validate checks that the options describe a usable connection.
func (o Options) Validate() error {
	if o.ProjectID == "" {
		return fmt.Errorf("%s is required", OptionProjectID)
	}

	switch o.AuthType {
	case AuthTypeUserAuthentication:
		var missing []string
		if o.ClientID == "" {
			missing = append(missing, OptionAuthClientID)
		}
		if o.ClientSecret == "" {
			missing = append(missing, OptionAuthClientSecret)
		}
		if o.RefreshToken == "" {
			missing = append(missing, OptionAuthRefreshToken)
		}
		if len(missing) > 0 {
			return fmt.Errorf("user authentication requires %s", strings.Join(missing, ", "))
		}
	case AuthTypeTemporaryAccessToken:
		if o.Credentials == "" {
			return fmt.Errorf("temporary access token requires %s", OptionAuthCredentials)
		}
	case AuthTypeKeystone:
		if o.KeystoneProfile == "" {
			return fmt.Errorf("keystone authentication requires %s", OptionKeystoneProfile)
		}
	case "":
		return errors.New(OptionAuthType + " is required")
	default:
		return fmt.Errorf("unsupported %s '%s'", OptionAuthType, o.AuthType)
	}

	if o.MaxAttempts < 0 {
		return fmt.Errorf("%s must not be negative", OptionMaxAttempts)
	}
	return nil
}

// RetryConfig returns the retry settings, falling back to the defaults for
// anything left unset.
func (o Options) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	if o.MaxAttempts > 0 {
		cfg.MaxAttempts = o.MaxAttempts
	}
	if o.BaseDelay > 0 {
		cfg.BaseDelay = o.BaseDelay
	}
	if o.MaxDelay > 0 {
		cfg.MaxDelay = o.MaxDelay
	}
	if o.OperationTimeout > 0 {
		cfg.OperationTimeout = o.OperationTimeout
	}
	return cfg
}

// decodeOptions is a generic helper to unmarshal a map[string]string
// into a strongly-typed struct using JSON tags.
// It uses weak typing to handle string-to-int/bool conversions.
func decodeOptions[T any](options map[string]string) (*T, error) {
	var result T

	config := &mapstructure.DecoderConfig{
		Result:           &result,
		WeaklyTypedInput: true,
		TagName:          "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(options); err != nil {
		return nil, err
	}

	return &result, nil
}
