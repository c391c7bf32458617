package config

import (
	"maps"

	"github.com/spf13/viper"
)

// envBindings maps each option to the environment variables it is read
// from, in order of preference.
var envBindings = map[string][]string{
	OptionAuthType:         {"ADBC_BIGQUERY_AUTH_TYPE"},
	OptionAuthCredentials:  {"ADBC_BIGQUERY_AUTH_CREDENTIALS"},
	OptionAuthClientID:     {"ADBC_BIGQUERY_AUTH_CLIENT_ID"},
	OptionAuthClientSecret: {"ADBC_BIGQUERY_AUTH_CLIENT_SECRET"},
	OptionAuthRefreshToken: {"ADBC_BIGQUERY_AUTH_REFRESH_TOKEN"},
	OptionProjectID:        {"ADBC_BIGQUERY_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
	OptionDatasetID:        {"ADBC_BIGQUERY_DATASET_ID"},
	OptionTableID:          {"ADBC_BIGQUERY_TABLE_ID"},
	OptionScopes:           {"CALLGUARD_AUTH_SCOPES"},
	OptionKeystoneProfile:  {"CALLGUARD_KEYSTONE_PROFILE", "OS_CLOUD"},
	OptionEndpoint:         {"CALLGUARD_ENDPOINT"},
	OptionMaxAttempts:      {"CALLGUARD_MAX_ATTEMPTS"},
	OptionBaseDelay:        {"CALLGUARD_BASE_DELAY"},
	OptionMaxDelay:         {"CALLGUARD_MAX_DELAY"},
	OptionOperationTimeout: {"CALLGUARD_OPERATION_TIMEOUT"},
	OptionTraceSafe:        {"CALLGUARD_TRACE_SAFE"},
}

// FromEnv collects every option that is set in the environment.
func FromEnv() map[string]string {
	v := viper.New()
	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	options := make(map[string]string)
	for key := range envBindings {
		if value := v.GetString(key); value != "" {
			options[key] = value
		}
	}
	return options
}

// Merge layers the given option maps; later maps override earlier ones.
func Merge(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		maps.Copy(merged, layer)
	}
	return merged
}
