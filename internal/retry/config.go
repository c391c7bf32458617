package retry

import "time"

const (
	DefaultMaxAttempts      = 3
	DefaultBaseDelay        = 1 * time.Second
	DefaultMaxDelay         = 10 * time.Second
	DefaultOperationTimeout = 30 * time.Second
)

// Config defines the parameters for the attempt bound and the backoff between
// transient failures.
type Config struct {
	// MaxAttempts is the total number of times an operation may be invoked,
	// including the first attempt and the retry that follows a token refresh.
	// For example, if MaxAttempts is 3, the operation runs at most 3 times.
	MaxAttempts int

	// BaseDelay is the initial wait time before the first retry.
	// This duration increases exponentially with each attempt (BaseDelay * 2^attempt).
	// A zero BaseDelay retries without waiting.
	BaseDelay time.Duration

	// MaxDelay is the hard limit for the sleep duration between retries.
	MaxDelay time.Duration

	// OperationTimeout is the total time limit for one Execute call, including all retries.
	// Zero means the call is only bound by the caller's context.
	OperationTimeout time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      DefaultMaxAttempts,
		BaseDelay:        DefaultBaseDelay,
		MaxDelay:         DefaultMaxDelay,
		OperationTimeout: DefaultOperationTimeout,
	}
}

func (c Config) normalize() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}
