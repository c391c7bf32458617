package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Refresher renews the shared credential.
//
// stale is the generation of the credential the failed attempt sent, as
// reported through RecordCredential, or 0 when the attempt recorded none.
// Implementations must coalesce concurrent calls for the same generation into
// a single physical refresh and must return without refreshing when stale has
// already been replaced.
type Refresher interface {
	RefreshToken(ctx context.Context, stale uint64) error
}

type attemptKey struct{}

// attemptCredential is the per-attempt slot RecordCredential writes to.
type attemptCredential struct {
	generation atomic.Uint64
}

// RecordCredential notes the generation of the credential an attempt is about
// to send. Token providers call it with the context passed to the operation,
// so a rejected attempt refreshes exactly the credential it used.
func RecordCredential(ctx context.Context, generation uint64) {
	if slot, ok := ctx.Value(attemptKey{}).(*attemptCredential); ok {
		slot.generation.Store(generation)
	}
}

// Event describes one attempt made by a Caller.
type Event struct {
	CallID         string
	Operation      string
	Attempt        int
	Succeeded      bool
	Classification Classification
	Duration       time.Duration
	// Refreshed is set on the attempt that followed a token refresh.
	Refreshed bool
	Err       error
}

// Sink receives attempt events. Emit is only called when the Caller's
// TraceGate reports that tracing is safe.
type Sink interface {
	Emit(event Event)
}

// RetryState is the per-call bookkeeping of an Execute call. It is created at
// the start of the call and never shared with other calls.
type RetryState struct {
	Attempt         int
	MaxAttempts     int
	Reauthenticated bool
	LastFailure     *Failure
}

// Operation performs one remote invocation attempt.
type Operation[T any] func(ctx context.Context) (T, error)

// Caller wraps remote operations with failure classification, coordinated
// token refresh and bounded retry. A Caller holds no per-call state and is
// safe for concurrent use; all its fields are optional.
type Caller struct {
	// Config defines the attempt bound and backoff.
	Config Config
	// Refresher is shared by every call on the same connection.
	// Without one, RetriableAfterReauth failures are returned as they are.
	Refresher Refresher
	// Sink receives diagnostics, gated by Gate.
	Sink Sink
	// Gate is checked before every emission. A nil gate never allows tracing.
	Gate *TraceGate
}

// Execute runs op through c and returns its response.
func Execute[T any](ctx context.Context, c *Caller, name string, op Operation[T]) (T, error) {
	resp, _, err := ExecuteWithState(ctx, c, name, op)
	return resp, err
}

// ExecuteWithState is Execute but also returns the call's RetryState, so
// callers can see how many attempts a successful call took.
//
// Behavior:
//   - Fatal: the failure is returned immediately.
//   - RetriableImmediately: the operation is retried with exponential backoff
//     until MaxAttempts is reached.
//   - RetriableAfterReauth: the token is refreshed once and the operation is
//     retried without waiting. A second auth failure in the same call is Fatal.
//
// Every error returned is a Fatal *Failure carrying the attempt count. When
// the bound was reached on a retriable failure, Exhausted is set.
func ExecuteWithState[T any](ctx context.Context, c *Caller, name string, op Operation[T]) (T, RetryState, error) {
	var zero T
	if c == nil {
		c = &Caller{}
	}
	cfg := c.Config.normalize()
	state := RetryState{MaxAttempts: cfg.MaxAttempts}

	// Enforce the per-call time limit so the retry loop can't run indefinitely.
	if cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.OperationTimeout)
		defer cancel()
	}

	callID := uuid.NewString()
	refreshed := false

	for state.Attempt < state.MaxAttempts {
		// Stop immediately if the context is cancelled or timed out.
		if err := ctx.Err(); err != nil {
			state.LastFailure = annotate(
				fmt.Errorf("%s cancelled before attempt %d: %w", name, state.Attempt+1, err),
				state.Attempt, Fatal)
			return zero, state, state.LastFailure
		}

		state.Attempt++
		used := &attemptCredential{}
		start := time.Now()
		resp, err := op(context.WithValue(ctx, attemptKey{}, used))
		elapsed := time.Since(start)

		if err == nil {
			c.emit(Event{
				CallID:    callID,
				Operation: name,
				Attempt:   state.Attempt,
				Succeeded: true,
				Duration:  elapsed,
				Refreshed: refreshed,
			})
			return resp, state, nil
		}

		class := Classify(err)
		if class == RetriableAfterReauth && (state.Reauthenticated || c.Refresher == nil) {
			// The refreshed credential was rejected too (or there is no way
			// to refresh); refreshing again would only loop.
			class = Fatal
		}
		exhausted := class != Fatal && state.Attempt >= state.MaxAttempts
		if exhausted {
			class = Fatal
		}
		state.LastFailure = annotate(err, state.Attempt, class)
		state.LastFailure.Exhausted = exhausted

		c.emit(Event{
			CallID:         callID,
			Operation:      name,
			Attempt:        state.Attempt,
			Classification: class,
			Duration:       elapsed,
			Refreshed:      refreshed,
			Err:            err,
		})
		refreshed = false

		if class == Fatal {
			return zero, state, state.LastFailure
		}

		switch class {
		case RetriableAfterReauth:
			state.Reauthenticated = true
			if rerr := c.Refresher.RefreshToken(ctx, used.generation.Load()); rerr != nil {
				state.LastFailure = &Failure{
					StatusCode:     state.LastFailure.StatusCode,
					Message:        "credential refresh failed",
					IsAuthError:    true,
					Attempts:       state.Attempt,
					Classification: Fatal,
					Err:            rerr,
				}
				return zero, state, state.LastFailure
			}
			refreshed = true

		case RetriableImmediately:
			delay := backoff(cfg, state.Attempt-1)
			if delay <= 0 {
				continue
			}
			// Wait with context awareness.
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				state.LastFailure = annotate(
					fmt.Errorf("%s cancelled during backoff: %w", name, ctx.Err()),
					state.Attempt, Fatal)
				return zero, state, state.LastFailure
			}
		}
	}

	return zero, state, state.LastFailure
}

// ExecuteAction runs an operation that returns no response.
func (c *Caller) ExecuteAction(ctx context.Context, name string, operation func(ctx context.Context) error) error {
	_, err := Execute(ctx, c, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

// IsSafeToTrace reports whether c may currently emit diagnostics.
func (c *Caller) IsSafeToTrace() bool {
	return c.Gate.IsSafeToTrace()
}

func (c *Caller) emit(event Event) {
	if c.Sink == nil || !c.IsSafeToTrace() {
		return
	}
	c.Sink.Emit(event)
}

// backoff returns the wait before the retry that follows the given zero-based attempt.
// Formula: BaseDelay * 2^attempt plus up to 50% jitter, capped at MaxDelay.
func backoff(cfg Config, attempt int) time.Duration {
	if cfg.BaseDelay <= 0 {
		return 0
	}

	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay >= float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}

	// Randomize the wait time so concurrent callers don't retry in lockstep.
	if half := int64(delay) / 2; half > 0 {
		delay += float64(rand.Int63n(half))
	}

	return min(time.Duration(delay), cfg.MaxDelay)
}
