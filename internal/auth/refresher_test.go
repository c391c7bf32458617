package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
)

// countingSource hands out numbered tokens. When release is set, every
// fetch blocks until it is closed.
type countingSource struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	ttl     time.Duration
}

func (s *countingSource) FetchToken(ctx context.Context) (CredentialToken, error) {
	n := s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return CredentialToken{}, s.err
	}
	tok := CredentialToken{Value: fmt.Sprintf("token-%d", n)}
	if s.ttl > 0 {
		tok.Expiry = time.Now().Add(s.ttl)
	}
	return tok, nil
}

// waitForPending blocks until n callers are inside RefreshToken.
func waitForPending(t *testing.T, r *Refresher, n int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for r.pending.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d callers reached RefreshToken", r.pending.Load(), n)
		}
		time.Sleep(time.Millisecond)
	}
	// Give the last caller time to join the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
}

func TestRefresher_TokenCachesUntilExpiry(t *testing.T) {
	source := &countingSource{ttl: time.Hour}
	r := NewRefresher(source)

	for i := 0; i < 3; i++ {
		tok, err := r.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok.Value != "token-1" {
			t.Errorf("Token() = %q, want token-1", tok.Value)
		}
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}

	// Jump past the expiry window.
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	tok, err := r.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.Value != "token-2" {
		t.Errorf("Token() after expiry = %q, want token-2", tok.Value)
	}
}

func TestRefresher_InvalidateForcesFetch(t *testing.T) {
	source := &countingSource{}
	r := NewRefresher(source)

	if _, err := r.Token(context.Background()); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	r.Invalidate()
	tok, err := r.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.Value != "token-2" || r.Refreshes() != 2 {
		t.Errorf("got %q after %d refreshes, want token-2 after 2", tok.Value, r.Refreshes())
	}
}

func TestRefresher_CoalescesConcurrentRefreshes(t *testing.T) {
	source := &countingSource{release: make(chan struct{})}
	r := NewRefresher(source)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.RefreshToken(context.Background(), 0)
		}()
	}

	waitForPending(t, r, callers)
	close(source.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("RefreshToken() error = %v", err)
		}
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("physical refreshes = %d, want 1", got)
	}
	if tok, _ := r.current(); tok.Value != "token-1" {
		t.Errorf("current token = %q, want token-1", tok.Value)
	}
}

func TestRefresher_FailurePropagatesToAllWaiters(t *testing.T) {
	idpErr := errors.New("identity provider unreachable")
	source := &countingSource{release: make(chan struct{}), err: idpErr}
	r := NewRefresher(source)

	const callers = 4
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.RefreshToken(context.Background(), 0)
		}()
	}

	waitForPending(t, r, callers)
	close(source.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, idpErr) {
			t.Errorf("RefreshToken() error = %v, want %v", err, idpErr)
		}
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("physical refreshes = %d, want 1", got)
	}
}

func TestRefresher_WaiterCancellation(t *testing.T) {
	source := &countingSource{release: make(chan struct{})}
	r := NewRefresher(source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.RefreshToken(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("RefreshToken() error = %v, want context.Canceled", err)
	}
	close(source.release)
}

func TestRefresher_NoSource(t *testing.T) {
	r := NewRefresher(nil)
	if err := r.RefreshToken(context.Background(), 0); !errors.Is(err, ErrNoTokenSource) {
		t.Errorf("RefreshToken() error = %v, want ErrNoTokenSource", err)
	}
}

func TestRefresher_EmptyTokenIsAnError(t *testing.T) {
	r := NewRefresher(StaticSource{})
	if err := r.RefreshToken(context.Background(), 0); err == nil {
		t.Error("RefreshToken() error = nil, want error for empty token")
	}
}

// Two calls sharing one connection both see their token rejected; only one
// physical refresh may happen and both calls must then succeed.
func TestExecute_ConcurrentReauthSharesOneRefresh(t *testing.T) {
	source := &countingSource{release: make(chan struct{})}
	r := NewRefresher(source)
	caller := &retry.Caller{
		Config:    retry.Config{MaxAttempts: 3},
		Refresher: r,
	}

	operation := func(ctx context.Context) (string, error) {
		tok, _ := r.current()
		if tok.Value == "" {
			return "", retry.NewFailure(401, "Request had invalid authentication credentials")
		}
		return tok.Value, nil
	}

	const callers = 2
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = retry.Execute(context.Background(), caller, "ListDatasets", operation)
		}(i)
	}

	waitForPending(t, r, callers)
	close(source.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("call %d error = %v", i, errs[i])
		}
		if results[i] != "token-1" {
			t.Errorf("call %d result = %q, want token-1", i, results[i])
		}
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("physical refreshes = %d, want 1", got)
	}
}

func TestRefresher_ReplacedGenerationIsNotRefreshedAgain(t *testing.T) {
	source := &countingSource{}
	r := NewRefresher(source)

	if _, err := r.Token(context.Background()); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if err := r.RefreshToken(context.Background(), 1); err != nil {
		t.Fatalf("RefreshToken(1) error = %v", err)
	}
	// Generation 1 is gone; a late caller still holding it must not fetch.
	if err := r.RefreshToken(context.Background(), 1); err != nil {
		t.Fatalf("late RefreshToken(1) error = %v", err)
	}

	if got := source.calls.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
	if tok, generation := r.current(); tok.Value != "token-2" || generation != 2 {
		t.Errorf("current = (%q, %d), want (token-2, 2)", tok.Value, generation)
	}
}

// Both calls send token-1 and get rejected, but the second rejection only
// arrives after the first call has already refreshed and finished.
func TestExecute_StaggeredReauthSharesOneRefresh(t *testing.T) {
	source := &countingSource{}
	r := NewRefresher(source)
	if _, err := r.Token(context.Background()); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	caller := &retry.Caller{
		Config:    retry.Config{MaxAttempts: 3},
		Refresher: r,
	}

	operation := func(sent chan<- struct{}, hold <-chan struct{}) retry.Operation[string] {
		return func(ctx context.Context) (string, error) {
			tok, err := r.Token(ctx)
			if err != nil {
				return "", err
			}
			if tok.Value != "token-1" {
				return tok.Value, nil
			}
			if sent != nil {
				close(sent)
				<-hold
			}
			return "", retry.NewFailure(401, "Request had invalid authentication credentials")
		}
	}

	sent := make(chan struct{})
	hold := make(chan struct{})
	var late string
	var lateErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		late, lateErr = retry.Execute(context.Background(), caller, "GetDataset", operation(sent, hold))
	}()
	<-sent

	early, err := retry.Execute(context.Background(), caller, "ListDatasets", operation(nil, nil))
	if err != nil || early != "token-2" {
		t.Fatalf("early call = (%q, %v), want token-2", early, err)
	}

	close(hold)
	<-done
	if lateErr != nil || late != "token-2" {
		t.Errorf("late call = (%q, %v), want token-2", late, lateErr)
	}
	// One fetch for the first token, one physical refresh for both rejections.
	if got := source.calls.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestCredentialToken_Valid(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		token CredentialToken
		want  bool
	}{
		{name: "Empty", token: CredentialToken{}, want: false},
		{name: "No Expiry", token: CredentialToken{Value: "t"}, want: true},
		{name: "Future", token: CredentialToken{Value: "t", Expiry: now.Add(time.Hour)}, want: true},
		{name: "Inside Skew", token: CredentialToken{Value: "t", Expiry: now.Add(5 * time.Second)}, want: false},
		{name: "Past", token: CredentialToken{Value: "t", Expiry: now.Add(-time.Minute)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Valid(now); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
