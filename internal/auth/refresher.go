package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
	"golang.org/x/sync/singleflight"
)

// ErrNoTokenSource is returned when a Refresher was built without a source.
var ErrNoTokenSource = errors.New("auth: no token source configured")

// Refresher owns the credential shared by every call on one connection.
//
// Every fetched token gets the next generation number. A refresh names the
// generation it wants replaced: concurrent requests for the same generation
// share one fetch, and a request for a generation that has already been
// replaced returns at once. A failed refresh is returned to every waiter.
type Refresher struct {
	source TokenSource
	now    func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	token      CredentialToken
	generation uint64

	refreshes atomic.Int64
	// pending counts callers currently inside RefreshToken.
	pending atomic.Int32
}

// NewRefresher returns a Refresher fetching tokens from source.
func NewRefresher(source TokenSource) *Refresher {
	return &Refresher{
		source: source,
		now:    time.Now,
	}
}

// Token returns the current token, fetching one first if there is none or
// it has expired. The token's generation is recorded on ctx for the retry
// core.
func (r *Refresher) Token(ctx context.Context) (CredentialToken, error) {
	tok, generation := r.current()
	if !tok.Valid(r.now()) {
		if err := r.RefreshToken(ctx, generation); err != nil {
			return CredentialToken{}, err
		}
		tok, generation = r.current()
	}

	retry.RecordCredential(ctx, generation)
	return tok, nil
}

// RefreshToken replaces the token of generation stale with a freshly fetched
// one. A stale of 0 means the current token. It returns nil without fetching
// when stale has already been replaced.
//
// The fetch runs detached from the context of whichever caller started it, so
// one caller giving up does not fail the refresh for the others; ctx only
// bounds how long this caller waits.
func (r *Refresher) RefreshToken(ctx context.Context, stale uint64) error {
	if r.source == nil {
		return ErrNoTokenSource
	}

	r.pending.Add(1)
	defer r.pending.Add(-1)

	if stale == 0 {
		stale = r.currentGeneration()
	}
	if r.currentGeneration() != stale {
		return nil
	}

	ch := r.group.DoChan(strconv.FormatUint(stale, 10), func() (any, error) {
		// A flight for this generation may have finished just before this one started.
		if r.currentGeneration() != stale {
			return nil, nil
		}
		r.refreshes.Add(1)

		tok, err := r.source.FetchToken(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("refresh credential token: %w", err)
		}
		if tok.Value == "" {
			return nil, errors.New("refresh credential token: identity provider returned an empty token")
		}

		r.mu.Lock()
		r.token = tok
		r.generation++
		r.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate drops the cached token so the next Token call fetches a new one.
func (r *Refresher) Invalidate() {
	r.mu.Lock()
	r.token = CredentialToken{}
	r.mu.Unlock()
}

// Refreshes returns how many physical fetches have been made.
func (r *Refresher) Refreshes() int64 {
	return r.refreshes.Load()
}

func (r *Refresher) current() (CredentialToken, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token, r.generation
}

func (r *Refresher) currentGeneration() uint64 {
	_, generation := r.current()
	return generation
}
