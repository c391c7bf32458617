package auth

import (
	"context"
	"time"
)

// expiryDelta treats a token as expired slightly early so a request signed
// with it does not race the expiry on the server side.
const expiryDelta = 10 * time.Second

// CredentialToken is an opaque bearer credential with an optional validity window.
type CredentialToken struct {
	Value string
	// Expiry is zero when the issuer did not report one; such a token stays
	// valid until the remote service rejects it.
	Expiry time.Time
}

// Valid reports whether the token can still be used at the given time.
func (t CredentialToken) Valid(now time.Time) bool {
	if t.Value == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(expiryDelta).Before(t.Expiry)
}

// TokenSource fetches a brand new token from an identity provider.
type TokenSource interface {
	FetchToken(ctx context.Context) (CredentialToken, error)
}
