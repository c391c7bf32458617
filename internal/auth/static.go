package auth

import (
	"context"
	"errors"
)

// StaticSource always returns the same pre-issued access token.
// It has no way to renew the token, so a rejected token stays rejected.
type StaticSource struct {
	Token string
}

func (s StaticSource) FetchToken(ctx context.Context) (CredentialToken, error) {
	if s.Token == "" {
		return CredentialToken{}, errors.New("static access token is empty")
	}
	return CredentialToken{Value: s.Token}, nil
}
