package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

const (
	// GoogleTokenURL is the OAuth2 token endpoint used for user refresh tokens.
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
	GoogleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
)

// DefaultScopes are requested when no scopes are configured.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/bigquery",
	"https://www.googleapis.com/auth/cloud-platform",
}

// OAuth2Source exchanges a user refresh token for access tokens.
type OAuth2Source struct {
	Config *oauth2.Config
	// HTTPClient is used for the token exchange when set.
	HTTPClient *http.Client

	mu           sync.Mutex
	refreshToken string
}

// NewOAuth2Source builds a source for the Google token endpoint.
func NewOAuth2Source(clientID, clientSecret, refreshToken string, scopes []string) *OAuth2Source {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &OAuth2Source{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   GoogleAuthURL,
				TokenURL:  GoogleTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: refreshToken,
	}
}

// FetchToken performs one refresh-token grant.
func (s *OAuth2Source) FetchToken(ctx context.Context) (CredentialToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshToken == "" {
		return CredentialToken{}, errors.New("oauth2: refresh token is required")
	}
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}

	// A token without an access token forces the source to hit the endpoint.
	tok, err := s.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refreshToken}).Token()
	if err != nil {
		return CredentialToken{}, fmt.Errorf("oauth2 token exchange: %w", err)
	}

	// Providers may rotate the refresh token on every exchange.
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}

	return CredentialToken{Value: tok.AccessToken, Expiry: tok.Expiry}, nil
}
