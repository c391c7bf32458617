package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/tokens"
	"github.com/gophercloud/utils/v2/openstack/clientconfig"
)

// KeystoneSource issues tokens from an OpenStack Keystone identity service,
// for deployments where the warehouse sits behind an OpenStack-hosted gateway.
// It authenticates with a clouds.yaml profile.
type KeystoneSource struct {
	// ProfileName corresponds to the entry in clouds.yaml
	ProfileName string
	// Caller runs authentication so transient identity service errors are
	// retried. It must not refresh through this source.
	Caller *retry.Caller

	mu       sync.Mutex
	provider *gophercloud.ProviderClient
}

// FetchToken authenticates on first use and reauthenticates afterwards.
func (k *KeystoneSource) FetchToken(ctx context.Context) (CredentialToken, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.provider == nil {
		if err := k.authenticate(ctx); err != nil {
			return CredentialToken{}, err
		}
		return k.token(), nil
	}

	// Reauthenticate is a no-op if another request already replaced the
	// token we are holding.
	previous := k.provider.Token()
	err := k.Caller.ExecuteAction(ctx, "Keystone Reauthentication", func(ctx context.Context) error {
		return k.provider.Reauthenticate(ctx, previous)
	})
	if err != nil {
		return CredentialToken{}, fmt.Errorf("keystone reauthentication failed for profile '%s': %w", k.ProfileName, err)
	}

	return k.token(), nil
}

func (k *KeystoneSource) authenticate(ctx context.Context) error {
	slog.Debug("Authenticating against Keystone", "profile", k.ProfileName)

	opts, err := clientconfig.AuthOptions(&clientconfig.ClientOpts{Cloud: k.ProfileName})
	if err != nil {
		return fmt.Errorf("load clouds.yaml profile '%s': %w", k.ProfileName, err)
	}
	// Reauthenticate needs the credentials kept in memory.
	opts.AllowReauth = true

	var provider *gophercloud.ProviderClient

	// authenticateOperation encapsulates the authentication logic to allow
	// the retry helper to re-run it in case of transient network issues.
	authenticateOperation := func(ctx context.Context) error {
		p, err := openstack.AuthenticatedClient(ctx, *opts)
		if err != nil {
			return err
		}

		provider = p
		return nil
	}

	if err := k.Caller.ExecuteAction(ctx, "Keystone Authentication", authenticateOperation); err != nil {
		return fmt.Errorf("authentication failed for profile '%s': %w", k.ProfileName, err)
	}

	k.provider = provider
	return nil
}

// token reads the provider's current token and, for v3 identity, its expiry.
func (k *KeystoneSource) token() CredentialToken {
	tok := CredentialToken{Value: k.provider.Token()}

	if result, ok := k.provider.GetAuthResult().(tokens.CreateResult); ok {
		if issued, err := result.ExtractToken(); err == nil {
			tok.Expiry = issued.ExpiresAt
		}
	}
	return tok
}
