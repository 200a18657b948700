package mock

import (
	"context"
	"testing"
	"time"

	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretsClient(t *testing.T) {
	assert.Implements(t, (*keyvalet.SecretsClient)(nil), &SecretsClient{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for tName, tCase := range secretsClientTests() {
		t.Run(tName, func(t *testing.T) {
			tctx, tcancel := context.WithTimeout(ctx, defaultTestTimeout)
			defer tcancel()

			ResetGlobalServices()

			c := &SecretsClient{}
			defer func() {
				assert.NoError(t, c.Close(tctx))
			}()

			tCase(tctx, t, c, VaultURI(testutil.NewVaultName()))
		})
	}
}

// secretsClientTests are mock-specific tests for the secrets client backed by
// the global key vault service.
func secretsClientTests() map[string]func(ctx context.Context, t *testing.T, c *SecretsClient, vaultURI string) {
	return map[string]func(ctx context.Context, t *testing.T, c *SecretsClient, vaultURI string){
		"GetSecretReturnsASeededSecret": func(ctx context.Context, t *testing.T, c *SecretsClient, vaultURI string) {
			seedSecret(vaultURI, "app-secret", "hunter2", false)

			resp, err := c.GetSecret(ctx, vaultURI, "app-secret", "")
			require.NoError(t, err)
			require.NotZero(t, resp)
			assert.Equal(t, "hunter2", utility.FromStringPtr(resp.Value))
			assert.False(t, utility.FromBoolPtr(resp.Managed))
			require.NotZero(t, resp.ID)
			assert.Equal(t, "app-secret", resp.ID.Name())
		},
		"GetSecretMarksManagedSecrets": func(ctx context.Context, t *testing.T, c *SecretsClient, vaultURI string) {
			seedSecret(vaultURI, "kvsatest-deftest", "sv=2021-08-06&sp=acdlpruw", true)

			resp, err := c.GetSecret(ctx, vaultURI, "kvsatest-deftest", "")
			require.NoError(t, err)
			require.NotZero(t, resp)
			assert.True(t, utility.FromBoolPtr(resp.Managed), "secrets minted for SAS definitions are service-managed")
		},
		"GetSecretFailsWithNonexistentSecret": func(ctx context.Context, t *testing.T, c *SecretsClient, vaultURI string) {
			resp, err := c.GetSecret(ctx, vaultURI, "nonexistent-secret", "")
			assert.Error(t, err)
			assert.True(t, azutil.HasErrorCode(err, "SecretNotFound"))
			assert.Zero(t, resp)
		},
		"GetSecretCapturesInput": func(ctx context.Context, t *testing.T, c *SecretsClient, vaultURI string) {
			seedSecret(vaultURI, "app-secret", "hunter2", false)

			_, err := c.GetSecret(ctx, vaultURI, "app-secret", "abc123")
			require.NoError(t, err)

			assert.Equal(t, vaultURI, utility.FromStringPtr(c.GetSecretVault))
			assert.Equal(t, "app-secret", utility.FromStringPtr(c.GetSecretInput))
			assert.Equal(t, "abc123", utility.FromStringPtr(c.GetSecretVersion))
		},
		"GetSecretErrorOverridesTheDefaultOutput": func(ctx context.Context, t *testing.T, c *SecretsClient, vaultURI string) {
			seedSecret(vaultURI, "app-secret", "hunter2", false)
			c.GetSecretError = errors.New("injected failure")

			resp, err := c.GetSecret(ctx, vaultURI, "app-secret", "")
			assert.Error(t, err)
			assert.Zero(t, resp)
		},
	}
}

// seedSecret stores a secret in the global key vault service without going
// through a SAS definition.
func seedSecret(vaultURI, name, value string, managed bool) {
	secrets := GlobalKeyVaultService.Secrets[vaultURI]
	if secrets == nil {
		secrets = VaultSecrets{}
		GlobalKeyVaultService.Secrets[vaultURI] = secrets
	}
	secrets[name] = StoredVaultSecret{
		Name:    name,
		Value:   value,
		Managed: managed,
		Created: time.Now(),
	}
}
