package vault

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/internal/testcase"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaultIntegrationTimeout is generous because provisioning a vault routinely
// takes over a minute. Test vaults are left behind for the service's soft
// delete to reap.
const defaultIntegrationTimeout = 5 * time.Minute

// provisionTestVault creates a vault for data-plane tests to run against and
// returns its data-plane URI.
func provisionTestVault(ctx context.Context, t *testing.T, hc *http.Client) string {
	tctx, tcancel := context.WithTimeout(ctx, defaultIntegrationTimeout)
	defer tcancel()

	c, err := NewBasicVaultsClient(testutil.ValidIntegrationOptions(t, hc))
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, c.Close(tctx))
	}()

	vault, err := c.CreateOrUpdateVault(tctx, testutil.ResourceGroup(), testutil.NewVaultName(), testutil.NewVaultCreateParameters())
	require.NoError(t, err)
	require.NotZero(t, vault)
	require.NotZero(t, vault.Properties)

	vaultURI := utility.FromStringPtr(vault.Properties.VaultURI)
	require.NotZero(t, vaultURI)

	return vaultURI
}

func TestBasicVaultsClient(t *testing.T) {
	assert.Implements(t, (*keyvalet.VaultsClient)(nil), &BasicVaultsClient{})

	testutil.CheckAzureEnvVarsForKeyVault(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for tName, tCase := range testcase.VaultsClientTests() {
		t.Run(tName, func(t *testing.T) {
			tctx, tcancel := context.WithTimeout(ctx, defaultIntegrationTimeout)
			defer tcancel()

			hc := utility.GetHTTPClient()
			defer utility.PutHTTPClient(hc)

			c, err := NewBasicVaultsClient(testutil.ValidIntegrationOptions(t, hc))
			require.NoError(t, err)
			require.NotNil(t, c)
			defer func() {
				assert.NoError(t, c.Close(tctx))
			}()

			tCase(tctx, t, c)
		})
	}
}
