package testcase

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// VaultsClientTestCase represents a test case for a keyvalet.VaultsClient.
type VaultsClientTestCase func(ctx context.Context, t *testing.T, c keyvalet.VaultsClient)

// VaultsClientTests returns common test cases that a keyvalet.VaultsClient
// should support.
func VaultsClientTests() map[string]VaultsClientTestCase {
	return map[string]VaultsClientTestCase{
		"GetVaultFailsWithNonexistentVault": func(ctx context.Context, t *testing.T, c keyvalet.VaultsClient) {
			vault, err := c.GetVault(ctx, testutil.ResourceGroup(), testutil.NewVaultName())
			assert.Error(t, err)
			assert.True(t, azutil.HasErrorCode(err, "ResourceNotFound"))
			assert.Zero(t, vault)
		},
		"CreateOrUpdateVaultSucceeds": func(ctx context.Context, t *testing.T, c keyvalet.VaultsClient) {
			vaultName := testutil.NewVaultName()
			vault, err := c.CreateOrUpdateVault(ctx, testutil.ResourceGroup(), vaultName, testutil.NewVaultCreateParameters())
			require.NoError(t, err)
			require.NotZero(t, vault)
			assert.Equal(t, vaultName, utility.FromStringPtr(vault.Name))
			require.NotZero(t, vault.Properties)
			assert.NotZero(t, utility.FromStringPtr(vault.Properties.VaultURI), "a provisioned vault should surface its data-plane URI")
		},
		"GetVaultSucceedsAfterCreate": func(ctx context.Context, t *testing.T, c keyvalet.VaultsClient) {
			vaultName := testutil.NewVaultName()
			created, err := c.CreateOrUpdateVault(ctx, testutil.ResourceGroup(), vaultName, testutil.NewVaultCreateParameters())
			require.NoError(t, err)
			require.NotZero(t, created)

			vault, err := c.GetVault(ctx, testutil.ResourceGroup(), vaultName)
			require.NoError(t, err)
			require.NotZero(t, vault)
			assert.Equal(t, utility.FromStringPtr(created.ID), utility.FromStringPtr(vault.ID))
			require.NotZero(t, vault.Properties)
			assert.Equal(t, utility.FromStringPtr(created.Properties.VaultURI), utility.FromStringPtr(vault.Properties.VaultURI))
		},
		"CreateOrUpdateVaultReplacesAccessPoliciesWholesale": func(ctx context.Context, t *testing.T, c keyvalet.VaultsClient) {
			vaultName := testutil.NewVaultName()
			params := testutil.NewVaultCreateParameters()
			created, err := c.CreateOrUpdateVault(ctx, testutil.ResourceGroup(), vaultName, params)
			require.NoError(t, err)
			require.NotZero(t, created)
			require.NotZero(t, created.Properties)
			require.Len(t, created.Properties.AccessPolicies, 1)

			params.Properties.AccessPolicies = append(params.Properties.AccessPolicies, &armkeyvault.AccessPolicyEntry{
				TenantID: utility.ToStringPtr(testutil.TenantID()),
				ObjectID: utility.ToStringPtr("storage-account-identity"),
				Permissions: &armkeyvault.Permissions{
					Storage: to.SliceOfPtrs(armkeyvault.PossibleStoragePermissionsValues()...),
				},
			})
			updated, err := c.CreateOrUpdateVault(ctx, testutil.ResourceGroup(), vaultName, params)
			require.NoError(t, err)
			require.NotZero(t, updated)
			require.NotZero(t, updated.Properties)
			assert.Len(t, updated.Properties.AccessPolicies, 2, "the pushed policy list replaces the stored one")

			vault, err := c.GetVault(ctx, testutil.ResourceGroup(), vaultName)
			require.NoError(t, err)
			require.NotZero(t, vault.Properties)
			assert.Len(t, vault.Properties.AccessPolicies, 2)
		},
	}
}
