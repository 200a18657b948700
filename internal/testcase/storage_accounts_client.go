package testcase

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StorageAccountsClientTestCase represents a test case for a
// keyvalet.StorageAccountsClient.
type StorageAccountsClientTestCase func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient)

// CleanupAccountFunc cleans up a storage account created during a test.
type CleanupAccountFunc func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient, accountName string)

// StorageAccountsClientTests returns common test cases that a
// keyvalet.StorageAccountsClient should support.
func StorageAccountsClientTests(cleanupAccount CleanupAccountFunc) map[string]StorageAccountsClientTestCase {
	return map[string]StorageAccountsClientTestCase{
		"CreateAccountSucceeds": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			account, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)
			require.NotZero(t, account)
			assert.Equal(t, accountName, utility.FromStringPtr(account.Name))

			require.NotZero(t, account.Properties)
			assert.Equal(t, armstorage.ProvisioningStateSucceeded, *account.Properties.ProvisioningState)
			require.NotZero(t, account.Properties.PrimaryEndpoints)
			assert.NotZero(t, utility.FromStringPtr(account.Properties.PrimaryEndpoints.Blob))

			require.NotZero(t, account.Identity, "the account should carry a system-assigned identity")
			assert.NotZero(t, utility.FromStringPtr(account.Identity.PrincipalID))
		},
		"CreateAccountFailsWithExistingAccount": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)

			account, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			assert.Error(t, err)
			assert.True(t, azutil.HasErrorCode(err, "StorageAccountAlreadyExists"))
			assert.Zero(t, account)
		},
		"GetAccountSucceedsAfterCreate": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			created, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)
			require.NotZero(t, created)

			account, err := c.GetAccount(ctx, testutil.ResourceGroup(), accountName)
			require.NoError(t, err)
			require.NotZero(t, account)
			assert.Equal(t, utility.FromStringPtr(created.ID), utility.FromStringPtr(account.ID))
		},
		"GetAccountFailsWithNonexistentAccount": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			account, err := c.GetAccount(ctx, testutil.ResourceGroup(), testutil.NewStorageAccountName())
			assert.Error(t, err)
			assert.True(t, azutil.HasErrorCode(err, "StorageAccountNotFound"))
			assert.Zero(t, account)
		},
		"UpdateAccountAppliesEncryption": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)

			account, err := c.UpdateAccount(ctx, testutil.ResourceGroup(), accountName, armstorage.AccountUpdateParameters{
				Properties: &armstorage.AccountPropertiesUpdateParameters{
					Encryption: &armstorage.Encryption{
						KeySource: to.Ptr(armstorage.KeySourceMicrosoftKeyvault),
						KeyVaultProperties: &armstorage.KeyVaultProperties{
							KeyName:     utility.ToStringPtr("account-key"),
							KeyVaultURI: utility.ToStringPtr("https://" + testutil.NewVaultName() + ".vault.azure.net/"),
						},
					},
				},
			})
			require.NoError(t, err)
			require.NotZero(t, account)
			require.NotZero(t, account.Properties)
			require.NotZero(t, account.Properties.Encryption)
			assert.Equal(t, armstorage.KeySourceMicrosoftKeyvault, *account.Properties.Encryption.KeySource)
			require.NotZero(t, account.Properties.Encryption.KeyVaultProperties)
			assert.Equal(t, "account-key", utility.FromStringPtr(account.Properties.Encryption.KeyVaultProperties.KeyName))
		},
		"UpdateAccountFailsWithNonexistentAccount": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			account, err := c.UpdateAccount(ctx, testutil.ResourceGroup(), testutil.NewStorageAccountName(), armstorage.AccountUpdateParameters{})
			assert.Error(t, err)
			assert.True(t, azutil.HasErrorCode(err, "StorageAccountNotFound"))
			assert.Zero(t, account)
		},
		"ListKeysReturnsBothKeys": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)

			keys, err := c.ListKeys(ctx, testutil.ResourceGroup(), accountName)
			require.NoError(t, err)
			require.Len(t, keys, 2)
			for _, key := range keys {
				require.NotZero(t, key)
				assert.Contains(t, []string{"key1", "key2"}, utility.FromStringPtr(key.KeyName))
				assert.NotZero(t, utility.FromStringPtr(key.Value))
			}
		},
		"ListKeysFailsWithNonexistentAccount": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			keys, err := c.ListKeys(ctx, testutil.ResourceGroup(), testutil.NewStorageAccountName())
			assert.Error(t, err)
			assert.True(t, azutil.HasErrorCode(err, "StorageAccountNotFound"))
			assert.Zero(t, keys)
		},
		"RegenerateKeyChangesOnlyTheNamedKey": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)

			before, err := c.ListKeys(ctx, testutil.ResourceGroup(), accountName)
			require.NoError(t, err)
			beforeValues := keyValuesByName(before)

			after, err := c.RegenerateKey(ctx, testutil.ResourceGroup(), accountName, "key1")
			require.NoError(t, err)
			afterValues := keyValuesByName(after)

			assert.NotEqual(t, beforeValues["key1"], afterValues["key1"], "the regenerated key should change")
			assert.Equal(t, beforeValues["key2"], afterValues["key2"], "the other key should not change")
		},
		"RegenerateKeyFailsWithInvalidKeyName": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)

			keys, err := c.RegenerateKey(ctx, testutil.ResourceGroup(), accountName, "key3")
			assert.Error(t, err)
			assert.Zero(t, keys)
		},
		"ListAccountSASMintsTokenWithRequestedPermissions": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)

			token, err := c.ListAccountSAS(ctx, testutil.ResourceGroup(), accountName, armstorage.AccountSasParameters{
				Services:               to.Ptr(armstorage.ServicesB),
				ResourceTypes:          to.Ptr(armstorage.SignedResourceTypes("sco")),
				Permissions:            to.Ptr(armstorage.Permissions("acdlpruw")),
				Protocols:              to.Ptr(armstorage.HTTPProtocolHTTPS),
				SharedAccessExpiryTime: to.Ptr(time.Now().Add(time.Hour).UTC()),
			})
			require.NoError(t, err)
			require.NotZero(t, token)

			parsed, err := url.ParseQuery(token)
			require.NoError(t, err)
			assert.Equal(t, "acdlpruw", parsed.Get("sp"), "the token should carry the requested permissions")
			assert.Equal(t, "b", parsed.Get("ss"))
			assert.Equal(t, "sco", parsed.Get("srt"))
			assert.NotZero(t, parsed.Get("se"))
		},
		"ListAccountSASFailsWithMissingParameters": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)
			defer cleanupAccount(ctx, t, c, accountName)

			token, err := c.ListAccountSAS(ctx, testutil.ResourceGroup(), accountName, armstorage.AccountSasParameters{})
			assert.Error(t, err)
			assert.Zero(t, token)
		},
		"DeleteAccountRemovesAccount": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.CreateAccount(ctx, testutil.ResourceGroup(), accountName, newTestAccountParameters())
			require.NoError(t, err)

			require.NoError(t, c.DeleteAccount(ctx, testutil.ResourceGroup(), accountName))

			account, err := c.GetAccount(ctx, testutil.ResourceGroup(), accountName)
			assert.Error(t, err)
			assert.Zero(t, account)
		},
		"DeleteAccountSucceedsWithNonexistentAccount": func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient) {
			assert.NoError(t, c.DeleteAccount(ctx, testutil.ResourceGroup(), testutil.NewStorageAccountName()))
		},
	}
}

// newTestAccountParameters returns parameters for a general-purpose account
// with a system-assigned identity, matching what key delegation needs.
func newTestAccountParameters() armstorage.AccountCreateParameters {
	return armstorage.AccountCreateParameters{
		Location: utility.ToStringPtr(testutil.Region()),
		Kind:     to.Ptr(armstorage.KindStorageV2),
		SKU: &armstorage.SKU{
			Name: to.Ptr(armstorage.SKUNameStandardLRS),
		},
		Identity: &armstorage.Identity{
			Type: to.Ptr(armstorage.IdentityTypeSystemAssigned),
		},
	}
}

// keyValuesByName indexes a key listing by key name.
func keyValuesByName(keys []*armstorage.AccountKey) map[string]string {
	values := map[string]string{}
	for _, key := range keys {
		if key == nil {
			continue
		}
		values[utility.FromStringPtr(key.KeyName)] = utility.FromStringPtr(key.Value)
	}
	return values
}
