package testcase

import (
	"context"
	"fmt"
	"testing"

	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ManagedStorageClientTestCase represents a test case for a
// keyvalet.ManagedStorageClient against a single vault.
type ManagedStorageClientTestCase func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string)

// ManagedStorageClientTests returns common test cases that a
// keyvalet.ManagedStorageClient should support.
func ManagedStorageClientTests() map[string]ManagedStorageClientTestCase {
	return map[string]ManagedStorageClientTestCase{
		"SetStorageAccountSucceeds": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			bundle, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, accountName, bundle.AccountName())
			assert.Equal(t, keyvalet.DefaultActiveKeyName, utility.FromStringPtr(bundle.ActiveKeyName))
			assert.True(t, utility.FromBoolPtr(bundle.AutoRegenerateKey))
			assert.Equal(t, keyvalet.DefaultRegenerationPeriod, utility.FromStringPtr(bundle.RegenerationPeriod))
		},
		"SetStorageAccountFailsWithInvalidAttachment": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			bundle, err := c.SetStorageAccount(ctx, vaultURI, testutil.NewStorageAccountName(), keyvalet.StorageAccountAttachment{})
			assert.Error(t, err)
			assert.Zero(t, bundle)
		},
		"SetStorageAccountReplacesExistingRegistration": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			replacement := newTestAttachment(accountName).SetActiveKeyName("key2")
			bundle, err := c.SetStorageAccount(ctx, vaultURI, accountName, *replacement)
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, "key2", utility.FromStringPtr(bundle.ActiveKeyName))

			getBundle, err := c.GetStorageAccount(ctx, vaultURI, accountName)
			require.NoError(t, err)
			require.NotZero(t, getBundle)
			assert.Equal(t, "key2", utility.FromStringPtr(getBundle.ActiveKeyName))
		},
		"GetStorageAccountSucceedsAfterSet": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			setBundle, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)
			require.NotZero(t, setBundle)

			bundle, err := c.GetStorageAccount(ctx, vaultURI, accountName)
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, utility.FromStringPtr(setBundle.ID), utility.FromStringPtr(bundle.ID))
			assert.Equal(t, utility.FromStringPtr(setBundle.ResourceID), utility.FromStringPtr(bundle.ResourceID))
		},
		"GetStorageAccountFailsWithNonexistentRegistration": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			bundle, err := c.GetStorageAccount(ctx, vaultURI, testutil.NewStorageAccountName())
			assert.Error(t, err)
			assert.True(t, keyvalet.IsAccountNotRegisteredError(err))
			assert.Zero(t, bundle)
		},
		"UpdateStorageAccountPatchesOnlyGivenFields": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			patch := keyvalet.NewStorageAccountPatch().SetActiveKeyName("key2")
			bundle, err := c.UpdateStorageAccount(ctx, vaultURI, accountName, *patch)
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, "key2", utility.FromStringPtr(bundle.ActiveKeyName))
			assert.Equal(t, keyvalet.DefaultRegenerationPeriod, utility.FromStringPtr(bundle.RegenerationPeriod), "unpatched fields should not change")
			assert.True(t, utility.FromBoolPtr(bundle.AutoRegenerateKey), "unpatched fields should not change")
		},
		"UpdateStorageAccountFailsWithEmptyPatch": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			bundle, err := c.UpdateStorageAccount(ctx, vaultURI, accountName, keyvalet.StorageAccountPatch{})
			assert.Error(t, err)
			assert.Zero(t, bundle)
		},
		"UpdateStorageAccountFailsWithNonexistentRegistration": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			patch := keyvalet.NewStorageAccountPatch().SetActiveKeyName("key2")
			bundle, err := c.UpdateStorageAccount(ctx, vaultURI, testutil.NewStorageAccountName(), *patch)
			assert.Error(t, err)
			assert.True(t, keyvalet.IsAccountNotRegisteredError(err))
			assert.Zero(t, bundle)
		},
		"ListStorageAccountsSucceedsWithNoRegistrations": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			bundles, err := c.ListStorageAccounts(ctx, vaultURI)
			require.NoError(t, err)
			assert.Empty(t, bundles)
		},
		"ListStorageAccountsReturnsAllRegistrations": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			expected := map[string]bool{}
			for i := 0; i < 3; i++ {
				accountName := testutil.NewStorageAccountName()
				expected[accountName] = true
				_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
				require.NoError(t, err)
			}

			bundles, err := c.ListStorageAccounts(ctx, vaultURI)
			require.NoError(t, err)
			require.Len(t, bundles, len(expected))
			for _, bundle := range bundles {
				assert.True(t, expected[bundle.AccountName()], "unexpected account '%s' in results", bundle.AccountName())
			}
		},
		"DeleteStorageAccountRemovesRegistration": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			bundle, err := c.DeleteStorageAccount(ctx, vaultURI, accountName)
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, accountName, bundle.AccountName())

			getBundle, err := c.GetStorageAccount(ctx, vaultURI, accountName)
			assert.Error(t, err)
			assert.True(t, keyvalet.IsAccountNotRegisteredError(err))
			assert.Zero(t, getBundle)
		},
		"DeleteStorageAccountFailsWithNonexistentRegistration": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			bundle, err := c.DeleteStorageAccount(ctx, vaultURI, testutil.NewStorageAccountName())
			assert.Error(t, err)
			assert.True(t, keyvalet.IsAccountNotRegisteredError(err))
			assert.Zero(t, bundle)
		},
		"RegenerateStorageKeyFailsWithNonexistentRegistration": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			bundle, err := c.RegenerateStorageKey(ctx, vaultURI, testutil.NewStorageAccountName(), keyvalet.DefaultActiveKeyName)
			assert.Error(t, err)
			assert.True(t, keyvalet.IsAccountNotRegisteredError(err))
			assert.Zero(t, bundle)
		},
		"SetSasDefinitionSucceedsForRegisteredAccount": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			bundle, err := c.SetSasDefinition(ctx, vaultURI, accountName, "deftest", *newTestSasProperties(accountName))
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, "deftest", bundle.DefinitionName())
			assert.Equal(t, keyvalet.SasTypeAccount, *bundle.SasType)

			secretName, err := bundle.SecretName()
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("%s-%s", accountName, "deftest"), secretName, "the managed secret is named for the account and definition")
		},
		"SetSasDefinitionFailsWithNonexistentRegistration": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			bundle, err := c.SetSasDefinition(ctx, vaultURI, accountName, "deftest", *newTestSasProperties(accountName))
			assert.Error(t, err)
			assert.True(t, keyvalet.IsAccountNotRegisteredError(err))
			assert.Zero(t, bundle)
		},
		"SetSasDefinitionFailsWithInvalidProperties": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			bundle, err := c.SetSasDefinition(ctx, vaultURI, accountName, "deftest", keyvalet.SasDefinitionProperties{})
			assert.Error(t, err)
			assert.Zero(t, bundle)
		},
		"GetSasDefinitionSucceedsAfterSet": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			setBundle, err := c.SetSasDefinition(ctx, vaultURI, accountName, "deftest", *newTestSasProperties(accountName))
			require.NoError(t, err)
			require.NotZero(t, setBundle)

			bundle, err := c.GetSasDefinition(ctx, vaultURI, accountName, "deftest")
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, utility.FromStringPtr(setBundle.ID), utility.FromStringPtr(bundle.ID))
			assert.Equal(t, utility.FromStringPtr(setBundle.SecretID), utility.FromStringPtr(bundle.SecretID))
		},
		"GetSasDefinitionFailsWithNonexistentDefinition": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			bundle, err := c.GetSasDefinition(ctx, vaultURI, accountName, "nonexistent")
			assert.Error(t, err)
			assert.Zero(t, bundle)
		},
		"ListSasDefinitionsSucceedsWithNoDefinitions": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			bundles, err := c.ListSasDefinitions(ctx, vaultURI, accountName)
			require.NoError(t, err)
			assert.Empty(t, bundles)
		},
		"ListSasDefinitionsReturnsAllDefinitions": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			expected := map[string]bool{}
			for i := 0; i < 3; i++ {
				sasName := fmt.Sprintf("def%d", i)
				expected[sasName] = true
				_, err := c.SetSasDefinition(ctx, vaultURI, accountName, sasName, *newTestSasProperties(accountName))
				require.NoError(t, err)
			}

			bundles, err := c.ListSasDefinitions(ctx, vaultURI, accountName)
			require.NoError(t, err)
			require.Len(t, bundles, len(expected))
			for _, bundle := range bundles {
				assert.True(t, expected[bundle.DefinitionName()], "unexpected definition '%s' in results", bundle.DefinitionName())
			}
		},
		"DeleteStorageAccountRemovesItsSasDefinitions": func(ctx context.Context, t *testing.T, c keyvalet.ManagedStorageClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := c.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			_, err = c.SetSasDefinition(ctx, vaultURI, accountName, "deftest", *newTestSasProperties(accountName))
			require.NoError(t, err)

			_, err = c.DeleteStorageAccount(ctx, vaultURI, accountName)
			require.NoError(t, err)

			bundle, err := c.GetSasDefinition(ctx, vaultURI, accountName, "deftest")
			assert.Error(t, err)
			assert.Zero(t, bundle)
		},
	}
}

// ManagedStorageSecretTestCase represents a test case for a
// keyvalet.ManagedStorageClient together with the keyvalet.SecretsClient that
// reads the managed secrets it mints.
type ManagedStorageSecretTestCase func(ctx context.Context, t *testing.T, msClient keyvalet.ManagedStorageClient, secretsClient keyvalet.SecretsClient, vaultURI string)

// ManagedStorageSecretTests returns common test cases for the managed secrets
// that SAS definitions serve tokens through.
func ManagedStorageSecretTests() map[string]ManagedStorageSecretTestCase {
	return map[string]ManagedStorageSecretTestCase{
		"SetSasDefinitionMintsReadableManagedSecret": func(ctx context.Context, t *testing.T, msClient keyvalet.ManagedStorageClient, secretsClient keyvalet.SecretsClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := msClient.SetStorageAccount(ctx, vaultURI, accountName, *newTestAttachment(accountName))
			require.NoError(t, err)

			defBundle, err := msClient.SetSasDefinition(ctx, vaultURI, accountName, "deftest", *newTestSasProperties(accountName))
			require.NoError(t, err)
			require.NotZero(t, defBundle)

			secretName, err := defBundle.SecretName()
			require.NoError(t, err)

			secret, err := secretsClient.GetSecret(ctx, vaultURI, secretName, "")
			require.NoError(t, err)
			require.NotZero(t, secret)
			assert.NotZero(t, utility.FromStringPtr(secret.Value), "the managed secret should hold a minted token")
			assert.True(t, utility.FromBoolPtr(secret.Managed), "the backing secret is managed by the vault")
		},
		"GetSecretFailsBeforeAnyDefinitionExists": func(ctx context.Context, t *testing.T, msClient keyvalet.ManagedStorageClient, secretsClient keyvalet.SecretsClient, vaultURI string) {
			secret, err := secretsClient.GetSecret(ctx, vaultURI, "nonexistent", "")
			assert.Error(t, err)
			assert.Zero(t, secret)
		},
	}
}

// newTestAttachment returns a valid attachment to register the named storage
// account for managed key rotation.
func newTestAttachment(accountName string) *keyvalet.StorageAccountAttachment {
	return keyvalet.NewStorageAccountAttachment().
		SetResourceID(testutil.StorageAccountResourceID(accountName)).
		SetActiveKeyName(keyvalet.DefaultActiveKeyName).
		SetAutoRegenerateKey(true).
		SetRegenerationPeriod(keyvalet.DefaultRegenerationPeriod)
}

// newTestSasProperties returns valid SAS definition properties whose template
// carries a realistic account SAS parameter set.
func newTestSasProperties(accountName string) *keyvalet.SasDefinitionProperties {
	template := fmt.Sprintf("https://%s.blob.core.windows.net/?sv=2021-08-06&ss=b&srt=sco&sp=acdlpruw&se=2030-01-01T00:00:00Z&spr=https&sig=template", accountName)
	return keyvalet.NewSasDefinitionProperties().
		SetTemplateURI(template).
		SetSasType(keyvalet.SasTypeAccount).
		SetValidityPeriod("PT2H")
}
