package testcase

import (
	"context"
	"testing"

	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ValetTestCase represents a test case for a keyvalet.Valet.
type ValetTestCase func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string)

// ValetTests returns common test cases that a keyvalet.Valet should support.
func ValetTests() map[string]ValetTestCase {
	return map[string]ValetTestCase{
		"RegisterAccountSucceeds": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			account, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, accountName))
			require.NoError(t, err)
			require.NotZero(t, account)
			assert.Equal(t, keyvalet.AccountRegistered, account.Status())
			assert.Equal(t, accountName, utility.FromStringPtr(account.Resources().AccountName))
			assert.Equal(t, vaultURI, utility.FromStringPtr(account.Resources().VaultURI))
		},
		"RegisterAccountFailsWithInvalidOptions": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			account, err := v.RegisterAccount(ctx, keyvalet.NewAccountRegistrationOptions())
			assert.Error(t, err)
			assert.Zero(t, account)
		},
		"RegisterAccountSucceedsWhenRoleIsAlreadyAssigned": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			opts := newTestRegistrationOptions(vaultURI, accountName)

			account, err := v.RegisterAccount(ctx, opts)
			require.NoError(t, err)
			require.NotZero(t, account)

			account, err = v.RegisterAccount(ctx, opts)
			require.NoError(t, err, "re-registering should tolerate the existing role assignment")
			require.NotZero(t, account)
		},
		"RegisterAccountMergesOptions": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			account, err := v.RegisterAccount(ctx,
				newTestRegistrationOptions(vaultURI, accountName),
				keyvalet.NewAccountRegistrationOptions().
					SetActiveKeyName("key2").
					SetRegenerationPeriod("P7D"))
			require.NoError(t, err)
			require.NotZero(t, account)

			bundle, err := account.Info(ctx)
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, "key2", utility.FromStringPtr(bundle.ActiveKeyName))
			assert.Equal(t, "P7D", utility.FromStringPtr(bundle.RegenerationPeriod))
		},
		"GetAccountSucceedsAfterRegister": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			registered, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, accountName))
			require.NoError(t, err)
			require.NotZero(t, registered)

			account, err := v.GetAccount(ctx, vaultURI, accountName)
			require.NoError(t, err)
			require.NotZero(t, account)
			assert.Equal(t, keyvalet.AccountRegistered, account.Status())
			assert.Equal(t, utility.FromStringPtr(registered.Resources().ResourceID), utility.FromStringPtr(account.Resources().ResourceID))
		},
		"GetAccountFailsWithUnregisteredAccount": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			account, err := v.GetAccount(ctx, vaultURI, testutil.NewStorageAccountName())
			assert.Error(t, err)
			assert.True(t, keyvalet.IsAccountNotRegisteredError(err))
			assert.Zero(t, account)
		},
		"ListAccountsSucceedsWithNoRegistrations": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			bundles, err := v.ListAccounts(ctx, vaultURI)
			require.NoError(t, err)
			assert.Empty(t, bundles)
		},
		"ListAccountsReturnsRegisteredAccounts": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			names := map[string]bool{}
			for i := 0; i < 2; i++ {
				accountName := testutil.NewStorageAccountName()
				names[accountName] = true
				_, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, accountName))
				require.NoError(t, err)
			}

			bundles, err := v.ListAccounts(ctx, vaultURI)
			require.NoError(t, err)
			require.Len(t, bundles, 2)
			for _, bundle := range bundles {
				assert.True(t, names[bundle.AccountName()], "unexpected account '%s' in listing", bundle.AccountName())
			}
		},
		"AccountSetActiveKeyUpdatesRegistration": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			account, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, testutil.NewStorageAccountName()))
			require.NoError(t, err)
			require.NotZero(t, account)

			require.NoError(t, account.SetActiveKey(ctx, "key2"))

			bundle, err := account.Info(ctx)
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, "key2", utility.FromStringPtr(bundle.ActiveKeyName))
		},
		"AccountRotateSucceeds": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			account, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, testutil.NewStorageAccountName()))
			require.NoError(t, err)
			require.NotZero(t, account)

			assert.NoError(t, account.Rotate(ctx, keyvalet.DefaultActiveKeyName))
		},
		"AccountCreateSasDefinitionSucceeds": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			account, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, accountName))
			require.NoError(t, err)
			require.NotZero(t, account)

			bundle, err := account.CreateSasDefinition(ctx, keyvalet.NewSasDefinitionOptions().
				SetName("deftest").
				SetTemplateURI(utility.FromStringPtr(newTestSasProperties(accountName).TemplateURI)))
			require.NoError(t, err)
			require.NotZero(t, bundle)
			assert.Equal(t, "deftest", bundle.DefinitionName())

			secretName, err := bundle.SecretName()
			require.NoError(t, err)
			assert.NotZero(t, secretName)

			defs, err := account.ListSasDefinitions(ctx)
			require.NoError(t, err)
			require.Len(t, defs, 1)
			assert.Equal(t, "deftest", defs[0].DefinitionName())
		},
		"AccountCreateSasDefinitionFailsWithInvalidOptions": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			account, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, testutil.NewStorageAccountName()))
			require.NoError(t, err)
			require.NotZero(t, account)

			bundle, err := account.CreateSasDefinition(ctx, keyvalet.NewSasDefinitionOptions())
			assert.Error(t, err)
			assert.Zero(t, bundle)
		},
		"AccountDeregisterRemovesRegistration": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			account, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, accountName))
			require.NoError(t, err)
			require.NotZero(t, account)

			require.NoError(t, account.Deregister(ctx))
			assert.Equal(t, keyvalet.AccountDeregistered, account.Status())

			_, err = v.GetAccount(ctx, vaultURI, accountName)
			assert.Error(t, err)
			assert.True(t, keyvalet.IsAccountNotRegisteredError(err))

			_, err = account.Info(ctx)
			assert.Error(t, err, "a deregistered handle should refuse vault operations")
		},
		"AccountDeregisterIsIdempotent": func(ctx context.Context, t *testing.T, v keyvalet.Valet, vaultURI string) {
			account, err := v.RegisterAccount(ctx, newTestRegistrationOptions(vaultURI, testutil.NewStorageAccountName()))
			require.NoError(t, err)
			require.NotZero(t, account)

			require.NoError(t, account.Deregister(ctx))
			assert.NoError(t, account.Deregister(ctx))
		},
	}
}

// newTestRegistrationOptions returns valid options to register the named
// storage account with the vault.
func newTestRegistrationOptions(vaultURI, accountName string) *keyvalet.AccountRegistrationOptions {
	return keyvalet.NewAccountRegistrationOptions().
		SetVaultURI(vaultURI).
		SetAccountName(accountName).
		SetAccountResourceID(utility.FromStringPtr(newTestAttachment(accountName).ResourceID))
}
