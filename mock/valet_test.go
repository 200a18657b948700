package mock

import (
	"context"
	"testing"

	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/internal/testcase"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValetWithMockClients(t *testing.T) {
	assert.Implements(t, (*keyvalet.Valet)(nil), &Valet{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for tName, tCase := range valetTests() {
		t.Run(tName, func(t *testing.T) {
			tctx, tcancel := context.WithTimeout(ctx, defaultTestTimeout)
			defer tcancel()

			ResetGlobalServices()

			msClient := &ManagedStorageClient{}
			defer func() {
				assert.NoError(t, msClient.Close(tctx))
			}()
			authClient := &AuthorizationClient{}
			defer func() {
				assert.NoError(t, authClient.Close(tctx))
			}()

			v, err := keyvalet.NewBasicValet(msClient, authClient)
			require.NoError(t, err)
			mv := NewValet(v)

			tCase(tctx, t, mv, msClient, authClient, VaultURI(testutil.NewVaultName()))
		})
	}

	for tName, tCase := range testcase.ValetTests() {
		t.Run(tName, func(t *testing.T) {
			tctx, tcancel := context.WithTimeout(ctx, defaultTestTimeout)
			defer tcancel()

			ResetGlobalServices()

			msClient := &ManagedStorageClient{}
			defer func() {
				assert.NoError(t, msClient.Close(tctx))
			}()
			authClient := &AuthorizationClient{}
			defer func() {
				assert.NoError(t, authClient.Close(tctx))
			}()

			v, err := keyvalet.NewBasicValet(msClient, authClient)
			require.NoError(t, err)

			tCase(tctx, t, NewValet(v), VaultURI(testutil.NewVaultName()))
		})
	}
}

// valetTests are mock-specific tests for the valet backed by the mock managed
// storage and authorization clients.
func valetTests() map[string]func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
	return map[string]func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string){
		"RegisterAccountGrantsKeyOperatorBeforeRegistering": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			account, err := mv.RegisterAccount(ctx, newValetTestOptions(vaultURI, accountName))
			require.NoError(t, err)
			require.NotZero(t, account)

			require.Len(t, GlobalAuthorizationService.RoleAssignments, 1)
			for _, assignment := range GlobalAuthorizationService.RoleAssignments {
				assert.Equal(t, keyvalet.KeyVaultServicePrincipal, assignment.PrincipalID)
				assert.Contains(t, assignment.RoleDefinitionID, StorageKeyOperatorRoleDefinition)
				assert.Equal(t, testutil.StorageAccountResourceID(accountName), assignment.Scope)
			}

			require.NotZero(t, authClient.CreateRoleAssignmentInput, "should have created a role assignment")
			assert.Contains(t, GlobalKeyVaultService.Registrations[vaultURI], accountName)
		},
		"RegisterAccountTreatsExistingRoleAssignmentAsGranted": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			opts := newValetTestOptions(vaultURI, accountName)

			_, err := mv.RegisterAccount(ctx, opts)
			require.NoError(t, err)

			account, err := mv.RegisterAccount(ctx, opts)
			require.NoError(t, err)
			require.NotZero(t, account)

			assert.Equal(t, 2, authClient.CreateRoleAssignmentCalls, "re-registering should attempt the grant again")
			assert.Len(t, GlobalAuthorizationService.RoleAssignments, 1, "the existing assignment should be left in place")
		},
		"RegisterAccountAbortsWhenRoleDefinitionLookupFails": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			authClient.FindRoleDefinitionError = errors.New("injected failure")

			account, err := mv.RegisterAccount(ctx, newValetTestOptions(vaultURI, testutil.NewStorageAccountName()))
			assert.Error(t, err)
			assert.Zero(t, account)
			assert.Zero(t, authClient.CreateRoleAssignmentCalls)
			assert.Empty(t, GlobalKeyVaultService.Registrations[vaultURI], "a failed grant should not register the account")
		},
		"RegisterAccountAbortsWhenRoleAssignmentFails": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			authClient.CreateRoleAssignmentError = errors.New("injected failure")

			account, err := mv.RegisterAccount(ctx, newValetTestOptions(vaultURI, testutil.NewStorageAccountName()))
			assert.Error(t, err)
			assert.Zero(t, account)
			assert.Empty(t, GlobalKeyVaultService.Registrations[vaultURI], "a failed grant should not register the account")
		},
		"RegisterAccountCapturesOptionsOnTheWrapper": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			opts := newValetTestOptions(vaultURI, testutil.NewStorageAccountName())
			_, err := mv.RegisterAccount(ctx, opts)
			require.NoError(t, err)

			require.Len(t, mv.RegisterAccountInput, 1)
			assert.Equal(t, *opts, mv.RegisterAccountInput[0])
		},
		"RegisterAccountErrorOverridesTheBackingValet": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			mv.RegisterAccountError = errors.New("injected failure")

			account, err := mv.RegisterAccount(ctx, newValetTestOptions(vaultURI, testutil.NewStorageAccountName()))
			assert.Error(t, err)
			assert.Zero(t, account)
			assert.Empty(t, GlobalKeyVaultService.Registrations[vaultURI], "the backing valet should not run")
		},
		"GrantKeyOperatorCapturesInput": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			scope := testutil.StorageAccountResourceID(testutil.NewStorageAccountName())
			require.NoError(t, mv.GrantKeyOperator(ctx, scope, keyvalet.KeyVaultServicePrincipal, keyvalet.StorageKeyOperatorRole))

			assert.Equal(t, scope, utility.FromStringPtr(mv.GrantKeyOperatorScope))
			assert.Equal(t, keyvalet.KeyVaultServicePrincipal, utility.FromStringPtr(mv.GrantKeyOperatorPrincipal))
			assert.Equal(t, keyvalet.StorageKeyOperatorRole, utility.FromStringPtr(mv.GrantKeyOperatorRoleName))
			assert.Equal(t, 1, mv.GrantKeyOperatorCalls)
			assert.Len(t, GlobalAuthorizationService.RoleAssignments, 1)
		},
		"GrantKeyOperatorErrorShortCircuitsTheBackingValet": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			mv.GrantKeyOperatorError = errors.New("injected failure")

			err := mv.GrantKeyOperator(ctx, testutil.StorageAccountResourceID(testutil.NewStorageAccountName()), keyvalet.KeyVaultServicePrincipal, keyvalet.StorageKeyOperatorRole)
			assert.Error(t, err)
			assert.Equal(t, 1, mv.GrantKeyOperatorCalls)
			assert.Empty(t, GlobalAuthorizationService.RoleAssignments, "the backing valet should not run")
		},
		"GetAccountAndListAccountsCaptureInputs": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			accountName := testutil.NewStorageAccountName()
			_, err := mv.RegisterAccount(ctx, newValetTestOptions(vaultURI, accountName))
			require.NoError(t, err)

			account, err := mv.GetAccount(ctx, vaultURI, accountName)
			require.NoError(t, err)
			require.NotZero(t, account)
			assert.Equal(t, vaultURI, utility.FromStringPtr(mv.GetAccountVault))
			assert.Equal(t, accountName, utility.FromStringPtr(mv.GetAccountInput))

			bundles, err := mv.ListAccounts(ctx, vaultURI)
			require.NoError(t, err)
			assert.Len(t, bundles, 1)
			assert.Equal(t, vaultURI, utility.FromStringPtr(mv.ListAccountsInput))
		},
		"ListAccountsOutputOverridesTheBackingValet": func(ctx context.Context, t *testing.T, mv *Valet, msClient *ManagedStorageClient, authClient *AuthorizationClient, vaultURI string) {
			mv.ListAccountsOutput = []keyvalet.StorageBundle{
				{ResourceID: utility.ToStringPtr(testutil.StorageAccountResourceID("injected"))},
			}

			bundles, err := mv.ListAccounts(ctx, vaultURI)
			require.NoError(t, err)
			require.Len(t, bundles, 1)
			assert.Equal(t, testutil.StorageAccountResourceID("injected"), utility.FromStringPtr(bundles[0].ResourceID))
		},
	}
}

func newValetTestOptions(vaultURI, accountName string) *keyvalet.AccountRegistrationOptions {
	return keyvalet.NewAccountRegistrationOptions().
		SetVaultURI(vaultURI).
		SetAccountName(accountName).
		SetAccountResourceID(testutil.StorageAccountResourceID(accountName))
}
