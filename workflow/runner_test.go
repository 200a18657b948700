package workflow

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/mock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultTestTimeout = 10 * time.Second

// testClients bundles one mock client of every kind the runner takes, all
// backed by the global fake services.
type testClients struct {
	resourceGroups *mock.ResourceGroupsClient
	vaults         *mock.VaultsClient
	storage        *mock.StorageAccountsClient
	auth           *mock.AuthorizationClient
	managedStorage *mock.ManagedStorageClient
	secrets        *mock.SecretsClient
	keys           *mock.KeysClient
	blobMaker      *mock.BlobClientMaker
}

func newTestClients() *testClients {
	return &testClients{
		resourceGroups: &mock.ResourceGroupsClient{},
		vaults:         &mock.VaultsClient{},
		storage:        &mock.StorageAccountsClient{},
		auth:           &mock.AuthorizationClient{},
		managedStorage: &mock.ManagedStorageClient{},
		secrets:        &mock.SecretsClient{},
		keys:           &mock.KeysClient{},
		blobMaker:      &mock.BlobClientMaker{},
	}
}

// runnerOptions wires every mock client into runner options. The propagation
// retry is cut to a single attempt so failure cases do not wait out a backoff
// that only matters against the real data plane.
func (c *testClients) runnerOptions(conf *Config) *RunnerOptions {
	return NewRunnerOptions().
		SetConfig(conf).
		SetResourceGroupsClient(c.resourceGroups).
		SetVaultsClient(c.vaults).
		SetStorageAccountsClient(c.storage).
		SetAuthorizationClient(c.auth).
		SetManagedStorageClient(c.managedStorage).
		SetSecretsClient(c.secrets).
		SetKeysClient(c.keys).
		SetBlobClientMaker(c.blobMaker.Make).
		SetPropagationRetryOptions(utility.RetryOptions{MaxAttempts: 1})
}

func (c *testClients) run(ctx context.Context, t *testing.T, conf *Config) error {
	r, err := NewRunner(c.runnerOptions(conf))
	require.NoError(t, err)
	return r.Run(ctx)
}

// theVaultURI returns the URI of the single vault the run worked against.
func theVaultURI(t *testing.T) string {
	require.Len(t, mock.GlobalKeyVaultService.Vaults, 1)
	for _, vault := range mock.GlobalKeyVaultService.Vaults {
		return vault.URI
	}
	return ""
}

func TestNewRunner(t *testing.T) {
	t.Run("FailsWithoutOptions", func(t *testing.T) {
		r, err := NewRunner()
		assert.Error(t, err)
		assert.Zero(t, r)
	})
	t.Run("FailsWithInvalidConfiguration", func(t *testing.T) {
		c := newTestClients()
		r, err := NewRunner(c.runnerOptions(&Config{}))
		assert.Error(t, err)
		assert.Zero(t, r)
	})
	t.Run("FailsWithoutManagedStorageClientInManagedKeysMode", func(t *testing.T) {
		c := newTestClients()
		opts := c.runnerOptions(validTestConfig())
		opts.ManagedStorage = nil
		r, err := NewRunner(opts)
		assert.Error(t, err)
		assert.Zero(t, r)
	})
	t.Run("FailsWithoutKeysClientInCustomerManagedKeyMode", func(t *testing.T) {
		c := newTestClients()
		conf := validTestConfig()
		conf.Mode = ModeCustomerManagedKey
		opts := c.runnerOptions(conf)
		opts.Keys = nil
		r, err := NewRunner(opts)
		assert.Error(t, err)
		assert.Zero(t, r)
	})
	t.Run("BuildsDefaultValetFromClients", func(t *testing.T) {
		c := newTestClients()
		opts := c.runnerOptions(validTestConfig())
		require.NoError(t, opts.Validate())
		assert.NotZero(t, opts.Valet)
	})
	t.Run("SucceedsWithoutAuthorizationClientWhenValetIsGiven", func(t *testing.T) {
		c := newTestClients()
		v, err := keyvalet.NewBasicValet(c.managedStorage, c.auth)
		require.NoError(t, err)

		opts := c.runnerOptions(validTestConfig()).SetValet(v)
		opts.Authorization = nil
		r, err := NewRunner(opts)
		assert.NoError(t, err)
		assert.NotZero(t, r)
	})
}

func TestRunnerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for tName, tCase := range runnerTests() {
		t.Run(tName, func(t *testing.T) {
			tctx, tcancel := context.WithTimeout(ctx, defaultTestTimeout)
			defer tcancel()

			mock.ResetGlobalServices()

			tCase(tctx, t, newTestClients())
		})
	}
}

func runnerTests() map[string]func(ctx context.Context, t *testing.T, c *testClients) {
	return map[string]func(ctx context.Context, t *testing.T, c *testClients){
		"CompletesEveryStepInManagedKeysMode": func(ctx context.Context, t *testing.T, c *testClients) {
			conf := validTestConfig()
			require.NoError(t, c.run(ctx, t, conf))

			assert.Equal(t, conf.ResourceGroup, utility.FromStringPtr(c.resourceGroups.CreateOrUpdateResourceGroupName))
			assert.Equal(t, 2, c.vaults.CreateOrUpdateVaultCalls, "one create and one access policy push")

			require.Len(t, mock.GlobalAuthorizationService.RoleAssignments, 1)
			for _, assignment := range mock.GlobalAuthorizationService.RoleAssignments {
				assert.Equal(t, conf.VaultServicePrincipal, assignment.PrincipalID)
				assert.Contains(t, assignment.RoleDefinitionID, mock.StorageKeyOperatorRoleDefinition)
			}

			assert.Empty(t, mock.GlobalStorageService.Accounts, "teardown should delete the storage account")
			assert.Empty(t, mock.GlobalKeyVaultService.Registrations[theVaultURI(t)], "teardown should deregister the account")
			assert.Len(t, mock.GlobalKeyVaultService.Vaults, 1, "the vault should be left in place")

			require.NotZero(t, c.blobMaker.Client, "the proof write should have built a blob client")
			assert.Equal(t, proofContainer, utility.FromStringPtr(c.blobMaker.Client.EnsureContainerInput))
			assert.Equal(t, proofBlob, utility.FromStringPtr(c.blobMaker.Client.UploadBlobName))
			assert.Equal(t, proofContainer, utility.FromStringPtr(c.blobMaker.Client.DeleteContainerInput))
		},
		"GeneratesAndCreatesVaultWhenNoneIsConfigured": func(ctx context.Context, t *testing.T, c *testClients) {
			require.NoError(t, c.run(ctx, t, validTestConfig()))

			require.Len(t, mock.GlobalKeyVaultService.Vaults, 1, "exactly one vault should be created")
			for name, vault := range mock.GlobalKeyVaultService.Vaults {
				assert.True(t, strings.HasPrefix(name, "kv"), "generated name '%s' should carry the vault prefix", name)
				assert.LessOrEqual(t, len(name), 24, "generated name '%s' should satisfy the service's length cap", name)

				require.NotZero(t, vault.Properties)
				require.NotEmpty(t, vault.Properties.AccessPolicies)
				perms := vault.Properties.AccessPolicies[0].Permissions
				require.NotZero(t, perms, "the create should carry the operator's access policy")
				assert.NotEmpty(t, perms.Keys)
				assert.NotEmpty(t, perms.Secrets)
				assert.NotEmpty(t, perms.Certificates)
				assert.NotEmpty(t, perms.Storage)
			}

			require.Len(t, mock.GlobalStorageService.Accounts, 0, "teardown should have deleted the account")
			require.NotZero(t, c.storage.CreateAccountName)
			accountName := utility.FromStringPtr(c.storage.CreateAccountName)
			assert.Regexp(t, `^kvsa[a-z0-9]+$`, accountName)
			assert.LessOrEqual(t, len(accountName), 24, "generated name '%s' should satisfy the service's length cap", accountName)
		},
		"ConfiguredVaultNameOnlyLooksUpTheVault": func(ctx context.Context, t *testing.T, c *testClients) {
			conf := validTestConfig()
			conf.VaultName = "preexisting-vault"
			mock.GlobalKeyVaultService.Vaults[conf.VaultName] = mock.StoredVault{
				Name:          conf.VaultName,
				ResourceGroup: DefaultResourceGroup,
				URI:           mock.VaultURI(conf.VaultName),
				Properties: &armkeyvault.VaultProperties{
					TenantID: utility.ToStringPtr(conf.TenantID),
				},
			}

			require.NoError(t, c.run(ctx, t, conf))

			assert.Equal(t, conf.VaultName, utility.FromStringPtr(c.vaults.GetVaultInput))
			assert.Equal(t, 1, c.vaults.CreateOrUpdateVaultCalls, "the only push should be the access policy update, never a create")
			require.NotZero(t, c.vaults.CreateOrUpdateVaultInput)
			require.NotZero(t, c.vaults.CreateOrUpdateVaultInput.Properties)
			assert.NotEmpty(t, c.vaults.CreateOrUpdateVaultInput.Properties.AccessPolicies, "the push should carry the appended access policy")
		},
		"ConfiguredVaultThatDoesNotExistAbortsTheRun": func(ctx context.Context, t *testing.T, c *testClients) {
			conf := validTestConfig()
			conf.VaultName = "no-such-vault"

			err := c.run(ctx, t, conf)
			require.Error(t, err)
			assert.Contains(t, err.Error(), string(StepAcquireVault))
			assert.Zero(t, c.storage.CreateAccountInput, "no later step should run")
			assert.Empty(t, mock.GlobalKeyVaultService.Vaults, "a configured vault should never be created")
		},
		"RoleAssignmentConflictIsSwallowedAndTheRunContinues": func(ctx context.Context, t *testing.T, c *testClients) {
			c.auth.CreateRoleAssignmentError = keyvalet.NewRoleAssignmentExistsError("scope", keyvalet.KeyVaultServicePrincipal)

			require.NoError(t, c.run(ctx, t, validTestConfig()))

			assert.Equal(t, 2, c.auth.CreateRoleAssignmentCalls, "the grant step plus the registration's idempotent re-grant")
			assert.NotZero(t, c.managedStorage.SetStorageAccountInput, "registration should still happen")
			assert.NotZero(t, c.secrets.GetSecretInput, "the SAS flow should still happen")
		},
		"OtherAuthorizationErrorsAbortTheRun": func(ctx context.Context, t *testing.T, c *testClients) {
			c.auth.CreateRoleAssignmentError = errors.New("injected failure")

			err := c.run(ctx, t, validTestConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), string(StepGrantKeyOperatorRole))
			assert.Equal(t, 1, c.vaults.CreateOrUpdateVaultCalls, "the access policy push should not run after the failed grant")
			assert.Zero(t, c.managedStorage.SetStorageAccountInput, "the account should not be registered")
			assert.Zero(t, c.secrets.GetSecretInput, "the SAS flow should not run")
			assert.Len(t, mock.GlobalStorageService.Accounts, 1, "nothing is rolled back")
		},
		"RegistrationFailureAbortsBeforeKeyManagement": func(ctx context.Context, t *testing.T, c *testClients) {
			c.managedStorage.SetStorageAccountError = errors.New("injected failure")

			err := c.run(ctx, t, validTestConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), string(StepRegisterAccount))
			assert.Zero(t, c.managedStorage.UpdateStorageAccountInput)
			assert.Zero(t, c.managedStorage.RegenerateStorageKeyInput)
		},
		"KeepResourcesSkipsTeardownAndLeavesTheRunObservable": func(ctx context.Context, t *testing.T, c *testClients) {
			conf := validTestConfig()
			conf.KeepResources = true
			require.NoError(t, c.run(ctx, t, conf))

			vaultURI := theVaultURI(t)
			require.Len(t, mock.GlobalStorageService.Accounts, 1)
			for name, account := range mock.GlobalStorageService.Accounts {
				assert.Equal(t, 1, account.Keys[keyvalet.DefaultActiveKeyName].Generation, "the vault should have rotated the initial key once")
				assert.Equal(t, 0, account.Keys[updatedActiveKeyName].Generation)

				reg, ok := mock.GlobalKeyVaultService.Registrations[vaultURI][name]
				require.True(t, ok, "the registration should survive")
				assert.Equal(t, updatedActiveKeyName, reg.ActiveKeyName)
				assert.Equal(t, updatedRegenerationPeriod, reg.RegenerationPeriod)

				defs := mock.GlobalKeyVaultService.Sas[vaultURI][name]
				require.Len(t, defs, 1)
				def, ok := defs[sasDefinitionName]
				require.True(t, ok)
				assert.Equal(t, keyvalet.SasTypeAccount, def.SasType)
				assert.Equal(t, sasValidityPeriod, def.ValidityPeriod)

				secret, ok := mock.GlobalKeyVaultService.Secrets[vaultURI][name+"-"+sasDefinitionName]
				require.True(t, ok, "the SAS definition should mint a managed secret")
				assert.True(t, secret.Managed)
			}
		},
		"MintedTokenCarriesTheConfiguredPermissions": func(ctx context.Context, t *testing.T, c *testClients) {
			conf := validTestConfig()
			require.NoError(t, c.run(ctx, t, conf))

			require.NotZero(t, c.storage.ListAccountSASInput)
			require.NotZero(t, c.storage.ListAccountSASInput.Permissions)
			assert.Equal(t, conf.SasPermissions, string(*c.storage.ListAccountSASInput.Permissions))

			params, err := url.ParseQuery(strings.TrimPrefix(c.blobMaker.SasToken, "?"))
			require.NoError(t, err)
			assert.Equal(t, conf.SasPermissions, params.Get("sp"), "the vault-minted token should carry the template's permissions")

			require.NotZero(t, c.secrets.GetSecretInput)
			assert.True(t, strings.HasSuffix(utility.FromStringPtr(c.secrets.GetSecretInput), "-"+sasDefinitionName), "the token should be read from the definition's managed secret")
		},
		"TokenWithoutCreatePermissionFailsTheProofWrite": func(ctx context.Context, t *testing.T, c *testClients) {
			conf := validTestConfig()
			conf.SasPermissions = "rl"

			err := c.run(ctx, t, conf)
			require.Error(t, err)
			assert.Contains(t, err.Error(), string(StepIssueSas))
			require.NotZero(t, c.blobMaker.Client)
			assert.Zero(t, c.blobMaker.Client.UploadBlobName, "the write should never be attempted after the container create is denied")
			assert.Len(t, mock.GlobalStorageService.Accounts, 1, "teardown should not run after the failed proof")
		},
		"CustomerManagedKeyModeBindsAndRevertsEncryption": func(ctx context.Context, t *testing.T, c *testClients) {
			conf := validTestConfig()
			conf.Mode = ModeCustomerManagedKey
			require.NoError(t, c.run(ctx, t, conf))

			assert.Empty(t, mock.GlobalAuthorizationService.RoleAssignments, "the key operator grant only applies to vault-managed keys")
			assert.Zero(t, c.managedStorage.SetStorageAccountInput, "the account keys stay with the storage service")

			assert.Equal(t, encryptionKeyName, utility.FromStringPtr(c.keys.CreateKeyName))
			vaultURI := theVaultURI(t)
			assert.Len(t, mock.GlobalKeyVaultService.Keys[vaultURI][encryptionKeyName], 2, "binding plus the key roll should create two versions")

			assert.Equal(t, keyvalet.DefaultActiveKeyName, utility.FromStringPtr(c.storage.RegenerateKeyInput))

			require.NotZero(t, c.storage.UpdateAccountInput)
			require.NotZero(t, c.storage.UpdateAccountInput.Properties)
			require.NotZero(t, c.storage.UpdateAccountInput.Properties.Encryption)
			assert.Equal(t, armstorage.KeySourceMicrosoftStorage, *c.storage.UpdateAccountInput.Properties.Encryption.KeySource, "teardown should revert to service-managed encryption")
			assert.Empty(t, mock.GlobalStorageService.Accounts, "teardown should delete the storage account")
		},
	}
}
