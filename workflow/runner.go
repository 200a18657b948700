package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

const (
	// sasDefinitionName is the SAS definition the workflow creates in the
	// vault.
	sasDefinitionName = "keyvalet-sas"
	// sasValidityPeriod is how long each token minted from the SAS definition
	// stays valid.
	sasValidityPeriod = "PT2H"
	// sasTemplateValidity is how far in the future the template token given to
	// the vault expires. The vault substitutes its own expiry into minted
	// tokens, so the template only has to outlive the definition setup.
	sasTemplateValidity = 30 * 24 * time.Hour
	// sasDirectValidity is the lifetime of tokens minted straight from the
	// storage account when the vault does not manage the keys.
	sasDirectValidity = time.Hour
	// sasResourceTypes covers service, container, and object operations.
	sasResourceTypes = "sco"

	// proofContainer is the container the workflow writes into to prove a
	// minted token works against the data plane.
	proofContainer = "keyvalet-proof"
	// proofBlob is the blob written with the minted token.
	proofBlob = "proof.txt"

	// updatedActiveKeyName is the key the vault hands out after the policy
	// update, freeing the initial key for regeneration.
	updatedActiveKeyName = "key2"
	// updatedRegenerationPeriod is the rotation interval after the policy
	// update.
	updatedRegenerationPeriod = "P60D"

	// encryptionKeyName is the vault key that backs the storage account's
	// encryption in customer managed key mode.
	encryptionKeyName = "keyvalet-encryption-key"
)

// RunnerOptions are options to initialize a workflow runner.
type RunnerOptions struct {
	// Config is the validated runtime configuration. Required.
	Config *Config
	// ResourceGroups manages resource groups. Required.
	ResourceGroups keyvalet.ResourceGroupsClient
	// Vaults manages key vaults. Required.
	Vaults keyvalet.VaultsClient
	// Storage manages storage accounts. Required.
	Storage keyvalet.StorageAccountsClient
	// Authorization manages role assignments. Required in managed keys mode
	// unless a Valet is given.
	Authorization keyvalet.AuthorizationClient
	// ManagedStorage talks to the vault's managed storage account data plane.
	// Required in managed keys mode.
	ManagedStorage keyvalet.ManagedStorageClient
	// Secrets reads vault secrets, including the managed secrets that serve
	// minted tokens. Required in managed keys mode.
	Secrets keyvalet.SecretsClient
	// Keys manages vault keys. Required in customer managed key mode.
	Keys keyvalet.KeysClient
	// MakeBlobClient builds blob data-plane clients once a SAS token exists.
	// Required.
	MakeBlobClient keyvalet.BlobClientMaker
	// Valet registers accounts with the vault. Defaults to a basic valet over
	// ManagedStorage and Authorization.
	Valet keyvalet.Valet
	// PropagationRetry controls how long the workflow waits for a freshly
	// minted token to propagate before the proof write gives up. Defaults to
	// 10 attempts a few seconds apart.
	PropagationRetry *utility.RetryOptions
}

// NewRunnerOptions returns new uninitialized options to create a runner.
func NewRunnerOptions() *RunnerOptions {
	return &RunnerOptions{}
}

// SetConfig sets the runtime configuration.
func (o *RunnerOptions) SetConfig(c *Config) *RunnerOptions {
	o.Config = c
	return o
}

// SetResourceGroupsClient sets the client that manages resource groups.
func (o *RunnerOptions) SetResourceGroupsClient(c keyvalet.ResourceGroupsClient) *RunnerOptions {
	o.ResourceGroups = c
	return o
}

// SetVaultsClient sets the client that manages key vaults.
func (o *RunnerOptions) SetVaultsClient(c keyvalet.VaultsClient) *RunnerOptions {
	o.Vaults = c
	return o
}

// SetStorageAccountsClient sets the client that manages storage accounts.
func (o *RunnerOptions) SetStorageAccountsClient(c keyvalet.StorageAccountsClient) *RunnerOptions {
	o.Storage = c
	return o
}

// SetAuthorizationClient sets the client that manages role assignments.
func (o *RunnerOptions) SetAuthorizationClient(c keyvalet.AuthorizationClient) *RunnerOptions {
	o.Authorization = c
	return o
}

// SetManagedStorageClient sets the client for the vault's managed storage
// account data plane.
func (o *RunnerOptions) SetManagedStorageClient(c keyvalet.ManagedStorageClient) *RunnerOptions {
	o.ManagedStorage = c
	return o
}

// SetSecretsClient sets the client that reads vault secrets.
func (o *RunnerOptions) SetSecretsClient(c keyvalet.SecretsClient) *RunnerOptions {
	o.Secrets = c
	return o
}

// SetKeysClient sets the client that manages vault keys.
func (o *RunnerOptions) SetKeysClient(c keyvalet.KeysClient) *RunnerOptions {
	o.Keys = c
	return o
}

// SetBlobClientMaker sets the maker for blob data-plane clients.
func (o *RunnerOptions) SetBlobClientMaker(m keyvalet.BlobClientMaker) *RunnerOptions {
	o.MakeBlobClient = m
	return o
}

// SetValet sets the valet that registers accounts with the vault.
func (o *RunnerOptions) SetValet(v keyvalet.Valet) *RunnerOptions {
	o.Valet = v
	return o
}

// SetPropagationRetryOptions sets how the proof write waits for a minted
// token to propagate.
func (o *RunnerOptions) SetPropagationRetryOptions(opts utility.RetryOptions) *RunnerOptions {
	o.PropagationRetry = &opts
	return o
}

// Validate checks that all the required parameters are given and assigns
// defaults to all unspecified options.
func (o *RunnerOptions) Validate() error {
	catcher := grip.NewBasicCatcher()

	mode := ModeManagedKeys
	if o.Config == nil {
		catcher.New("must provide a workflow configuration")
	} else {
		catcher.Wrap(o.Config.Validate(), "invalid configuration")
		if o.Config.Mode != "" {
			mode = o.Config.Mode
		}
	}

	catcher.NewWhen(o.ResourceGroups == nil, "must provide a resource groups client")
	catcher.NewWhen(o.Vaults == nil, "must provide a vaults client")
	catcher.NewWhen(o.Storage == nil, "must provide a storage accounts client")
	catcher.NewWhen(o.MakeBlobClient == nil, "must provide a blob client maker")
	catcher.NewWhen(mode == ModeManagedKeys && o.ManagedStorage == nil, "must provide a managed storage client")
	catcher.NewWhen(mode == ModeManagedKeys && o.Secrets == nil, "must provide a secrets client to read minted tokens")
	catcher.NewWhen(mode == ModeManagedKeys && o.Valet == nil && o.Authorization == nil, "must provide either a valet or an authorization client")
	catcher.NewWhen(mode == ModeCustomerManagedKey && o.Keys == nil, "must provide a keys client to manage the encryption key")

	if catcher.HasErrors() {
		return catcher.Resolve()
	}

	if o.Valet == nil && mode == ModeManagedKeys {
		valet, err := keyvalet.NewBasicValet(o.ManagedStorage, o.Authorization)
		if err != nil {
			return errors.Wrap(err, "building the default valet")
		}
		o.Valet = valet
	}
	if o.PropagationRetry == nil {
		o.PropagationRetry = &utility.RetryOptions{
			MaxAttempts: 10,
			MinDelay:    2 * time.Second,
			MaxDelay:    30 * time.Second,
		}
	}

	return nil
}

// MergeRunnerOptions merges all the given options to initialize a runner.
// Options are applied in the order that they're specified and conflicting
// options are overwritten.
func MergeRunnerOptions(opts ...*RunnerOptions) RunnerOptions {
	merged := RunnerOptions{}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if opt.Config != nil {
			merged.Config = opt.Config
		}

		if opt.ResourceGroups != nil {
			merged.ResourceGroups = opt.ResourceGroups
		}

		if opt.Vaults != nil {
			merged.Vaults = opt.Vaults
		}

		if opt.Storage != nil {
			merged.Storage = opt.Storage
		}

		if opt.Authorization != nil {
			merged.Authorization = opt.Authorization
		}

		if opt.ManagedStorage != nil {
			merged.ManagedStorage = opt.ManagedStorage
		}

		if opt.Secrets != nil {
			merged.Secrets = opt.Secrets
		}

		if opt.Keys != nil {
			merged.Keys = opt.Keys
		}

		if opt.MakeBlobClient != nil {
			merged.MakeBlobClient = opt.MakeBlobClient
		}

		if opt.Valet != nil {
			merged.Valet = opt.Valet
		}

		if opt.PropagationRetry != nil {
			merged.PropagationRetry = opt.PropagationRetry
		}
	}

	return merged
}

// Runner drives the provisioning workflow from start to finish against the
// given clients. A runner is single use: each run provisions its own vault
// registration and storage account.
type Runner struct {
	config           *Config
	resourceGroups   keyvalet.ResourceGroupsClient
	vaults           keyvalet.VaultsClient
	storage          keyvalet.StorageAccountsClient
	managedStorage   keyvalet.ManagedStorageClient
	secrets          keyvalet.SecretsClient
	keys             keyvalet.KeysClient
	makeBlobClient   keyvalet.BlobClientMaker
	valet            keyvalet.Valet
	propagationRetry utility.RetryOptions

	state runState
}

// runState carries what earlier steps produced for later steps to use.
type runState struct {
	vaultName    string
	vault        *armkeyvault.Vault
	vaultURI     string
	accountName  string
	account      *armstorage.Account
	resourceID   string
	blobEndpoint string
	managed      keyvalet.ManagedAccount
	keyID        string
	sasToken     string
}

// NewRunner initializes a new workflow runner from the given options.
func NewRunner(opts ...*RunnerOptions) (*Runner, error) {
	merged := MergeRunnerOptions(opts...)
	if err := merged.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	return &Runner{
		config:           merged.Config,
		resourceGroups:   merged.ResourceGroups,
		vaults:           merged.Vaults,
		storage:          merged.Storage,
		managedStorage:   merged.ManagedStorage,
		secrets:          merged.Secrets,
		keys:             merged.Keys,
		makeBlobClient:   merged.MakeBlobClient,
		valet:            merged.Valet,
		propagationRetry: *merged.PropagationRetry,
	}, nil
}

// Run executes the workflow steps in order. The first failing step aborts the
// run; nothing a failed run created is rolled back.
func (r *Runner) Run(ctx context.Context) error {
	grip.Info(message.Fields{
		"message":        "starting workflow",
		"mode":           r.config.Mode,
		"region":         r.config.Region,
		"resource_group": r.config.ResourceGroup,
	})

	for _, step := range Sequence() {
		if r.shouldSkip(step) {
			grip.Info(message.Fields{
				"message": "skipping step",
				"step":    step,
				"mode":    r.config.Mode,
			})
			continue
		}

		grip.Info(message.Fields{
			"message": "running step",
			"step":    step,
		})

		if err := r.runStep(ctx, step); err != nil {
			return errors.Wrapf(err, "step '%s'", step)
		}
	}

	grip.Info(message.Fields{
		"message": "workflow complete",
		"mode":    r.config.Mode,
		"vault":   r.state.vaultName,
		"account": r.state.accountName,
	})

	return nil
}

// shouldSkip reports whether the step does not apply to this run. Teardown is
// skipped when the run keeps its resources, and the key operator role grant
// only matters when the vault manages the account keys.
func (r *Runner) shouldSkip(step Step) bool {
	if step == StepTeardown && r.config.KeepResources {
		return true
	}
	if step == StepGrantKeyOperatorRole && r.config.Mode == ModeCustomerManagedKey {
		return true
	}
	return false
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	switch step {
	case StepEnsureResourceGroup:
		return r.ensureResourceGroup(ctx)
	case StepAcquireVault:
		return r.acquireVault(ctx)
	case StepCreateStorageAccount:
		return r.createStorageAccount(ctx)
	case StepGrantKeyOperatorRole:
		return r.grantKeyOperatorRole(ctx)
	case StepGrantVaultAccess:
		return r.grantVaultAccess(ctx)
	case StepRegisterAccount:
		return r.registerAccount(ctx)
	case StepUpdateKeyPolicy:
		return r.updateKeyPolicy(ctx)
	case StepRegenerateKey:
		return r.regenerateKey(ctx)
	case StepAuditRegistrations:
		return r.auditRegistrations(ctx)
	case StepIssueSas:
		return r.issueSas(ctx)
	case StepTeardown:
		return r.teardown(ctx)
	default:
		return errors.Errorf("unrecognized workflow step '%s'", step)
	}
}

func (r *Runner) ensureResourceGroup(ctx context.Context) error {
	group, err := r.resourceGroups.CreateOrUpdateResourceGroup(ctx, r.config.ResourceGroup, armresources.ResourceGroup{
		Location: &r.config.Region,
	})
	if err != nil {
		return errors.Wrapf(err, "ensuring resource group '%s'", r.config.ResourceGroup)
	}

	grip.Info(message.Fields{
		"message":        "resource group ready",
		"resource_group": utility.FromStringPtr(group.Name),
		"region":         utility.FromStringPtr(group.Location),
	})

	return nil
}

// acquireVault uses the configured vault when one is named and otherwise
// creates a fresh one. A configured vault that does not exist is fatal rather
// than created, since the operator asked for that vault specifically.
func (r *Runner) acquireVault(ctx context.Context) error {
	if r.config.VaultName != "" {
		vault, err := r.vaults.GetVault(ctx, r.config.ResourceGroup, r.config.VaultName)
		if err != nil {
			return errors.Wrapf(err, "looking up configured vault '%s'", r.config.VaultName)
		}

		grip.Info(message.Fields{
			"message": "using the configured vault",
			"vault":   r.config.VaultName,
		})

		r.state.vaultName = r.config.VaultName
		return r.adoptVault(vault)
	}

	name := generateVaultName()
	grip.Info(message.Fields{
		"message": "creating a vault",
		"vault":   name,
	})

	vault, err := r.vaults.CreateOrUpdateVault(ctx, r.config.ResourceGroup, name, r.newVaultParameters())
	if err != nil {
		return errors.Wrapf(err, "creating vault '%s'", name)
	}

	r.state.vaultName = name
	return r.adoptVault(vault)
}

func (r *Runner) adoptVault(vault *armkeyvault.Vault) error {
	if vault == nil || vault.Properties == nil || vault.Properties.VaultURI == nil {
		return errors.New("vault record has no data-plane URI")
	}
	r.state.vault = vault
	r.state.vaultURI = *vault.Properties.VaultURI
	return nil
}

// newVaultParameters describes a fresh vault: standard SKU, with the operator
// granted full key, secret, certificate, and storage access. The later access
// policy push exists for configured vaults, whose policies the run does not
// control.
func (r *Runner) newVaultParameters() armkeyvault.VaultCreateOrUpdateParameters {
	return armkeyvault.VaultCreateOrUpdateParameters{
		Location: &r.config.Region,
		Properties: &armkeyvault.VaultProperties{
			TenantID: &r.config.TenantID,
			SKU: &armkeyvault.SKU{
				Family: to.Ptr(armkeyvault.SKUFamilyA),
				Name:   to.Ptr(armkeyvault.SKUNameStandard),
			},
			AccessPolicies: []*armkeyvault.AccessPolicyEntry{{
				TenantID: &r.config.TenantID,
				ObjectID: &r.config.ClientObjectID,
				Permissions: &armkeyvault.Permissions{
					Keys:         to.SliceOfPtrs(armkeyvault.PossibleKeyPermissionsValues()...),
					Secrets:      to.SliceOfPtrs(armkeyvault.PossibleSecretPermissionsValues()...),
					Certificates: to.SliceOfPtrs(armkeyvault.PossibleCertificatePermissionsValues()...),
					Storage:      to.SliceOfPtrs(armkeyvault.PossibleStoragePermissionsValues()...),
				},
			}},
		},
	}
}

func (r *Runner) createStorageAccount(ctx context.Context) error {
	name := generateStorageAccountName()
	grip.Info(message.Fields{
		"message": "creating a storage account",
		"account": name,
	})

	params := armstorage.AccountCreateParameters{
		Location: &r.config.Region,
		Kind:     to.Ptr(armstorage.KindStorageV2),
		SKU: &armstorage.SKU{
			Name: to.Ptr(armstorage.SKUNameStandardLRS),
		},
		Identity: &armstorage.Identity{
			Type: to.Ptr(armstorage.IdentityTypeSystemAssigned),
		},
	}

	account, err := r.storage.CreateAccount(ctx, r.config.ResourceGroup, name, params)
	if err != nil {
		return errors.Wrapf(err, "creating storage account '%s'", name)
	}
	if account == nil || account.ID == nil {
		return errors.New("storage account record has no resource ID")
	}

	r.state.accountName = name
	r.state.account = account
	r.state.resourceID = *account.ID
	if account.Properties != nil && account.Properties.PrimaryEndpoints != nil {
		r.state.blobEndpoint = utility.FromStringPtr(account.Properties.PrimaryEndpoints.Blob)
	}

	return nil
}

func (r *Runner) grantKeyOperatorRole(ctx context.Context) error {
	err := r.valet.GrantKeyOperator(ctx, r.state.resourceID, r.config.VaultServicePrincipal, keyvalet.StorageKeyOperatorRole)
	return errors.Wrap(err, "granting the vault's service principal access to the account keys")
}

// grantVaultAccess adds the operator's storage permissions to the vault's
// access policies so the data-plane calls that follow are allowed.
func (r *Runner) grantVaultAccess(ctx context.Context) error {
	entry := &armkeyvault.AccessPolicyEntry{
		TenantID: &r.config.TenantID,
		ObjectID: &r.config.ClientObjectID,
		Permissions: &armkeyvault.Permissions{
			Storage: to.SliceOfPtrs(armkeyvault.PossibleStoragePermissionsValues()...),
		},
	}

	if err := r.pushAccessPolicy(ctx, entry); err != nil {
		return err
	}

	grip.Info(message.Fields{
		"message": "granted storage permissions on the vault",
		"vault":   r.state.vaultName,
		"object":  r.config.ClientObjectID,
	})

	return nil
}

// pushAccessPolicy appends the entry to the vault's in-memory access policies
// and pushes the whole vault definition back, since vault updates replace the
// policy list rather than merge it.
func (r *Runner) pushAccessPolicy(ctx context.Context, entry *armkeyvault.AccessPolicyEntry) error {
	vault := r.state.vault
	if vault == nil || vault.Properties == nil {
		return errors.New("no vault acquired")
	}

	vault.Properties.AccessPolicies = append(vault.Properties.AccessPolicies, entry)

	params := armkeyvault.VaultCreateOrUpdateParameters{
		Location:   vault.Location,
		Properties: vault.Properties,
	}

	updated, err := r.vaults.CreateOrUpdateVault(ctx, r.config.ResourceGroup, r.state.vaultName, params)
	if err != nil {
		return errors.Wrap(err, "pushing vault access policies")
	}

	return r.adoptVault(updated)
}

func (r *Runner) registerAccount(ctx context.Context) error {
	if r.config.Mode == ModeCustomerManagedKey {
		return r.bindEncryptionKey(ctx)
	}
	return r.registerManagedKeys(ctx)
}

// registerManagedKeys hands the account keys to the vault through the valet,
// which re-asserts the key-operator grant idempotently, and keeps a handle for
// the key operations that follow.
func (r *Runner) registerManagedKeys(ctx context.Context) error {
	opts := keyvalet.NewAccountRegistrationOptions().
		SetVaultURI(r.state.vaultURI).
		SetAccountName(r.state.accountName).
		SetAccountResourceID(r.state.resourceID).
		SetActiveKeyName(keyvalet.DefaultActiveKeyName).
		SetAutoRegenerate(true).
		SetRegenerationPeriod(keyvalet.DefaultRegenerationPeriod).
		SetServicePrincipal(r.config.VaultServicePrincipal)

	account, err := r.valet.RegisterAccount(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "registering the account with the vault")
	}
	r.state.managed = account

	grip.Info(message.Fields{
		"message":    "vault has taken over the account keys",
		"account":    r.state.accountName,
		"active_key": keyvalet.DefaultActiveKeyName,
		"period":     keyvalet.DefaultRegenerationPeriod,
	})

	return nil
}

// bindEncryptionKey creates a vault key, lets the account's identity use it,
// and points the account's blob encryption at it.
func (r *Runner) bindEncryptionKey(ctx context.Context) error {
	resp, err := r.keys.CreateKey(ctx, r.state.vaultURI, encryptionKeyName, newEncryptionKeyParameters())
	if err != nil {
		return errors.Wrapf(err, "creating vault key '%s'", encryptionKeyName)
	}
	if resp.Key == nil || resp.Key.KID == nil {
		return errors.New("created key has no identifier")
	}
	kid := resp.Key.KID
	r.state.keyID = string(*kid)

	if err := r.grantAccountVaultAccess(ctx); err != nil {
		return err
	}

	account, err := r.storage.UpdateAccount(ctx, r.config.ResourceGroup, r.state.accountName, encryptionUpdateParameters(kid, r.state.vaultURI))
	if err != nil {
		return errors.Wrap(err, "binding the account's encryption to the vault key")
	}
	r.state.account = account

	grip.Info(message.Fields{
		"message": "account encryption bound to the vault key",
		"account": r.state.accountName,
		"key":     r.state.keyID,
	})

	return nil
}

// grantAccountVaultAccess lets the storage account's system identity unwrap
// the encryption key held in the vault.
func (r *Runner) grantAccountVaultAccess(ctx context.Context) error {
	account := r.state.account
	if account == nil || account.Identity == nil || account.Identity.PrincipalID == nil {
		return errors.New("storage account has no system-assigned identity")
	}

	entry := &armkeyvault.AccessPolicyEntry{
		TenantID: &r.config.TenantID,
		ObjectID: account.Identity.PrincipalID,
		Permissions: &armkeyvault.Permissions{
			Keys: to.SliceOfPtrs(armkeyvault.KeyPermissionsGet, armkeyvault.KeyPermissionsWrapKey, armkeyvault.KeyPermissionsUnwrapKey),
		},
	}

	return errors.Wrap(r.pushAccessPolicy(ctx, entry), "granting the account's identity access to the vault key")
}

func newEncryptionKeyParameters() azkeys.CreateKeyParameters {
	return azkeys.CreateKeyParameters{
		Kty:     to.Ptr(azkeys.KeyTypeRSA),
		KeySize: to.Ptr(int32(2048)),
	}
}

func encryptionUpdateParameters(kid *azkeys.ID, vaultURI string) armstorage.AccountUpdateParameters {
	return armstorage.AccountUpdateParameters{
		Properties: &armstorage.AccountPropertiesUpdateParameters{
			Encryption: &armstorage.Encryption{
				KeySource: to.Ptr(armstorage.KeySourceMicrosoftKeyvault),
				KeyVaultProperties: &armstorage.KeyVaultProperties{
					KeyName:     to.Ptr(kid.Name()),
					KeyVersion:  to.Ptr(kid.Version()),
					KeyVaultURI: &vaultURI,
				},
				Services: &armstorage.EncryptionServices{
					Blob: &armstorage.EncryptionService{
						Enabled: to.Ptr(true),
					},
				},
			},
		},
	}
}

func (r *Runner) updateKeyPolicy(ctx context.Context) error {
	if r.config.Mode == ModeCustomerManagedKey {
		return r.rollEncryptionKey(ctx)
	}

	patch := keyvalet.NewStorageAccountPatch().
		SetActiveKeyName(updatedActiveKeyName).
		SetRegenerationPeriod(updatedRegenerationPeriod)

	bundle, err := r.managedStorage.UpdateStorageAccount(ctx, r.state.vaultURI, r.state.accountName, *patch)
	if err != nil {
		return errors.Wrap(err, "updating the registration")
	}

	grip.Info(message.Fields{
		"message":    "registration updated",
		"account":    r.state.accountName,
		"active_key": utility.FromStringPtr(bundle.ActiveKeyName),
		"period":     utility.FromStringPtr(bundle.RegenerationPeriod),
	})

	return nil
}

// rollEncryptionKey creates a new version of the encryption key and moves the
// account's encryption onto it.
func (r *Runner) rollEncryptionKey(ctx context.Context) error {
	resp, err := r.keys.CreateKey(ctx, r.state.vaultURI, encryptionKeyName, newEncryptionKeyParameters())
	if err != nil {
		return errors.Wrapf(err, "creating a new version of vault key '%s'", encryptionKeyName)
	}
	if resp.Key == nil || resp.Key.KID == nil {
		return errors.New("created key has no identifier")
	}
	kid := resp.Key.KID
	r.state.keyID = string(*kid)

	account, err := r.storage.UpdateAccount(ctx, r.config.ResourceGroup, r.state.accountName, encryptionUpdateParameters(kid, r.state.vaultURI))
	if err != nil {
		return errors.Wrap(err, "moving the account's encryption to the new key version")
	}
	r.state.account = account

	grip.Info(message.Fields{
		"message": "account encryption moved to a new key version",
		"account": r.state.accountName,
		"key":     r.state.keyID,
	})

	return nil
}

func (r *Runner) regenerateKey(ctx context.Context) error {
	if r.config.Mode == ModeCustomerManagedKey {
		keys, err := r.storage.RegenerateKey(ctx, r.config.ResourceGroup, r.state.accountName, keyvalet.DefaultActiveKeyName)
		if err != nil {
			return errors.Wrapf(err, "regenerating key '%s'", keyvalet.DefaultActiveKeyName)
		}

		grip.Info(message.Fields{
			"message": "regenerated an account key",
			"account": r.state.accountName,
			"key":     keyvalet.DefaultActiveKeyName,
			"keys":    len(keys),
		})
		return nil
	}

	if err := r.state.managed.Rotate(ctx, keyvalet.DefaultActiveKeyName); err != nil {
		return errors.Wrapf(err, "rotating key '%s' through the vault", keyvalet.DefaultActiveKeyName)
	}

	grip.Info(message.Fields{
		"message": "vault regenerated an account key",
		"account": r.state.accountName,
		"key":     keyvalet.DefaultActiveKeyName,
	})

	return nil
}

func (r *Runner) auditRegistrations(ctx context.Context) error {
	if r.config.Mode == ModeCustomerManagedKey {
		keys, err := r.storage.ListKeys(ctx, r.config.ResourceGroup, r.state.accountName)
		if err != nil {
			return errors.Wrap(err, "listing account keys")
		}

		grip.Info(message.Fields{
			"message": "account keys listed",
			"account": r.state.accountName,
			"keys":    len(keys),
		})
		return nil
	}

	bundles, err := r.valet.ListAccounts(ctx, r.state.vaultURI)
	if err != nil {
		return errors.Wrap(err, "listing registered accounts")
	}
	for _, bundle := range bundles {
		grip.Info(message.Fields{
			"message":    "vault-managed storage account",
			"account":    bundle.AccountName(),
			"active_key": utility.FromStringPtr(bundle.ActiveKeyName),
			"period":     utility.FromStringPtr(bundle.RegenerationPeriod),
		})
	}

	defs, err := r.state.managed.ListSasDefinitions(ctx)
	if err != nil {
		return errors.Wrap(err, "listing SAS definitions")
	}

	grip.Info(message.Fields{
		"message":     "audit complete",
		"vault":       r.state.vaultName,
		"accounts":    len(bundles),
		"definitions": len(defs),
	})

	return nil
}

func (r *Runner) issueSas(ctx context.Context) error {
	if r.state.blobEndpoint == "" {
		return errors.New("the storage account has no blob endpoint")
	}

	if r.config.Mode == ModeCustomerManagedKey {
		token, err := r.storage.ListAccountSAS(ctx, r.config.ResourceGroup, r.state.accountName, r.newSasParameters(sasDirectValidity))
		if err != nil {
			return errors.Wrap(err, "minting an account SAS token")
		}
		r.state.sasToken = token

		return errors.Wrap(r.proveBlobAccess(ctx, token), "proving the minted token against the blob data plane")
	}

	template, err := r.storage.ListAccountSAS(ctx, r.config.ResourceGroup, r.state.accountName, r.newSasParameters(sasTemplateValidity))
	if err != nil {
		return errors.Wrap(err, "minting the SAS template")
	}

	def, err := r.state.managed.CreateSasDefinition(ctx, keyvalet.NewSasDefinitionOptions().
		SetName(sasDefinitionName).
		SetTemplateURI(template).
		SetSasType(keyvalet.SasTypeAccount).
		SetValidityPeriod(sasValidityPeriod))
	if err != nil {
		return errors.Wrap(err, "creating the SAS definition")
	}

	secretName, err := def.SecretName()
	if err != nil {
		return errors.Wrap(err, "resolving the definition's managed secret")
	}

	secret, err := r.secrets.GetSecret(ctx, r.state.vaultURI, secretName, "")
	if err != nil {
		return errors.Wrapf(err, "reading managed secret '%s'", secretName)
	}
	token := utility.FromStringPtr(secret.Value)
	if token == "" {
		return errors.Errorf("managed secret '%s' holds no token", secretName)
	}
	r.state.sasToken = token

	grip.Info(message.Fields{
		"message":    "vault minted a SAS token",
		"account":    r.state.accountName,
		"definition": sasDefinitionName,
		"secret":     secretName,
	})

	return errors.Wrap(r.proveBlobAccess(ctx, token), "proving the minted token against the blob data plane")
}

// newSasParameters describes an account SAS over the blob service with the
// configured permissions.
func (r *Runner) newSasParameters(validity time.Duration) armstorage.AccountSasParameters {
	expiry := time.Now().Add(validity).UTC()
	return armstorage.AccountSasParameters{
		Services:               to.Ptr(armstorage.ServicesB),
		ResourceTypes:          to.Ptr(armstorage.SignedResourceTypes(sasResourceTypes)),
		Permissions:            to.Ptr(armstorage.Permissions(r.config.SasPermissions)),
		Protocols:              to.Ptr(armstorage.HTTPProtocolHTTPS),
		SharedAccessExpiryTime: &expiry,
	}
}

// proveBlobAccess writes a blob with the token and reads nothing back: if the
// write goes through, the token grants real data-plane access. Freshly minted
// tokens can take a little while to become valid, so the write retries.
func (r *Runner) proveBlobAccess(ctx context.Context, sasToken string) error {
	client, err := r.makeBlobClient(r.state.blobEndpoint, sasToken)
	if err != nil {
		return errors.Wrap(err, "building a blob client for the minted token")
	}
	defer func() {
		grip.Error(message.WrapError(client.Close(ctx), message.Fields{
			"message": "closing the blob client",
		}))
	}()

	content := []byte(fmt.Sprintf("written with a vault-issued token at %s", time.Now().UTC().Format(time.RFC3339)))

	if err := utility.Retry(ctx, func() (bool, error) {
		if err := client.EnsureContainer(ctx, proofContainer); err != nil {
			return true, err
		}
		if err := client.UploadBlob(ctx, proofContainer, proofBlob, content); err != nil {
			return true, err
		}
		return true, nil
	}, r.propagationRetry); err != nil {
		return errors.Wrap(err, "writing the proof blob")
	}

	grip.Info(message.Fields{
		"message":   "proof blob written",
		"container": proofContainer,
		"blob":      proofBlob,
	})

	grip.Error(message.WrapError(client.DeleteContainer(ctx, proofContainer), message.Fields{
		"message":   "cleaning up the proof container",
		"container": proofContainer,
	}))

	return nil
}

func (r *Runner) teardown(ctx context.Context) error {
	if r.config.Mode == ModeCustomerManagedKey {
		params := armstorage.AccountUpdateParameters{
			Properties: &armstorage.AccountPropertiesUpdateParameters{
				Encryption: &armstorage.Encryption{
					KeySource: to.Ptr(armstorage.KeySourceMicrosoftStorage),
				},
			},
		}
		if _, err := r.storage.UpdateAccount(ctx, r.config.ResourceGroup, r.state.accountName, params); err != nil {
			return errors.Wrap(err, "reverting the account to service-managed encryption")
		}
	} else if err := r.state.managed.Deregister(ctx); err != nil {
		return errors.Wrap(err, "deregistering the account from the vault")
	}

	if err := r.storage.DeleteAccount(ctx, r.config.ResourceGroup, r.state.accountName); err != nil {
		return errors.Wrapf(err, "deleting storage account '%s'", r.state.accountName)
	}

	grip.Info(message.Fields{
		"message": "teardown complete, the vault stays in place",
		"vault":   r.state.vaultName,
		"account": r.state.accountName,
	})

	return nil
}
