package keyvalet

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/evergreen-ci/utility"
	"github.com/google/uuid"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

const (
	// KeyVaultServicePrincipal is the well-known identifier of the first-party
	// service principal that key vaults act as when they operate on storage
	// account keys.
	KeyVaultServicePrincipal = "cfa8b339-82a2-471a-a3c9-0fc0be7a4093"

	// StorageKeyOperatorRole is the built-in role that permits its holder to
	// list and regenerate storage account keys, and nothing else.
	StorageKeyOperatorRole = "Storage Account Key Operator Service Role"

	// DefaultActiveKeyName is the account key the vault hands out when no
	// other key is chosen at registration.
	DefaultActiveKeyName = "key1"

	// DefaultRegenerationPeriod is the rotation interval applied when no other
	// period is chosen at registration.
	DefaultRegenerationPeriod = "P30D"
)

// Valet manages the delegation of storage account keys to a key vault: it
// grants the vault the access it needs on the account, registers the account
// with the vault, and hands back ManagedAccounts to operate on.
type Valet interface {
	// GrantKeyOperator assigns the named role at the scope to the vault's
	// service principal, which the vault needs before it can operate on the
	// account keys. A role assignment that already exists is not an error.
	GrantKeyOperator(ctx context.Context, scope, principal, roleName string) error
	// RegisterAccount grants the vault's service principal the key-operator
	// role on the storage account and registers the account with the vault
	// for managed key rotation. A role assignment that already exists is not
	// an error.
	RegisterAccount(ctx context.Context, opts ...*AccountRegistrationOptions) (ManagedAccount, error)
	// GetAccount returns a handle for a storage account that is already
	// registered with the vault.
	GetAccount(ctx context.Context, vaultURI, accountName string) (ManagedAccount, error)
	// ListAccounts lists the vault's records of all registered storage
	// accounts.
	ListAccounts(ctx context.Context, vaultURI string) ([]StorageBundle, error)
}

// AccountRegistrationOptions are options to register a storage account with a
// key vault.
type AccountRegistrationOptions struct {
	// VaultURI is the data-plane URI of the vault that should manage the
	// account's keys. Required.
	VaultURI *string
	// AccountName is the name of the storage account. Required.
	AccountName *string
	// AccountResourceID is the full resource ID of the storage account.
	// Required.
	AccountResourceID *string
	// ActiveKeyName is the account key the vault hands out. Defaults to
	// DefaultActiveKeyName.
	ActiveKeyName *string
	// AutoRegenerate determines whether the vault rotates the keys on a
	// schedule. Defaults to true.
	AutoRegenerate *bool
	// RegenerationPeriod is the rotation interval as an ISO-8601 duration.
	// Defaults to DefaultRegenerationPeriod.
	RegenerationPeriod *string
	// ServicePrincipal is the object ID of the vault's service principal in
	// the tenant, which receives the key-operator role on the account.
	// Defaults to KeyVaultServicePrincipal.
	ServicePrincipal *string
	// RoleName is the role granted to the vault's service principal on the
	// account. Defaults to StorageKeyOperatorRole.
	RoleName *string
}

// NewAccountRegistrationOptions returns new uninitialized options to register
// a storage account.
func NewAccountRegistrationOptions() *AccountRegistrationOptions {
	return &AccountRegistrationOptions{}
}

// SetVaultURI sets the data-plane URI of the vault that should manage the
// account's keys.
func (o *AccountRegistrationOptions) SetVaultURI(uri string) *AccountRegistrationOptions {
	o.VaultURI = &uri
	return o
}

// SetAccountName sets the name of the storage account.
func (o *AccountRegistrationOptions) SetAccountName(name string) *AccountRegistrationOptions {
	o.AccountName = &name
	return o
}

// SetAccountResourceID sets the full resource ID of the storage account.
func (o *AccountRegistrationOptions) SetAccountResourceID(id string) *AccountRegistrationOptions {
	o.AccountResourceID = &id
	return o
}

// SetActiveKeyName sets the account key the vault hands out.
func (o *AccountRegistrationOptions) SetActiveKeyName(name string) *AccountRegistrationOptions {
	o.ActiveKeyName = &name
	return o
}

// SetAutoRegenerate sets whether the vault rotates the keys on a schedule.
func (o *AccountRegistrationOptions) SetAutoRegenerate(auto bool) *AccountRegistrationOptions {
	o.AutoRegenerate = &auto
	return o
}

// SetRegenerationPeriod sets the rotation interval as an ISO-8601 duration.
func (o *AccountRegistrationOptions) SetRegenerationPeriod(period string) *AccountRegistrationOptions {
	o.RegenerationPeriod = &period
	return o
}

// SetServicePrincipal sets the object ID of the vault's service principal in
// the tenant.
func (o *AccountRegistrationOptions) SetServicePrincipal(id string) *AccountRegistrationOptions {
	o.ServicePrincipal = &id
	return o
}

// SetRoleName sets the role granted to the vault's service principal on the
// account.
func (o *AccountRegistrationOptions) SetRoleName(name string) *AccountRegistrationOptions {
	o.RoleName = &name
	return o
}

// Validate checks that all the required parameters are given and assigns
// defaults to all unspecified options.
func (o *AccountRegistrationOptions) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(o.VaultURI == nil || *o.VaultURI == "", "must provide the vault URI")
	catcher.NewWhen(o.AccountName == nil || *o.AccountName == "", "must provide the storage account name")
	catcher.NewWhen(o.AccountResourceID == nil || *o.AccountResourceID == "", "must provide the storage account resource ID")
	catcher.NewWhen(o.ActiveKeyName != nil && *o.ActiveKeyName == "", "cannot provide an empty active key name")

	if catcher.HasErrors() {
		return catcher.Resolve()
	}

	if o.ActiveKeyName == nil {
		o.ActiveKeyName = utility.ToStringPtr(DefaultActiveKeyName)
	}
	if o.AutoRegenerate == nil {
		o.AutoRegenerate = utility.TruePtr()
	}
	if o.RegenerationPeriod == nil {
		o.RegenerationPeriod = utility.ToStringPtr(DefaultRegenerationPeriod)
	}
	if o.ServicePrincipal == nil {
		o.ServicePrincipal = utility.ToStringPtr(KeyVaultServicePrincipal)
	}
	if o.RoleName == nil {
		o.RoleName = utility.ToStringPtr(StorageKeyOperatorRole)
	}

	return nil
}

// MergeAccountRegistrationOptions merges all the given options to register a
// storage account. Options are applied in the order that they're specified
// and conflicting options are overwritten.
func MergeAccountRegistrationOptions(opts ...*AccountRegistrationOptions) AccountRegistrationOptions {
	merged := AccountRegistrationOptions{}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if opt.VaultURI != nil {
			merged.VaultURI = opt.VaultURI
		}

		if opt.AccountName != nil {
			merged.AccountName = opt.AccountName
		}

		if opt.AccountResourceID != nil {
			merged.AccountResourceID = opt.AccountResourceID
		}

		if opt.ActiveKeyName != nil {
			merged.ActiveKeyName = opt.ActiveKeyName
		}

		if opt.AutoRegenerate != nil {
			merged.AutoRegenerate = opt.AutoRegenerate
		}

		if opt.RegenerationPeriod != nil {
			merged.RegenerationPeriod = opt.RegenerationPeriod
		}

		if opt.ServicePrincipal != nil {
			merged.ServicePrincipal = opt.ServicePrincipal
		}

		if opt.RoleName != nil {
			merged.RoleName = opt.RoleName
		}
	}

	return merged
}

// SasDefinitionOptions are options to create a SAS definition for a managed
// account.
type SasDefinitionOptions struct {
	// Name is the name of the SAS definition within the vault. Required.
	Name *string
	// TemplateURI is a signed SAS URI whose parameters the vault copies into
	// every token it mints. Required.
	TemplateURI *string
	// SasType is the kind of token the definition produces. Defaults to
	// SasTypeAccount.
	SasType *SasType
	// ValidityPeriod is the lifetime of minted tokens as an ISO-8601
	// duration. Defaults to "PT2H".
	ValidityPeriod *string
	// Enabled determines whether the vault serves tokens for the definition.
	// Defaults to true.
	Enabled *bool
}

// NewSasDefinitionOptions returns new uninitialized options to create a SAS
// definition.
func NewSasDefinitionOptions() *SasDefinitionOptions {
	return &SasDefinitionOptions{}
}

// SetName sets the name of the SAS definition within the vault.
func (o *SasDefinitionOptions) SetName(name string) *SasDefinitionOptions {
	o.Name = &name
	return o
}

// SetTemplateURI sets the signed SAS URI to use as the token template.
func (o *SasDefinitionOptions) SetTemplateURI(uri string) *SasDefinitionOptions {
	o.TemplateURI = &uri
	return o
}

// SetSasType sets the kind of token the definition produces.
func (o *SasDefinitionOptions) SetSasType(t SasType) *SasDefinitionOptions {
	o.SasType = &t
	return o
}

// SetValidityPeriod sets the lifetime of minted tokens as an ISO-8601
// duration.
func (o *SasDefinitionOptions) SetValidityPeriod(period string) *SasDefinitionOptions {
	o.ValidityPeriod = &period
	return o
}

// SetEnabled sets whether the vault serves tokens for the definition.
func (o *SasDefinitionOptions) SetEnabled(enabled bool) *SasDefinitionOptions {
	o.Enabled = &enabled
	return o
}

// Validate checks that all the required parameters are given and assigns
// defaults to all unspecified options.
func (o *SasDefinitionOptions) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(o.Name == nil || *o.Name == "", "must provide a definition name")
	catcher.NewWhen(o.TemplateURI == nil || *o.TemplateURI == "", "must provide a template URI")
	if o.SasType != nil {
		catcher.Add(o.SasType.Validate())
	}

	if catcher.HasErrors() {
		return catcher.Resolve()
	}

	if o.SasType == nil {
		t := SasTypeAccount
		o.SasType = &t
	}
	if o.ValidityPeriod == nil {
		o.ValidityPeriod = utility.ToStringPtr("PT2H")
	}
	if o.Enabled == nil {
		o.Enabled = utility.TruePtr()
	}

	return nil
}

// MergeSasDefinitionOptions merges all the given options to create a SAS
// definition. Options are applied in the order that they're specified and
// conflicting options are overwritten.
func MergeSasDefinitionOptions(opts ...*SasDefinitionOptions) SasDefinitionOptions {
	merged := SasDefinitionOptions{}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if opt.Name != nil {
			merged.Name = opt.Name
		}

		if opt.TemplateURI != nil {
			merged.TemplateURI = opt.TemplateURI
		}

		if opt.SasType != nil {
			merged.SasType = opt.SasType
		}

		if opt.ValidityPeriod != nil {
			merged.ValidityPeriod = opt.ValidityPeriod
		}

		if opt.Enabled != nil {
			merged.Enabled = opt.Enabled
		}
	}

	return merged
}

// BasicValet manages the delegation of storage account keys to a key vault
// using clients for the authorization and vault APIs.
type BasicValet struct {
	managedStorage ManagedStorageClient
	authorization  AuthorizationClient
}

// NewBasicValet initializes a new valet from the given clients.
func NewBasicValet(managedStorage ManagedStorageClient, authorization AuthorizationClient) (*BasicValet, error) {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(managedStorage == nil, "must specify a managed storage client")
	catcher.NewWhen(authorization == nil, "must specify an authorization client")
	if catcher.HasErrors() {
		return nil, errors.Wrap(catcher.Resolve(), "invalid clients")
	}

	return &BasicValet{
		managedStorage: managedStorage,
		authorization:  authorization,
	}, nil
}

// RegisterAccount grants the vault's service principal the key-operator role
// on the storage account and registers the account with the vault for
// managed key rotation.
func (v *BasicValet) RegisterAccount(ctx context.Context, opts ...*AccountRegistrationOptions) (ManagedAccount, error) {
	merged := MergeAccountRegistrationOptions(opts...)
	if err := merged.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	if err := v.GrantKeyOperator(ctx, *merged.AccountResourceID, *merged.ServicePrincipal, *merged.RoleName); err != nil {
		return nil, errors.Wrap(err, "granting the vault access to the account keys")
	}

	attachment := NewStorageAccountAttachment().
		SetResourceID(*merged.AccountResourceID).
		SetActiveKeyName(*merged.ActiveKeyName).
		SetAutoRegenerateKey(*merged.AutoRegenerate).
		SetRegenerationPeriod(*merged.RegenerationPeriod)

	if _, err := v.managedStorage.SetStorageAccount(ctx, *merged.VaultURI, *merged.AccountName, *attachment); err != nil {
		return nil, errors.Wrap(err, "registering the account with the vault")
	}

	res := NewManagedAccountResources().
		SetVaultURI(*merged.VaultURI).
		SetAccountName(*merged.AccountName).
		SetResourceID(*merged.AccountResourceID)

	return NewBasicManagedAccount(NewBasicManagedAccountOptions().
		SetClient(v.managedStorage).
		SetResources(*res).
		SetStatus(AccountRegistered))
}

// GrantKeyOperator assigns the named role at the scope to the vault's service
// principal. An assignment that already exists counts as granted.
func (v *BasicValet) GrantKeyOperator(ctx context.Context, scope, principal, roleName string) error {
	roleDef, err := v.authorization.FindRoleDefinition(ctx, scope, roleName)
	if err != nil {
		return errors.Wrapf(err, "finding role definition '%s'", roleName)
	}

	params := armauthorization.RoleAssignmentCreateParameters{
		Properties: &armauthorization.RoleAssignmentProperties{
			RoleDefinitionID: roleDef.ID,
			PrincipalID:      &principal,
			PrincipalType:    to.Ptr(armauthorization.PrincipalTypeServicePrincipal),
		},
	}

	if _, err := v.authorization.CreateRoleAssignment(ctx, scope, uuid.New().String(), params); err != nil {
		if IsRoleAssignmentExistsError(err) {
			grip.Info(message.Fields{
				"message":   "role already assigned to the vault's service principal",
				"role":      roleName,
				"principal": principal,
				"scope":     scope,
			})
			return nil
		}
		return errors.Wrap(err, "creating role assignment")
	}

	return nil
}

// GetAccount returns a handle for a storage account that is already
// registered with the vault.
func (v *BasicValet) GetAccount(ctx context.Context, vaultURI, accountName string) (ManagedAccount, error) {
	bundle, err := v.managedStorage.GetStorageAccount(ctx, vaultURI, accountName)
	if err != nil {
		return nil, errors.Wrap(err, "getting storage account registration")
	}

	res := NewManagedAccountResources().
		SetVaultURI(vaultURI).
		SetAccountName(accountName).
		SetResourceID(utility.FromStringPtr(bundle.ResourceID))

	return NewBasicManagedAccount(NewBasicManagedAccountOptions().
		SetClient(v.managedStorage).
		SetResources(*res).
		SetStatus(AccountRegistered))
}

// ListAccounts lists the vault's records of all registered storage accounts.
func (v *BasicValet) ListAccounts(ctx context.Context, vaultURI string) ([]StorageBundle, error) {
	bundles, err := v.managedStorage.ListStorageAccounts(ctx, vaultURI)
	if err != nil {
		return nil, errors.Wrap(err, "listing storage account registrations")
	}

	return bundles, nil
}
