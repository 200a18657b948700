package keyvalet

import (
	"context"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// ManagedAccount provides an abstraction of a storage account whose keys are
// managed by a key vault.
type ManagedAccount interface {
	// Resources returns the vault and account identifiers the handle is bound
	// to.
	Resources() ManagedAccountResources
	// Status returns the registration status of the account.
	Status() ManagedAccountStatus
	// Info fetches the vault's current record of the account.
	Info(ctx context.Context) (*StorageBundle, error)
	// SetActiveKey makes the vault hand out the named account key.
	SetActiveKey(ctx context.Context, keyName string) error
	// Rotate makes the vault regenerate the named account key and take over
	// the new value.
	Rotate(ctx context.Context, keyName string) error
	// CreateSasDefinition creates a SAS definition for the account, making its
	// tokens available through a vault-managed secret.
	CreateSasDefinition(ctx context.Context, opts ...*SasDefinitionOptions) (*SasDefinitionBundle, error)
	// ListSasDefinitions lists the account's SAS definitions.
	ListSasDefinitions(ctx context.Context) ([]SasDefinitionBundle, error)
	// Deregister removes the account's registration from the vault. The
	// storage account itself is unaffected, but the vault stops managing its
	// keys.
	Deregister(ctx context.Context) error
}

// BasicManagedAccount represents a storage account whose keys are managed by
// a key vault.
type BasicManagedAccount struct {
	client    ManagedStorageClient
	resources ManagedAccountResources
	status    ManagedAccountStatus
}

// BasicManagedAccountOptions are options to create a basic managed account.
type BasicManagedAccountOptions struct {
	Client    ManagedStorageClient
	Resources *ManagedAccountResources
	Status    *ManagedAccountStatus
}

// NewBasicManagedAccountOptions returns new uninitialized options to create a
// basic managed account.
func NewBasicManagedAccountOptions() *BasicManagedAccountOptions {
	return &BasicManagedAccountOptions{}
}

// SetClient sets the client the account uses to communicate with the vault.
func (o *BasicManagedAccountOptions) SetClient(c ManagedStorageClient) *BasicManagedAccountOptions {
	o.Client = c
	return o
}

// SetResources sets the vault and account identifiers the handle is bound to.
func (o *BasicManagedAccountOptions) SetResources(res ManagedAccountResources) *BasicManagedAccountOptions {
	o.Resources = &res
	return o
}

// SetStatus sets the current registration status of the account.
func (o *BasicManagedAccountOptions) SetStatus(s ManagedAccountStatus) *BasicManagedAccountOptions {
	o.Status = &s
	return o
}

// Validate checks that the required parameters to initialize a managed
// account are given.
func (o *BasicManagedAccountOptions) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(o.Client == nil, "must specify a client")
	if o.Resources != nil {
		catcher.Add(o.Resources.Validate())
	} else {
		catcher.New("must specify the underlying resources the account uses")
	}
	if o.Status != nil {
		catcher.Add(o.Status.Validate())
	} else {
		catcher.New("must specify a status")
	}
	return catcher.Resolve()
}

// MergeManagedAccountOptions merges all the given options describing a
// managed account. Options are applied in the order that they're specified
// and conflicting options are overwritten.
func MergeManagedAccountOptions(opts ...*BasicManagedAccountOptions) BasicManagedAccountOptions {
	merged := BasicManagedAccountOptions{}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if opt.Client != nil {
			merged.Client = opt.Client
		}

		if opt.Resources != nil {
			merged.Resources = opt.Resources
		}

		if opt.Status != nil {
			merged.Status = opt.Status
		}
	}

	return merged
}

// NewBasicManagedAccount initializes a new storage account handle whose keys
// are managed by a key vault.
func NewBasicManagedAccount(opts ...*BasicManagedAccountOptions) (*BasicManagedAccount, error) {
	merged := MergeManagedAccountOptions(opts...)
	if err := merged.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}
	return &BasicManagedAccount{
		client:    merged.Client,
		resources: *merged.Resources,
		status:    *merged.Status,
	}, nil
}

// Resources returns the vault and account identifiers the handle is bound to.
func (a *BasicManagedAccount) Resources() ManagedAccountResources {
	return a.resources
}

// Status returns the registration status of the account.
func (a *BasicManagedAccount) Status() ManagedAccountStatus {
	return a.status
}

// Info fetches the vault's current record of the account.
func (a *BasicManagedAccount) Info(ctx context.Context) (*StorageBundle, error) {
	if err := a.checkRegistered(); err != nil {
		return nil, err
	}

	bundle, err := a.client.GetStorageAccount(ctx, *a.resources.VaultURI, *a.resources.AccountName)
	if err != nil {
		return nil, errors.Wrap(err, "getting storage account registration")
	}

	return bundle, nil
}

// SetActiveKey makes the vault hand out the named account key.
func (a *BasicManagedAccount) SetActiveKey(ctx context.Context, keyName string) error {
	if err := a.checkRegistered(); err != nil {
		return err
	}

	patch := NewStorageAccountPatch().SetActiveKeyName(keyName)
	if _, err := a.client.UpdateStorageAccount(ctx, *a.resources.VaultURI, *a.resources.AccountName, *patch); err != nil {
		return errors.Wrapf(err, "setting active key to '%s'", keyName)
	}

	return nil
}

// Rotate makes the vault regenerate the named account key and take over the
// new value.
func (a *BasicManagedAccount) Rotate(ctx context.Context, keyName string) error {
	if err := a.checkRegistered(); err != nil {
		return err
	}

	if _, err := a.client.RegenerateStorageKey(ctx, *a.resources.VaultURI, *a.resources.AccountName, keyName); err != nil {
		return errors.Wrapf(err, "regenerating key '%s'", keyName)
	}

	return nil
}

// CreateSasDefinition creates a SAS definition for the account, making its
// tokens available through a vault-managed secret.
func (a *BasicManagedAccount) CreateSasDefinition(ctx context.Context, opts ...*SasDefinitionOptions) (*SasDefinitionBundle, error) {
	if err := a.checkRegistered(); err != nil {
		return nil, err
	}

	merged := MergeSasDefinitionOptions(opts...)
	if err := merged.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	props := NewSasDefinitionProperties().
		SetTemplateURI(*merged.TemplateURI).
		SetSasType(*merged.SasType).
		SetValidityPeriod(*merged.ValidityPeriod).
		SetAttributes(StorageAccountAttributes{Enabled: merged.Enabled})

	bundle, err := a.client.SetSasDefinition(ctx, *a.resources.VaultURI, *a.resources.AccountName, *merged.Name, *props)
	if err != nil {
		return nil, errors.Wrapf(err, "creating SAS definition '%s'", *merged.Name)
	}

	return bundle, nil
}

// ListSasDefinitions lists the account's SAS definitions.
func (a *BasicManagedAccount) ListSasDefinitions(ctx context.Context) ([]SasDefinitionBundle, error) {
	if err := a.checkRegistered(); err != nil {
		return nil, err
	}

	defs, err := a.client.ListSasDefinitions(ctx, *a.resources.VaultURI, *a.resources.AccountName)
	if err != nil {
		return nil, errors.Wrap(err, "listing SAS definitions")
	}

	return defs, nil
}

// Deregister removes the account's registration from the vault.
func (a *BasicManagedAccount) Deregister(ctx context.Context) error {
	if a.status == AccountDeregistered {
		return nil
	}

	if _, err := a.client.DeleteStorageAccount(ctx, *a.resources.VaultURI, *a.resources.AccountName); err != nil {
		return errors.Wrap(err, "deleting storage account registration")
	}

	a.status = AccountDeregistered

	return nil
}

// checkRegistered verifies that the account is still registered with the
// vault, so key operations can go through it.
func (a *BasicManagedAccount) checkRegistered() error {
	if a.status != AccountRegistered {
		return errors.Errorf("account is %s, not %s", a.status, AccountRegistered)
	}
	return nil
}

// ManagedAccountResources are the identifiers of the vault registration that
// a managed account uses.
type ManagedAccountResources struct {
	// VaultURI is the data-plane URI of the vault that manages the account's
	// keys.
	VaultURI *string
	// AccountName is the name of the storage account.
	AccountName *string
	// ResourceID is the full resource ID of the storage account.
	ResourceID *string
}

// NewManagedAccountResources returns a new uninitialized set of identifiers
// used by a managed account.
func NewManagedAccountResources() *ManagedAccountResources {
	return &ManagedAccountResources{}
}

// SetVaultURI sets the data-plane URI of the vault that manages the account's
// keys.
func (r *ManagedAccountResources) SetVaultURI(uri string) *ManagedAccountResources {
	r.VaultURI = &uri
	return r
}

// SetAccountName sets the name of the storage account.
func (r *ManagedAccountResources) SetAccountName(name string) *ManagedAccountResources {
	r.AccountName = &name
	return r
}

// SetResourceID sets the full resource ID of the storage account.
func (r *ManagedAccountResources) SetResourceID(id string) *ManagedAccountResources {
	r.ResourceID = &id
	return r
}

// Validate checks that the resources name a vault registration.
func (r *ManagedAccountResources) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(r.VaultURI == nil || *r.VaultURI == "", "must specify the vault URI")
	catcher.NewWhen(r.AccountName == nil || *r.AccountName == "", "must specify the storage account name")
	return catcher.Resolve()
}

// ManagedAccountStatus represents the different statuses possible for a
// managed account.
type ManagedAccountStatus string

const (
	// AccountRegistered indicates that the vault is managing the account's
	// keys.
	AccountRegistered ManagedAccountStatus = "registered"
	// AccountDeregistered indicates that the account's registration has been
	// removed from the vault.
	AccountDeregistered ManagedAccountStatus = "deregistered"
)

// Validate checks that the managed account status is one of the recognized
// statuses.
func (s ManagedAccountStatus) Validate() error {
	switch s {
	case AccountRegistered, AccountDeregistered:
		return nil
	default:
		return errors.Errorf("unrecognized status '%s'", s)
	}
}
