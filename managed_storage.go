package keyvalet

import (
	"context"
	"net/url"
	"strings"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// ManagedStorageClient provides a common interface to interact with the key
// vault managed storage account data plane, which holds registered storage
// accounts, rotates their keys, and serves SAS definitions. Implementations
// must handle retrying and backoff.
type ManagedStorageClient interface {
	// SetStorageAccount registers a storage account with the vault for managed
	// key rotation, or replaces an existing registration.
	SetStorageAccount(ctx context.Context, vaultURI, accountName string, attachment StorageAccountAttachment) (*StorageBundle, error)
	// UpdateStorageAccount updates the registration of a storage account, such
	// as its active key name or regeneration period.
	UpdateStorageAccount(ctx context.Context, vaultURI, accountName string, patch StorageAccountPatch) (*StorageBundle, error)
	// GetStorageAccount gets the registration of a storage account.
	GetStorageAccount(ctx context.Context, vaultURI, accountName string) (*StorageBundle, error)
	// ListStorageAccounts lists all storage accounts registered with the
	// vault.
	ListStorageAccounts(ctx context.Context, vaultURI string) ([]StorageBundle, error)
	// DeleteStorageAccount removes the registration of a storage account from
	// the vault. The storage account itself is unaffected.
	DeleteStorageAccount(ctx context.Context, vaultURI, accountName string) (*StorageBundle, error)
	// RegenerateStorageKey asks the vault to regenerate the named account key
	// and take over the new value.
	RegenerateStorageKey(ctx context.Context, vaultURI, accountName, keyName string) (*StorageBundle, error)
	// SetSasDefinition creates or updates a SAS definition for a registered
	// storage account. The vault surfaces the resulting tokens through the
	// managed secret named in the returned bundle.
	SetSasDefinition(ctx context.Context, vaultURI, accountName, sasName string, props SasDefinitionProperties) (*SasDefinitionBundle, error)
	// GetSasDefinition gets a SAS definition for a registered storage account.
	GetSasDefinition(ctx context.Context, vaultURI, accountName, sasName string) (*SasDefinitionBundle, error)
	// ListSasDefinitions lists the SAS definitions for a registered storage
	// account.
	ListSasDefinitions(ctx context.Context, vaultURI, accountName string) ([]SasDefinitionBundle, error)
	// Close closes the client and cleans up its resources. Implementations
	// should ensure that this is idempotent.
	Close(ctx context.Context) error
}

// StorageAccountAttachment are the properties to register a storage account
// with a vault for managed key rotation.
type StorageAccountAttachment struct {
	// ResourceID is the full resource ID of the storage account whose keys the
	// vault should manage. Required.
	ResourceID *string `json:"resourceId,omitempty"`
	// ActiveKeyName is the account key the vault hands out while it rotates
	// the inactive one. Required.
	ActiveKeyName *string `json:"activeKeyName,omitempty"`
	// AutoRegenerateKey determines whether the vault rotates the keys on a
	// schedule.
	AutoRegenerateKey *bool `json:"autoRegenerateKey,omitempty"`
	// RegenerationPeriod is the rotation interval as an ISO-8601 duration,
	// such as "P30D". Required when AutoRegenerateKey is set.
	RegenerationPeriod *string `json:"regenerationPeriod,omitempty"`
	// Attributes are the management attributes of the registration.
	Attributes *StorageAccountAttributes `json:"attributes,omitempty"`
}

// NewStorageAccountAttachment returns a new uninitialized attachment.
func NewStorageAccountAttachment() *StorageAccountAttachment {
	return &StorageAccountAttachment{}
}

// SetResourceID sets the resource ID of the storage account to manage.
func (a *StorageAccountAttachment) SetResourceID(id string) *StorageAccountAttachment {
	a.ResourceID = &id
	return a
}

// SetActiveKeyName sets the account key the vault hands out.
func (a *StorageAccountAttachment) SetActiveKeyName(name string) *StorageAccountAttachment {
	a.ActiveKeyName = &name
	return a
}

// SetAutoRegenerateKey sets whether the vault rotates the keys on a schedule.
func (a *StorageAccountAttachment) SetAutoRegenerateKey(auto bool) *StorageAccountAttachment {
	a.AutoRegenerateKey = &auto
	return a
}

// SetRegenerationPeriod sets the rotation interval as an ISO-8601 duration.
func (a *StorageAccountAttachment) SetRegenerationPeriod(period string) *StorageAccountAttachment {
	a.RegenerationPeriod = &period
	return a
}

// SetAttributes sets the management attributes of the registration.
func (a *StorageAccountAttachment) SetAttributes(attrs StorageAccountAttributes) *StorageAccountAttachment {
	a.Attributes = &attrs
	return a
}

// Validate checks that all the required parameters are given and the values
// are valid.
func (a *StorageAccountAttachment) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(a.ResourceID == nil || *a.ResourceID == "", "must provide the storage account resource ID")
	catcher.NewWhen(a.ActiveKeyName == nil || *a.ActiveKeyName == "", "must provide the active key name")
	catcher.NewWhen(a.AutoRegenerateKey != nil && *a.AutoRegenerateKey && a.RegenerationPeriod == nil, "must provide a regeneration period when auto-regeneration is enabled")
	return catcher.Resolve()
}

// StorageAccountPatch are updates to apply to the registration of a storage
// account. Only the given fields change.
type StorageAccountPatch struct {
	// ActiveKeyName is the account key the vault hands out.
	ActiveKeyName *string `json:"activeKeyName,omitempty"`
	// AutoRegenerateKey determines whether the vault rotates the keys on a
	// schedule.
	AutoRegenerateKey *bool `json:"autoRegenerateKey,omitempty"`
	// RegenerationPeriod is the rotation interval as an ISO-8601 duration.
	RegenerationPeriod *string `json:"regenerationPeriod,omitempty"`
	// Attributes are the management attributes of the registration.
	Attributes *StorageAccountAttributes `json:"attributes,omitempty"`
}

// NewStorageAccountPatch returns a new uninitialized patch.
func NewStorageAccountPatch() *StorageAccountPatch {
	return &StorageAccountPatch{}
}

// SetActiveKeyName sets the account key the vault hands out.
func (p *StorageAccountPatch) SetActiveKeyName(name string) *StorageAccountPatch {
	p.ActiveKeyName = &name
	return p
}

// SetAutoRegenerateKey sets whether the vault rotates the keys on a schedule.
func (p *StorageAccountPatch) SetAutoRegenerateKey(auto bool) *StorageAccountPatch {
	p.AutoRegenerateKey = &auto
	return p
}

// SetRegenerationPeriod sets the rotation interval as an ISO-8601 duration.
func (p *StorageAccountPatch) SetRegenerationPeriod(period string) *StorageAccountPatch {
	p.RegenerationPeriod = &period
	return p
}

// SetAttributes sets the management attributes of the registration.
func (p *StorageAccountPatch) SetAttributes(attrs StorageAccountAttributes) *StorageAccountPatch {
	p.Attributes = &attrs
	return p
}

// Validate checks that the patch changes at least one field.
func (p *StorageAccountPatch) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(p.ActiveKeyName == nil && p.AutoRegenerateKey == nil && p.RegenerationPeriod == nil && p.Attributes == nil, "must update at least one field")
	catcher.NewWhen(p.ActiveKeyName != nil && *p.ActiveKeyName == "", "cannot set an empty active key name")
	return catcher.Resolve()
}

// StorageAccountAttributes are the management attributes of a storage account
// registration or a SAS definition.
type StorageAccountAttributes struct {
	// Enabled determines whether the vault acts on the resource.
	Enabled *bool `json:"enabled,omitempty"`
	// Created is when the resource was created, in seconds since the epoch.
	// Read-only.
	Created *int64 `json:"created,omitempty"`
	// Updated is when the resource last changed, in seconds since the epoch.
	// Read-only.
	Updated *int64 `json:"updated,omitempty"`
}

// StorageBundle is the vault's record of a registered storage account.
type StorageBundle struct {
	// ID is the vault-relative identifier of the registration.
	ID *string `json:"id,omitempty"`
	// ResourceID is the full resource ID of the managed storage account.
	ResourceID *string `json:"resourceId,omitempty"`
	// ActiveKeyName is the account key the vault currently hands out.
	ActiveKeyName *string `json:"activeKeyName,omitempty"`
	// AutoRegenerateKey determines whether the vault rotates the keys on a
	// schedule.
	AutoRegenerateKey *bool `json:"autoRegenerateKey,omitempty"`
	// RegenerationPeriod is the rotation interval as an ISO-8601 duration.
	RegenerationPeriod *string `json:"regenerationPeriod,omitempty"`
	// Attributes are the management attributes of the registration.
	Attributes *StorageAccountAttributes `json:"attributes,omitempty"`
}

// AccountName extracts the storage account name from the bundle's vault
// identifier.
func (b *StorageBundle) AccountName() string {
	if b.ID == nil {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(*b.ID, "/"), "/")
	return parts[len(parts)-1]
}

// SasType represents the kind of token a SAS definition produces.
type SasType string

const (
	// SasTypeAccount tokens grant access to resources across an entire storage
	// account.
	SasTypeAccount SasType = "account"
	// SasTypeService tokens grant access to resources within a single storage
	// service.
	SasTypeService SasType = "service"
)

// Validate checks that the SAS type is one of the recognized types.
func (t SasType) Validate() error {
	switch t {
	case SasTypeAccount, SasTypeService:
		return nil
	default:
		return errors.Errorf("unrecognized SAS type '%s'", t)
	}
}

// SasDefinitionProperties are the properties to create or update a SAS
// definition for a registered storage account.
type SasDefinitionProperties struct {
	// TemplateURI is a signed SAS URI whose parameters the vault copies into
	// every token it mints, substituting a fresh signature. Required.
	TemplateURI *string `json:"templateUri,omitempty"`
	// SasType is the kind of token the definition produces. Required.
	SasType *SasType `json:"sasType,omitempty"`
	// ValidityPeriod is the lifetime of minted tokens as an ISO-8601 duration,
	// such as "PT2H". Required.
	ValidityPeriod *string `json:"validityPeriod,omitempty"`
	// Attributes are the management attributes of the definition.
	Attributes *StorageAccountAttributes `json:"attributes,omitempty"`
}

// NewSasDefinitionProperties returns new uninitialized SAS definition
// properties.
func NewSasDefinitionProperties() *SasDefinitionProperties {
	return &SasDefinitionProperties{}
}

// SetTemplateURI sets the signed SAS URI to use as the token template.
func (p *SasDefinitionProperties) SetTemplateURI(uri string) *SasDefinitionProperties {
	p.TemplateURI = &uri
	return p
}

// SetSasType sets the kind of token the definition produces.
func (p *SasDefinitionProperties) SetSasType(t SasType) *SasDefinitionProperties {
	p.SasType = &t
	return p
}

// SetValidityPeriod sets the lifetime of minted tokens as an ISO-8601
// duration.
func (p *SasDefinitionProperties) SetValidityPeriod(period string) *SasDefinitionProperties {
	p.ValidityPeriod = &period
	return p
}

// SetAttributes sets the management attributes of the definition.
func (p *SasDefinitionProperties) SetAttributes(attrs StorageAccountAttributes) *SasDefinitionProperties {
	p.Attributes = &attrs
	return p
}

// Validate checks that all the required parameters are given and the values
// are valid.
func (p *SasDefinitionProperties) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(p.TemplateURI == nil || *p.TemplateURI == "", "must provide a template URI")
	catcher.NewWhen(p.ValidityPeriod == nil || *p.ValidityPeriod == "", "must provide a validity period")
	if p.SasType == nil {
		catcher.New("must provide a SAS type")
	} else {
		catcher.Add(p.SasType.Validate())
	}
	return catcher.Resolve()
}

// SasDefinitionBundle is the vault's record of a SAS definition.
type SasDefinitionBundle struct {
	// ID is the vault-relative identifier of the definition.
	ID *string `json:"id,omitempty"`
	// SecretID is the identifier of the managed secret that serves the
	// definition's tokens.
	SecretID *string `json:"secretId,omitempty"`
	// TemplateURI is the signed SAS URI the vault mints tokens from.
	TemplateURI *string `json:"templateUri,omitempty"`
	// SasType is the kind of token the definition produces.
	SasType *SasType `json:"sasType,omitempty"`
	// ValidityPeriod is the lifetime of minted tokens as an ISO-8601 duration.
	ValidityPeriod *string `json:"validityPeriod,omitempty"`
	// Attributes are the management attributes of the definition.
	Attributes *StorageAccountAttributes `json:"attributes,omitempty"`
}

// DefinitionName extracts the SAS definition name from the bundle's vault
// identifier.
func (b *SasDefinitionBundle) DefinitionName() string {
	if b.ID == nil {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(*b.ID, "/"), "/")
	return parts[len(parts)-1]
}

// SecretName extracts the name of the managed secret that serves the
// definition's tokens.
func (b *SasDefinitionBundle) SecretName() (string, error) {
	if b.SecretID == nil {
		return "", errors.New("bundle has no secret ID")
	}

	u, err := url.Parse(*b.SecretID)
	if err != nil {
		return "", errors.Wrap(err, "parsing secret ID")
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "secrets" || parts[1] == "" {
		return "", errors.Errorf("secret ID '%s' does not name a secret", *b.SecretID)
	}

	return parts[1], nil
}
