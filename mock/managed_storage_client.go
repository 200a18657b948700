package mock

import (
	"context"
	"time"

	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/pkg/errors"
)

// ManagedStorageClient provides a mock implementation of a
// keyvalet.ManagedStorageClient. This makes it possible to introspect on
// inputs to the client and control the client's output. It provides some
// default implementations where possible. By default, it will issue the API
// calls to the fake GlobalKeyVaultService.
type ManagedStorageClient struct {
	SetStorageAccountInput  *keyvalet.StorageAccountAttachment
	SetStorageAccountOutput *keyvalet.StorageBundle
	SetStorageAccountError  error

	UpdateStorageAccountInput  *keyvalet.StorageAccountPatch
	UpdateStorageAccountOutput *keyvalet.StorageBundle
	UpdateStorageAccountError  error

	GetStorageAccountInput  *string
	GetStorageAccountOutput *keyvalet.StorageBundle
	GetStorageAccountError  error

	ListStorageAccountsInput  *string
	ListStorageAccountsOutput []keyvalet.StorageBundle
	ListStorageAccountsError  error

	DeleteStorageAccountInput  *string
	DeleteStorageAccountOutput *keyvalet.StorageBundle
	DeleteStorageAccountError  error

	RegenerateStorageKeyInput  *string
	RegenerateStorageKeyOutput *keyvalet.StorageBundle
	RegenerateStorageKeyError  error

	SetSasDefinitionInput  *keyvalet.SasDefinitionProperties
	SetSasDefinitionName   *string
	SetSasDefinitionOutput *keyvalet.SasDefinitionBundle
	SetSasDefinitionError  error

	GetSasDefinitionInput  *string
	GetSasDefinitionOutput *keyvalet.SasDefinitionBundle
	GetSasDefinitionError  error

	ListSasDefinitionsInput  *string
	ListSasDefinitionsOutput []keyvalet.SasDefinitionBundle
	ListSasDefinitionsError  error

	CloseError error
}

// SetStorageAccount saves the input and registers a mock storage account with
// the vault. The mock output can be customized. By default, it will store a
// registration in the global key vault service based on the attachment.
func (c *ManagedStorageClient) SetStorageAccount(ctx context.Context, vaultURI, accountName string, attachment keyvalet.StorageAccountAttachment) (*keyvalet.StorageBundle, error) {
	c.SetStorageAccountInput = &attachment

	if c.SetStorageAccountOutput != nil || c.SetStorageAccountError != nil {
		return c.SetStorageAccountOutput, c.SetStorageAccountError
	}

	if err := attachment.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid attachment")
	}

	registrations := GlobalKeyVaultService.Registrations[vaultURI]
	if registrations == nil {
		registrations = VaultRegistrations{}
		GlobalKeyVaultService.Registrations[vaultURI] = registrations
	}

	now := time.Now()
	reg := StoredRegistration{
		AccountName:        accountName,
		ResourceID:         utility.FromStringPtr(attachment.ResourceID),
		ActiveKeyName:      utility.FromStringPtr(attachment.ActiveKeyName),
		AutoRegenerateKey:  utility.FromBoolPtr(attachment.AutoRegenerateKey),
		RegenerationPeriod: utility.FromStringPtr(attachment.RegenerationPeriod),
		Enabled:            true,
		Created:            now,
		Updated:            now,
	}
	if existing, ok := registrations[accountName]; ok {
		reg.Created = existing.Created
	}
	registrations[accountName] = reg

	bundle := reg.export(vaultURI)
	return &bundle, nil
}

// UpdateStorageAccount saves the input and updates a mock registration. The
// mock output can be customized. By default, it will patch the cached
// registration if it exists in the global key vault service.
func (c *ManagedStorageClient) UpdateStorageAccount(ctx context.Context, vaultURI, accountName string, patch keyvalet.StorageAccountPatch) (*keyvalet.StorageBundle, error) {
	c.UpdateStorageAccountInput = &patch

	if c.UpdateStorageAccountOutput != nil || c.UpdateStorageAccountError != nil {
		return c.UpdateStorageAccountOutput, c.UpdateStorageAccountError
	}

	if err := patch.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid patch")
	}

	reg, ok := GlobalKeyVaultService.Registrations[vaultURI][accountName]
	if !ok {
		return nil, keyvalet.NewAccountNotRegisteredError(accountName)
	}

	if patch.ActiveKeyName != nil {
		reg.ActiveKeyName = *patch.ActiveKeyName
	}
	if patch.AutoRegenerateKey != nil {
		reg.AutoRegenerateKey = *patch.AutoRegenerateKey
	}
	if patch.RegenerationPeriod != nil {
		reg.RegenerationPeriod = *patch.RegenerationPeriod
	}
	if patch.Attributes != nil && patch.Attributes.Enabled != nil {
		reg.Enabled = *patch.Attributes.Enabled
	}
	reg.Updated = time.Now()
	GlobalKeyVaultService.Registrations[vaultURI][accountName] = reg

	bundle := reg.export(vaultURI)
	return &bundle, nil
}

// GetStorageAccount saves the input and returns a mock registration. The mock
// output can be customized. By default, it will return the cached registration
// if it exists in the global key vault service.
func (c *ManagedStorageClient) GetStorageAccount(ctx context.Context, vaultURI, accountName string) (*keyvalet.StorageBundle, error) {
	c.GetStorageAccountInput = utility.ToStringPtr(accountName)

	if c.GetStorageAccountOutput != nil || c.GetStorageAccountError != nil {
		return c.GetStorageAccountOutput, c.GetStorageAccountError
	}

	reg, ok := GlobalKeyVaultService.Registrations[vaultURI][accountName]
	if !ok {
		return nil, keyvalet.NewAccountNotRegisteredError(accountName)
	}

	bundle := reg.export(vaultURI)
	return &bundle, nil
}

// ListStorageAccounts saves the input and lists the vault's mock
// registrations. The mock output can be customized. By default, it will list
// all cached registrations for the vault in the global key vault service.
func (c *ManagedStorageClient) ListStorageAccounts(ctx context.Context, vaultURI string) ([]keyvalet.StorageBundle, error) {
	c.ListStorageAccountsInput = utility.ToStringPtr(vaultURI)

	if c.ListStorageAccountsOutput != nil || c.ListStorageAccountsError != nil {
		return c.ListStorageAccountsOutput, c.ListStorageAccountsError
	}

	var bundles []keyvalet.StorageBundle
	for _, reg := range GlobalKeyVaultService.Registrations[vaultURI] {
		bundles = append(bundles, reg.export(vaultURI))
	}

	return bundles, nil
}

// DeleteStorageAccount saves the input and removes a mock registration. The
// mock output can be customized. By default, it will remove the cached
// registration and its SAS definitions from the global key vault service.
func (c *ManagedStorageClient) DeleteStorageAccount(ctx context.Context, vaultURI, accountName string) (*keyvalet.StorageBundle, error) {
	c.DeleteStorageAccountInput = utility.ToStringPtr(accountName)

	if c.DeleteStorageAccountOutput != nil || c.DeleteStorageAccountError != nil {
		return c.DeleteStorageAccountOutput, c.DeleteStorageAccountError
	}

	reg, ok := GlobalKeyVaultService.Registrations[vaultURI][accountName]
	if !ok {
		return nil, keyvalet.NewAccountNotRegisteredError(accountName)
	}

	delete(GlobalKeyVaultService.Registrations[vaultURI], accountName)
	delete(GlobalKeyVaultService.Sas[vaultURI], accountName)

	bundle := reg.export(vaultURI)
	return &bundle, nil
}

// RegenerateStorageKey saves the input and regenerates a mock account key
// through the vault. The mock output can be customized. By default, it will
// regenerate the key in the global storage service if the account exists
// there, and refresh the cached registration.
func (c *ManagedStorageClient) RegenerateStorageKey(ctx context.Context, vaultURI, accountName, keyName string) (*keyvalet.StorageBundle, error) {
	c.RegenerateStorageKeyInput = utility.ToStringPtr(keyName)

	if c.RegenerateStorageKeyOutput != nil || c.RegenerateStorageKeyError != nil {
		return c.RegenerateStorageKeyOutput, c.RegenerateStorageKeyError
	}

	reg, ok := GlobalKeyVaultService.Registrations[vaultURI][accountName]
	if !ok {
		return nil, keyvalet.NewAccountNotRegisteredError(accountName)
	}

	if account, ok := GlobalStorageService.Accounts[accountName]; ok {
		if _, ok := account.Keys[keyName]; !ok {
			return nil, errors.Errorf("account has no key named '%s'", keyName)
		}
		account.regenerateKey(keyName)
	}

	reg.Updated = time.Now()
	GlobalKeyVaultService.Registrations[vaultURI][accountName] = reg

	bundle := reg.export(vaultURI)
	return &bundle, nil
}

// SetSasDefinition saves the input and creates or replaces a mock SAS
// definition. The mock output can be customized. By default, it will store the
// definition in the global key vault service and mint a token into the
// definition's managed secret.
func (c *ManagedStorageClient) SetSasDefinition(ctx context.Context, vaultURI, accountName, sasName string, props keyvalet.SasDefinitionProperties) (*keyvalet.SasDefinitionBundle, error) {
	c.SetSasDefinitionInput = &props
	c.SetSasDefinitionName = utility.ToStringPtr(sasName)

	if c.SetSasDefinitionOutput != nil || c.SetSasDefinitionError != nil {
		return c.SetSasDefinitionOutput, c.SetSasDefinitionError
	}

	if err := props.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid SAS definition properties")
	}

	if _, ok := GlobalKeyVaultService.Registrations[vaultURI][accountName]; !ok {
		return nil, keyvalet.NewAccountNotRegisteredError(accountName)
	}

	definitions := GlobalKeyVaultService.Sas[vaultURI]
	if definitions == nil {
		definitions = VaultSasDefinitions{}
		GlobalKeyVaultService.Sas[vaultURI] = definitions
	}
	if definitions[accountName] == nil {
		definitions[accountName] = map[string]StoredSasDefinition{}
	}

	enabled := true
	if props.Attributes != nil && props.Attributes.Enabled != nil {
		enabled = *props.Attributes.Enabled
	}

	now := time.Now()
	def := StoredSasDefinition{
		AccountName:    accountName,
		Name:           sasName,
		TemplateURI:    utility.FromStringPtr(props.TemplateURI),
		SasType:        *props.SasType,
		ValidityPeriod: utility.FromStringPtr(props.ValidityPeriod),
		Enabled:        enabled,
		Created:        now,
		Updated:        now,
	}
	if existing, ok := definitions[accountName][sasName]; ok {
		def.Created = existing.Created
	}
	definitions[accountName][sasName] = def

	secrets := GlobalKeyVaultService.Secrets[vaultURI]
	if secrets == nil {
		secrets = VaultSecrets{}
		GlobalKeyVaultService.Secrets[vaultURI] = secrets
	}
	secrets[def.secretName()] = StoredVaultSecret{
		Name:    def.secretName(),
		Value:   mintSasToken(def.TemplateURI, def.ValidityPeriod),
		Managed: true,
		Created: now,
	}

	bundle := def.export(vaultURI)
	return &bundle, nil
}

// GetSasDefinition saves the input and returns a mock SAS definition. The mock
// output can be customized. By default, it will return the cached definition
// if it exists in the global key vault service.
func (c *ManagedStorageClient) GetSasDefinition(ctx context.Context, vaultURI, accountName, sasName string) (*keyvalet.SasDefinitionBundle, error) {
	c.GetSasDefinitionInput = utility.ToStringPtr(sasName)

	if c.GetSasDefinitionOutput != nil || c.GetSasDefinitionError != nil {
		return c.GetSasDefinitionOutput, c.GetSasDefinitionError
	}

	def, ok := GlobalKeyVaultService.Sas[vaultURI][accountName][sasName]
	if !ok {
		return nil, errors.Errorf("SAS definition '%s' not found", sasName)
	}

	bundle := def.export(vaultURI)
	return &bundle, nil
}

// ListSasDefinitions saves the input and lists an account's mock SAS
// definitions. The mock output can be customized. By default, it will list all
// cached definitions for the account in the global key vault service.
func (c *ManagedStorageClient) ListSasDefinitions(ctx context.Context, vaultURI, accountName string) ([]keyvalet.SasDefinitionBundle, error) {
	c.ListSasDefinitionsInput = utility.ToStringPtr(accountName)

	if c.ListSasDefinitionsOutput != nil || c.ListSasDefinitionsError != nil {
		return c.ListSasDefinitionsOutput, c.ListSasDefinitionsError
	}

	var bundles []keyvalet.SasDefinitionBundle
	for _, def := range GlobalKeyVaultService.Sas[vaultURI][accountName] {
		bundles = append(bundles, def.export(vaultURI))
	}

	return bundles, nil
}

// Close closes the mock client. The mock output can be customized. By default,
// it is a no-op that returns no error.
func (c *ManagedStorageClient) Close(ctx context.Context) error {
	return c.CloseError
}
