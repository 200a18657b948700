package workflow

import (
	"os"
	"strings"

	"github.com/keyvalet/keyvalet"
	"github.com/mongodb/grip"
)

// Environment variables that configure the workflow.
const (
	// EnvSubscriptionID is the Azure subscription the workflow provisions
	// resources in.
	EnvSubscriptionID = "AZURE_SUBSCRIPTION_ID"
	// EnvTenantID is the Azure Active Directory tenant that issues tokens for
	// the workflow's identity.
	EnvTenantID = "AZURE_TENANT_ID"
	// EnvClientID is the application (client) ID of the workflow's service
	// principal.
	EnvClientID = "AZURE_CLIENT_ID"
	// EnvClientSecret is the service principal's client secret. It is not
	// required when the workflow authenticates interactively.
	EnvClientSecret = "AZURE_CLIENT_SECRET"
	// EnvClientObjectID is the directory object ID of the workflow's identity.
	// Vault access policies are keyed by object ID rather than client ID, so
	// the workflow cannot derive one from the other.
	EnvClientObjectID = "AZURE_CLIENT_OBJECT_ID"
	// EnvRegion is the Azure region resources are created in.
	EnvRegion = "AZURE_REGION"
	// EnvResourceGroup is the resource group that holds the vault and the
	// storage account.
	EnvResourceGroup = "AZURE_RESOURCE_GROUP"
	// EnvVaultName optionally names an existing vault. When set, the workflow
	// only looks the vault up and fails if it does not exist; when unset, the
	// workflow creates a vault under a generated name.
	EnvVaultName = "AZURE_VAULT_NAME"
	// EnvVaultServicePrincipal optionally overrides the object ID of the Key
	// Vault service principal granted the key operator role. The well-known
	// public cloud default does not hold in sovereign clouds.
	EnvVaultServicePrincipal = "KEYVAULT_SP_OBJECT_ID"
)

// Defaults for optional configuration.
const (
	// DefaultRegion is the region used when none is configured.
	DefaultRegion = "westus"
	// DefaultResourceGroup is the resource group used when none is configured.
	DefaultResourceGroup = "azure-sample-group"
	// DefaultSasPermissions is the account SAS permission set used for SAS
	// definition templates when none is configured.
	DefaultSasPermissions = "acdlpruw"
)

// Config is the runtime configuration for a workflow run. It is populated
// once at process entry and treated as read-only afterwards.
type Config struct {
	// SubscriptionID is the Azure subscription to provision in. Required.
	SubscriptionID string
	// TenantID is the Azure Active Directory tenant ID. Required.
	TenantID string
	// ClientID is the client ID the workflow authenticates as. Required.
	ClientID string
	// ClientSecret authenticates the service principal. Required unless
	// Interactive is set.
	ClientSecret string
	// ClientObjectID is the directory object ID granted vault access.
	// Required.
	ClientObjectID string
	// Region is the Azure region for created resources. Defaults to
	// DefaultRegion.
	Region string
	// ResourceGroup holds the vault and the storage account. Defaults to
	// DefaultResourceGroup.
	ResourceGroup string
	// VaultName optionally names a preexisting vault to use. If empty, a
	// vault is created under a generated name.
	VaultName string
	// VaultServicePrincipal is the object ID of the Key Vault service
	// principal granted the key operator role. Defaults to the well-known
	// public cloud value.
	VaultServicePrincipal string
	// SasPermissions is the account SAS permission set for the SAS definition
	// template. Defaults to DefaultSasPermissions.
	SasPermissions string
	// Mode selects how the storage account is bound to the vault. Defaults to
	// ModeManagedKeys.
	Mode Mode
	// Interactive authenticates with a device code prompt instead of a client
	// secret.
	Interactive bool
	// KeepResources skips the teardown step so the run's resources can be
	// inspected afterwards.
	KeepResources bool
}

// NewConfigFromEnvironment builds a Config from the process environment. The
// result is not validated; callers should apply any flag overrides and then
// call Validate.
func NewConfigFromEnvironment() *Config {
	return &Config{
		SubscriptionID:        os.Getenv(EnvSubscriptionID),
		TenantID:              os.Getenv(EnvTenantID),
		ClientID:              os.Getenv(EnvClientID),
		ClientSecret:          os.Getenv(EnvClientSecret),
		ClientObjectID:        os.Getenv(EnvClientObjectID),
		Region:                os.Getenv(EnvRegion),
		ResourceGroup:         os.Getenv(EnvResourceGroup),
		VaultName:             os.Getenv(EnvVaultName),
		VaultServicePrincipal: os.Getenv(EnvVaultServicePrincipal),
	}
}

// Validate checks that every required setting is present and fills in
// defaults. Missing settings are reported together rather than one at a time
// so a fresh environment can be fixed in a single pass.
func (c *Config) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.ErrorfWhen(c.SubscriptionID == "", "missing environment variable '%s'", EnvSubscriptionID)
	catcher.ErrorfWhen(c.TenantID == "", "missing environment variable '%s'", EnvTenantID)
	catcher.ErrorfWhen(c.ClientID == "", "missing environment variable '%s'", EnvClientID)
	catcher.ErrorfWhen(c.ClientSecret == "" && !c.Interactive, "missing environment variable '%s'", EnvClientSecret)
	catcher.ErrorfWhen(c.ClientObjectID == "", "missing environment variable '%s'", EnvClientObjectID)
	if c.Mode != "" {
		catcher.Add(c.Mode.Validate())
	}
	if c.SasPermissions != "" {
		catcher.Add(validateSasPermissions(c.SasPermissions))
	}
	if catcher.HasErrors() {
		return catcher.Resolve()
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.ResourceGroup == "" {
		c.ResourceGroup = DefaultResourceGroup
	}
	if c.VaultServicePrincipal == "" {
		c.VaultServicePrincipal = keyvalet.KeyVaultServicePrincipal
	}
	if c.SasPermissions == "" {
		c.SasPermissions = DefaultSasPermissions
	}
	if c.Mode == "" {
		c.Mode = ModeManagedKeys
	}
	return nil
}

// validSasPermissions are the account SAS permission letters the storage
// service accepts.
const validSasPermissions = "acdfilpruwxy"

func validateSasPermissions(perms string) error {
	catcher := grip.NewBasicCatcher()
	for _, r := range perms {
		catcher.ErrorfWhen(!strings.ContainsRune(validSasPermissions, r), "invalid account SAS permission '%c'", r)
	}
	return catcher.Resolve()
}
