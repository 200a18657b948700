package mock

import (
	"context"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/evergreen-ci/utility"
)

// VaultsClient provides a mock implementation of a keyvalet.VaultsClient. This
// makes it possible to introspect on inputs to the client and control the
// client's output. It provides some default implementations where possible. By
// default, it will issue the API calls to the fake GlobalKeyVaultService.
type VaultsClient struct {
	GetVaultInput  *string
	GetVaultOutput *armkeyvault.Vault
	GetVaultError  error

	CreateOrUpdateVaultInput  *armkeyvault.VaultCreateOrUpdateParameters
	CreateOrUpdateVaultOutput *armkeyvault.Vault
	CreateOrUpdateVaultError  error
	CreateOrUpdateVaultCalls  int

	CloseError error
}

// GetVault saves the input and returns an existing mock vault. The mock output
// can be customized. By default, it will return the cached mock vault if it
// exists in the global key vault service.
func (c *VaultsClient) GetVault(ctx context.Context, resourceGroup, vaultName string) (*armkeyvault.Vault, error) {
	c.GetVaultInput = utility.ToStringPtr(vaultName)

	if c.GetVaultOutput != nil || c.GetVaultError != nil {
		return c.GetVaultOutput, c.GetVaultError
	}

	vault, ok := GlobalKeyVaultService.Vaults[vaultName]
	if !ok {
		return nil, &azcore.ResponseError{
			ErrorCode:  "ResourceNotFound",
			StatusCode: http.StatusNotFound,
		}
	}

	return vault.export(), nil
}

// CreateOrUpdateVault saves the input and creates or replaces a mock vault.
// The mock output can be customized. By default, it will store the vault in
// the global key vault service under a derived data-plane URI.
func (c *VaultsClient) CreateOrUpdateVault(ctx context.Context, resourceGroup, vaultName string, params armkeyvault.VaultCreateOrUpdateParameters) (*armkeyvault.Vault, error) {
	c.CreateOrUpdateVaultInput = &params
	c.CreateOrUpdateVaultCalls++

	if c.CreateOrUpdateVaultOutput != nil || c.CreateOrUpdateVaultError != nil {
		return c.CreateOrUpdateVaultOutput, c.CreateOrUpdateVaultError
	}

	vault := StoredVault{
		Name:          vaultName,
		ResourceGroup: resourceGroup,
		Location:      utility.FromStringPtr(params.Location),
		URI:           VaultURI(vaultName),
		Properties:    params.Properties,
	}
	if params.Properties != nil {
		vault.TenantID = utility.FromStringPtr(params.Properties.TenantID)
	}
	GlobalKeyVaultService.Vaults[vaultName] = vault

	return vault.export(), nil
}

// Close closes the mock client. The mock output can be customized. By default,
// it is a no-op that returns no error.
func (c *VaultsClient) Close(ctx context.Context) error {
	return c.CloseError
}
