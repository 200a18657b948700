package keyvalet

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
)

// VaultsClient provides a common interface to interact with the key vault
// management plane. Implementations must handle retrying and backoff.
type VaultsClient interface {
	// GetVault gets an existing vault by name.
	GetVault(ctx context.Context, resourceGroup, vaultName string) (*armkeyvault.Vault, error)
	// CreateOrUpdateVault creates a new vault or pushes an updated definition
	// for an existing one. It blocks until the operation completes.
	CreateOrUpdateVault(ctx context.Context, resourceGroup, vaultName string, params armkeyvault.VaultCreateOrUpdateParameters) (*armkeyvault.Vault, error)
	// Close closes the client and cleans up its resources. Implementations
	// should ensure that this is idempotent.
	Close(ctx context.Context) error
}
