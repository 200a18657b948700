package keyvalet

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

// ResourceGroupsClient provides a common interface to interact with resource
// groups. Implementations must handle retrying and backoff.
type ResourceGroupsClient interface {
	// CreateOrUpdateResourceGroup creates the resource group if it does not
	// exist yet and returns its current state.
	CreateOrUpdateResourceGroup(ctx context.Context, name string, params armresources.ResourceGroup) (*armresources.ResourceGroup, error)
	// Close closes the client and cleans up its resources. Implementations
	// should ensure that this is idempotent.
	Close(ctx context.Context) error
}
