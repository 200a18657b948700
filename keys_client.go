package keyvalet

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
)

// KeysClient provides a common interface to manage keys on the key vault data
// plane. Implementations must handle retrying and backoff.
type KeysClient interface {
	// CreateKey creates a new key or a new version of an existing key.
	CreateKey(ctx context.Context, vaultURI, name string, params azkeys.CreateKeyParameters) (*azkeys.CreateKeyResponse, error)
	// GetKey gets the named key. An empty version gets the latest version.
	GetKey(ctx context.Context, vaultURI, name, version string) (*azkeys.GetKeyResponse, error)
	// Close closes the client and cleans up its resources. Implementations
	// should ensure that this is idempotent.
	Close(ctx context.Context) error
}
