package keyvalet

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// SecretsClient provides a common interface to read secrets from the key
// vault data plane, including the managed secrets that back SAS definitions.
// Implementations must handle retrying and backoff.
type SecretsClient interface {
	// GetSecret gets the current value of a named secret. An empty version
	// gets the latest version.
	GetSecret(ctx context.Context, vaultURI, name, version string) (*azsecrets.GetSecretResponse, error)
	// Close closes the client and cleans up its resources. Implementations
	// should ensure that this is idempotent.
	Close(ctx context.Context) error
}
