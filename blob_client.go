package keyvalet

import "context"

// BlobClient provides a common interface to interact with the blob storage
// data plane under whatever access the client's credential grants.
// Implementations must handle retrying and backoff.
type BlobClient interface {
	// EnsureContainer creates the container if it does not exist yet. A
	// container that already exists is not an error.
	EnsureContainer(ctx context.Context, container string) error
	// UploadBlob uploads a block blob, replacing any existing blob with the
	// same name.
	UploadBlob(ctx context.Context, container, blob string, data []byte) error
	// DeleteContainer deletes the container and everything in it.
	DeleteContainer(ctx context.Context, container string) error
	// Close closes the client and cleans up its resources. Implementations
	// should ensure that this is idempotent.
	Close(ctx context.Context) error
}

// BlobClientMaker builds a blob data-plane client for a storage account's
// blob endpoint, authenticated by a SAS token. Callers use it to defer
// construction until the token exists, such as when the token comes out of a
// vault-managed secret.
type BlobClientMaker func(serviceURL, sasToken string) (BlobClient, error)
