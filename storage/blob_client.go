package storage

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// BasicBlobClient provides a BlobClient implementation that wraps the blob
// storage API, authenticated by the SAS token riding the service URL. It
// supports retrying requests using exponential backoff and jitter.
type BasicBlobClient struct {
	blob *azblob.Client
	opts *azutil.ClientOptions
}

// NewBasicBlobClient creates a new blob client for the storage account's blob
// endpoint, authenticated by the SAS token.
func NewBasicBlobClient(serviceURL, sasToken string, opts azutil.ClientOptions) (*BasicBlobClient, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	endpoint := strings.TrimSuffix(serviceURL, "/") + "/?" + strings.TrimPrefix(sasToken, "?")
	blob, err := azblob.NewClientWithNoCredential(endpoint, &azblob.ClientOptions{
		ClientOptions: *opts.GetClientOptions(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating blob client")
	}

	return &BasicBlobClient{
		blob: blob,
		opts: &opts,
	}, nil
}

// NewBlobClientMaker returns a maker that builds SAS-authenticated blob
// clients sharing the given client options.
func NewBlobClientMaker(opts azutil.ClientOptions) keyvalet.BlobClientMaker {
	return func(serviceURL, sasToken string) (keyvalet.BlobClient, error) {
		return NewBasicBlobClient(serviceURL, sasToken, opts)
	}
}

// EnsureContainer creates the container if it does not exist yet. A container
// that already exists is not an error.
func (c *BasicBlobClient) EnsureContainer(ctx context.Context, container string) error {
	if _, err := c.blob.CreateContainer(ctx, container, nil); err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("CreateContainer", container)))
		return err
	}

	return nil
}

// UploadBlob uploads a block blob, replacing any existing blob with the same
// name.
func (c *BasicBlobClient) UploadBlob(ctx context.Context, container, blob string, data []byte) error {
	if _, err := c.blob.UploadBuffer(ctx, container, blob, data, nil); err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("UploadBuffer", blob)))
		return err
	}

	return nil
}

// DeleteContainer deletes the container and everything in it.
func (c *BasicBlobClient) DeleteContainer(ctx context.Context, container string) error {
	if _, err := c.blob.DeleteContainer(ctx, container, nil); err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("DeleteContainer", container)))
		return err
	}

	return nil
}

// Close closes the client and cleans up its resources.
func (c *BasicBlobClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
