package vault

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// BasicKeysClient provides a KeysClient implementation that wraps the key
// vault keys API. It supports retrying requests using exponential backoff and
// jitter.
type BasicKeysClient struct {
	keys map[string]*azkeys.Client
	opts *azutil.ClientOptions
}

// NewBasicKeysClient creates a new client for the key vault keys API from the
// given options.
func NewBasicKeysClient(opts azutil.ClientOptions) (*BasicKeysClient, error) {
	c := &BasicKeysClient{
		opts: &opts,
	}
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	return c, nil
}

func (c *BasicKeysClient) setup() error {
	if err := c.opts.Validate(); err != nil {
		return errors.Wrap(err, "invalid options")
	}

	if c.keys == nil {
		c.keys = map[string]*azkeys.Client{}
	}

	return nil
}

// getClient returns the keys client bound to the vault, building it on first
// use. The keys API binds each client to a single vault.
func (c *BasicKeysClient) getClient(vaultURI string) (*azkeys.Client, error) {
	if client, ok := c.keys[vaultURI]; ok {
		return client, nil
	}

	client, err := azkeys.NewClient(vaultURI, c.opts.Credential, &azkeys.ClientOptions{
		ClientOptions: *c.opts.GetClientOptions(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating keys client")
	}

	c.keys[vaultURI] = client

	return client, nil
}

// CreateKey creates a new key or a new version of an existing key.
func (c *BasicKeysClient) CreateKey(ctx context.Context, vaultURI, name string, params azkeys.CreateKeyParameters) (*azkeys.CreateKeyResponse, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	client, err := c.getClient(vaultURI)
	if err != nil {
		return nil, err
	}

	resp, err := client.CreateKey(ctx, name, params, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("CreateKey", name)))
		return nil, err
	}

	return &resp, nil
}

// GetKey gets the named key. An empty version gets the latest version.
func (c *BasicKeysClient) GetKey(ctx context.Context, vaultURI, name, version string) (*azkeys.GetKeyResponse, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	client, err := c.getClient(vaultURI)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetKey(ctx, name, version, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("GetKey", name)))
		return nil, err
	}

	return &resp, nil
}

// Close closes the client and cleans up its resources.
func (c *BasicKeysClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
