package vault

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// BasicSecretsClient provides a SecretsClient implementation that wraps the
// key vault secrets API. It supports retrying requests using exponential
// backoff and jitter.
type BasicSecretsClient struct {
	secrets map[string]*azsecrets.Client
	opts    *azutil.ClientOptions
}

// NewBasicSecretsClient creates a new client for the key vault secrets API
// from the given options.
func NewBasicSecretsClient(opts azutil.ClientOptions) (*BasicSecretsClient, error) {
	c := &BasicSecretsClient{
		opts: &opts,
	}
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	return c, nil
}

func (c *BasicSecretsClient) setup() error {
	if err := c.opts.Validate(); err != nil {
		return errors.Wrap(err, "invalid options")
	}

	if c.secrets == nil {
		c.secrets = map[string]*azsecrets.Client{}
	}

	return nil
}

// getClient returns the secrets client bound to the vault, building it on
// first use. The secrets API binds each client to a single vault.
func (c *BasicSecretsClient) getClient(vaultURI string) (*azsecrets.Client, error) {
	if client, ok := c.secrets[vaultURI]; ok {
		return client, nil
	}

	client, err := azsecrets.NewClient(vaultURI, c.opts.Credential, &azsecrets.ClientOptions{
		ClientOptions: *c.opts.GetClientOptions(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating secrets client")
	}

	c.secrets[vaultURI] = client

	return client, nil
}

// GetSecret gets the current value of a named secret. An empty version gets
// the latest version.
func (c *BasicSecretsClient) GetSecret(ctx context.Context, vaultURI, name, version string) (*azsecrets.GetSecretResponse, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	client, err := c.getClient(vaultURI)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetSecret(ctx, name, version, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("GetSecret", name)))
		return nil, err
	}

	return &resp, nil
}

// Close closes the client and cleans up its resources.
func (c *BasicSecretsClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
