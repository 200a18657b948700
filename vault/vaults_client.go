package vault

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// BasicVaultsClient provides a VaultsClient implementation that wraps the key
// vault management API. It supports retrying requests using exponential
// backoff and jitter.
type BasicVaultsClient struct {
	vaults *armkeyvault.VaultsClient
	opts   *azutil.ClientOptions
}

// NewBasicVaultsClient creates a new client for the key vault management API
// from the given options.
func NewBasicVaultsClient(opts azutil.ClientOptions) (*BasicVaultsClient, error) {
	c := &BasicVaultsClient{
		opts: &opts,
	}
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	return c, nil
}

func (c *BasicVaultsClient) setup() error {
	if err := c.opts.Validate(); err != nil {
		return errors.Wrap(err, "invalid options")
	}

	if c.vaults != nil {
		return nil
	}

	vaults, err := armkeyvault.NewVaultsClient(utility.FromStringPtr(c.opts.SubscriptionID), c.opts.Credential, c.opts.GetARMClientOptions())
	if err != nil {
		return errors.Wrap(err, "creating vaults client")
	}

	c.vaults = vaults

	return nil
}

// GetVault gets an existing vault by name.
func (c *BasicVaultsClient) GetVault(ctx context.Context, resourceGroup, vaultName string) (*armkeyvault.Vault, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	resp, err := c.vaults.Get(ctx, resourceGroup, vaultName, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("GetVault", vaultName)))
		return nil, err
	}

	return &resp.Vault, nil
}

// CreateOrUpdateVault creates a new vault or pushes an updated definition for
// an existing one. It blocks until the operation completes.
func (c *BasicVaultsClient) CreateOrUpdateVault(ctx context.Context, resourceGroup, vaultName string, params armkeyvault.VaultCreateOrUpdateParameters) (*armkeyvault.Vault, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	poller, err := c.vaults.BeginCreateOrUpdate(ctx, resourceGroup, vaultName, params, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("CreateOrUpdateVault", params)))
		return nil, err
	}

	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("CreateOrUpdateVault", vaultName)))
		return nil, errors.Wrap(err, "waiting for the vault operation to complete")
	}

	return &resp.Vault, nil
}

// Close closes the client and cleans up its resources.
func (c *BasicVaultsClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
