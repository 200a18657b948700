package resources

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// BasicResourceGroupsClient provides a ResourceGroupsClient implementation
// that wraps the resource group management API. It supports retrying requests
// using exponential backoff and jitter.
type BasicResourceGroupsClient struct {
	groups *armresources.ResourceGroupsClient
	opts   *azutil.ClientOptions
}

// NewBasicResourceGroupsClient creates a new client for the resource group
// management API from the given options.
func NewBasicResourceGroupsClient(opts azutil.ClientOptions) (*BasicResourceGroupsClient, error) {
	c := &BasicResourceGroupsClient{
		opts: &opts,
	}
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	return c, nil
}

func (c *BasicResourceGroupsClient) setup() error {
	if err := c.opts.Validate(); err != nil {
		return errors.Wrap(err, "invalid options")
	}

	if c.groups != nil {
		return nil
	}

	groups, err := armresources.NewResourceGroupsClient(utility.FromStringPtr(c.opts.SubscriptionID), c.opts.Credential, c.opts.GetARMClientOptions())
	if err != nil {
		return errors.Wrap(err, "creating resource groups client")
	}

	c.groups = groups

	return nil
}

// CreateOrUpdateResourceGroup creates the resource group if it does not exist
// yet and returns its current state.
func (c *BasicResourceGroupsClient) CreateOrUpdateResourceGroup(ctx context.Context, name string, params armresources.ResourceGroup) (*armresources.ResourceGroup, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	resp, err := c.groups.CreateOrUpdate(ctx, name, params, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("CreateOrUpdateResourceGroup", params)))
		return nil, err
	}

	return &resp.ResourceGroup, nil
}

// Close closes the client and cleans up its resources.
func (c *BasicResourceGroupsClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
