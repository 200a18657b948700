package azutil

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/evergreen-ci/utility"
	"github.com/pkg/errors"
)

// BaseClient provides various helpers to set up and use Azure clients for
// various services.
type BaseClient struct {
	opts      ClientOptions
	validated bool
}

// NewBaseClient creates a new base Azure client from the client options.
func NewBaseClient(opts ClientOptions) BaseClient {
	return BaseClient{opts: opts}
}

// GetOptions ensures that the client options are validated and returns them.
func (c *BaseClient) GetOptions() (*ClientOptions, error) {
	if c.validated {
		return &c.opts, nil
	}

	if err := c.opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	c.validated = true

	return &c.opts, nil
}

// GetClientOptions ensures that the client options are validated and returns
// the resolved pipeline options.
func (c *BaseClient) GetClientOptions() (*policy.ClientOptions, error) {
	opts, err := c.GetOptions()
	if err != nil {
		return nil, err
	}
	return opts.GetClientOptions(), nil
}

// GetARMClientOptions ensures that the client options are validated and
// returns the options to build management-plane clients.
func (c *BaseClient) GetARMClientOptions() (*arm.ClientOptions, error) {
	opts, err := c.GetOptions()
	if err != nil {
		return nil, err
	}
	return opts.GetARMClientOptions(), nil
}

// GetRetryOptions returns the retry options for the client.
func (c *BaseClient) GetRetryOptions() utility.RetryOptions {
	if c.opts.RetryOpts == nil {
		c.opts.RetryOpts = &utility.RetryOptions{}
	}
	return *c.opts.RetryOpts
}

// Close closes the client and cleans up its resources.
func (c *BaseClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
