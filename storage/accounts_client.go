package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// BasicStorageAccountsClient provides a StorageAccountsClient implementation
// that wraps the storage account management API. It supports retrying
// requests using exponential backoff and jitter.
type BasicStorageAccountsClient struct {
	accounts *armstorage.AccountsClient
	opts     *azutil.ClientOptions
}

// NewBasicStorageAccountsClient creates a new client for the storage account
// management API from the given options.
func NewBasicStorageAccountsClient(opts azutil.ClientOptions) (*BasicStorageAccountsClient, error) {
	c := &BasicStorageAccountsClient{
		opts: &opts,
	}
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	return c, nil
}

func (c *BasicStorageAccountsClient) setup() error {
	if err := c.opts.Validate(); err != nil {
		return errors.Wrap(err, "invalid options")
	}

	if c.accounts != nil {
		return nil
	}

	accounts, err := armstorage.NewAccountsClient(utility.FromStringPtr(c.opts.SubscriptionID), c.opts.Credential, c.opts.GetARMClientOptions())
	if err != nil {
		return errors.Wrap(err, "creating accounts client")
	}

	c.accounts = accounts

	return nil
}

// CreateAccount creates a new storage account. It blocks until the account
// finishes provisioning.
func (c *BasicStorageAccountsClient) CreateAccount(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountCreateParameters) (*armstorage.Account, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	poller, err := c.accounts.BeginCreate(ctx, resourceGroup, accountName, params, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("CreateAccount", params)))
		return nil, err
	}

	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("CreateAccount", accountName)))
		return nil, errors.Wrap(err, "waiting for the account to finish provisioning")
	}

	return &resp.Account, nil
}

// GetAccount gets an existing storage account.
func (c *BasicStorageAccountsClient) GetAccount(ctx context.Context, resourceGroup, accountName string) (*armstorage.Account, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	resp, err := c.accounts.GetProperties(ctx, resourceGroup, accountName, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("GetAccount", accountName)))
		return nil, err
	}

	return &resp.Account, nil
}

// UpdateAccount updates the properties of an existing storage account.
func (c *BasicStorageAccountsClient) UpdateAccount(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountUpdateParameters) (*armstorage.Account, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	resp, err := c.accounts.Update(ctx, resourceGroup, accountName, params, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("UpdateAccount", params)))
		return nil, err
	}

	return &resp.Account, nil
}

// ListKeys lists the account's access keys.
func (c *BasicStorageAccountsClient) ListKeys(ctx context.Context, resourceGroup, accountName string) ([]*armstorage.AccountKey, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	resp, err := c.accounts.ListKeys(ctx, resourceGroup, accountName, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("ListKeys", accountName)))
		return nil, err
	}

	return resp.Keys, nil
}

// RegenerateKey regenerates the named access key and returns the new key set.
func (c *BasicStorageAccountsClient) RegenerateKey(ctx context.Context, resourceGroup, accountName, keyName string) ([]*armstorage.AccountKey, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	params := armstorage.AccountRegenerateKeyParameters{KeyName: &keyName}
	resp, err := c.accounts.RegenerateKey(ctx, resourceGroup, accountName, params, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("RegenerateKey", params)))
		return nil, err
	}

	return resp.Keys, nil
}

// ListAccountSAS mints an account SAS token for the given parameters.
func (c *BasicStorageAccountsClient) ListAccountSAS(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountSasParameters) (string, error) {
	if err := c.setup(); err != nil {
		return "", errors.Wrap(err, "setting up client")
	}

	resp, err := c.accounts.ListAccountSAS(ctx, resourceGroup, accountName, params, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("ListAccountSAS", accountName)))
		return "", err
	}

	return utility.FromStringPtr(resp.AccountSasToken), nil
}

// DeleteAccount deletes the storage account.
func (c *BasicStorageAccountsClient) DeleteAccount(ctx context.Context, resourceGroup, accountName string) error {
	if err := c.setup(); err != nil {
		return errors.Wrap(err, "setting up client")
	}

	if _, err := c.accounts.Delete(ctx, resourceGroup, accountName, nil); err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("DeleteAccount", accountName)))
		return err
	}

	return nil
}

// Close closes the client and cleans up its resources.
func (c *BasicStorageAccountsClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
