package keyvalet

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
)

// StorageAccountsClient provides a common interface to interact with the
// storage account management plane. Implementations must handle retrying and
// backoff.
type StorageAccountsClient interface {
	// CreateAccount creates a new storage account. It blocks until the account
	// finishes provisioning.
	CreateAccount(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountCreateParameters) (*armstorage.Account, error)
	// GetAccount gets an existing storage account.
	GetAccount(ctx context.Context, resourceGroup, accountName string) (*armstorage.Account, error)
	// UpdateAccount updates the properties of an existing storage account.
	UpdateAccount(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountUpdateParameters) (*armstorage.Account, error)
	// ListKeys lists the account's access keys.
	ListKeys(ctx context.Context, resourceGroup, accountName string) ([]*armstorage.AccountKey, error)
	// RegenerateKey regenerates the named access key and returns the new key
	// set.
	RegenerateKey(ctx context.Context, resourceGroup, accountName, keyName string) ([]*armstorage.AccountKey, error)
	// ListAccountSAS mints an account SAS token for the given parameters.
	ListAccountSAS(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountSasParameters) (string, error)
	// DeleteAccount deletes the storage account.
	DeleteAccount(ctx context.Context, resourceGroup, accountName string) error
	// Close closes the client and cleans up its resources. Implementations
	// should ensure that this is idempotent.
	Close(ctx context.Context) error
}
