package mock

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/evergreen-ci/utility"
	"github.com/google/uuid"
)

// MockSubscriptionID is the subscription all mock ARM resource IDs are built
// under.
const MockSubscriptionID = "12345678-1234-1234-1234-123456789abc"

// StoredContainer represents a mock blob container, keyed by blob name.
type StoredContainer map[string][]byte

// StoredAccountKey represents one access key of a mock storage account. The
// generation counts how many times the key has been regenerated.
type StoredAccountKey struct {
	Value      string
	Generation int
}

// StoredAccount represents a mock storage account in the global storage
// service.
type StoredAccount struct {
	Name          string
	ResourceGroup string
	Location      string
	PrincipalID   string
	Keys          map[string]StoredAccountKey
	Encryption    *armstorage.Encryption
	Containers    map[string]StoredContainer
}

func (a StoredAccount) resourceID() string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Storage/storageAccounts/%s", MockSubscriptionID, a.ResourceGroup, a.Name)
}

func (a StoredAccount) blobEndpoint() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", a.Name)
}

func (a StoredAccount) export() *armstorage.Account {
	return &armstorage.Account{
		ID:       utility.ToStringPtr(a.resourceID()),
		Name:     utility.ToStringPtr(a.Name),
		Location: utility.ToStringPtr(a.Location),
		Identity: &armstorage.Identity{
			Type:        to.Ptr(armstorage.IdentityTypeSystemAssigned),
			PrincipalID: utility.ToStringPtr(a.PrincipalID),
		},
		Properties: &armstorage.AccountProperties{
			ProvisioningState: to.Ptr(armstorage.ProvisioningStateSucceeded),
			PrimaryEndpoints: &armstorage.Endpoints{
				Blob: utility.ToStringPtr(a.blobEndpoint()),
			},
			Encryption: a.Encryption,
		},
	}
}

func (a StoredAccount) exportKeys() []*armstorage.AccountKey {
	names := make([]string, 0, len(a.Keys))
	for name := range a.Keys {
		names = append(names, name)
	}
	sort.Strings(names)

	var keys []*armstorage.AccountKey
	for _, name := range names {
		keys = append(keys, &armstorage.AccountKey{
			KeyName:     utility.ToStringPtr(name),
			Value:       utility.ToStringPtr(a.Keys[name].Value),
			Permissions: to.Ptr(armstorage.KeyPermissionFull),
		})
	}
	return keys
}

// regenerateKey gives the named key a fresh value and bumps its generation.
func (a StoredAccount) regenerateKey(name string) {
	key := a.Keys[name]
	key.Generation++
	key.Value = fmt.Sprintf("%s-%s-%d", a.Name, name, key.Generation)
	a.Keys[name] = key
}

// StorageService is a global implementation of the storage management plane
// that provides a simplified in-memory implementation of the service. This can
// be used indirectly with the mock clients, or used directly.
type StorageService struct {
	Accounts map[string]StoredAccount
}

// GlobalStorageService represents the global fake storage service state.
var GlobalStorageService StorageService

func init() {
	ResetGlobalStorageService()
}

// ResetGlobalStorageService resets the global fake storage service to an
// initialized but clean state.
func ResetGlobalStorageService() {
	GlobalStorageService = StorageService{
		Accounts: map[string]StoredAccount{},
	}
}

// StorageAccountsClient provides a mock implementation of a
// keyvalet.StorageAccountsClient. This makes it possible to introspect on
// inputs to the client and control the client's output. It provides some
// default implementations where possible. By default, it will issue the API
// calls to the fake GlobalStorageService.
type StorageAccountsClient struct {
	CreateAccountName   *string
	CreateAccountInput  *armstorage.AccountCreateParameters
	CreateAccountOutput *armstorage.Account
	CreateAccountError  error

	GetAccountInput  *string
	GetAccountOutput *armstorage.Account
	GetAccountError  error

	UpdateAccountInput  *armstorage.AccountUpdateParameters
	UpdateAccountOutput *armstorage.Account
	UpdateAccountError  error

	ListKeysInput  *string
	ListKeysOutput []*armstorage.AccountKey
	ListKeysError  error

	RegenerateKeyInput  *string
	RegenerateKeyOutput []*armstorage.AccountKey
	RegenerateKeyError  error

	ListAccountSASInput  *armstorage.AccountSasParameters
	ListAccountSASOutput *string
	ListAccountSASError  error

	DeleteAccountInput *string
	DeleteAccountError error

	CloseError error
}

// CreateAccount saves the input and creates a new mock storage account. The
// mock output can be customized. By default, it will store an account with two
// access keys and a system-assigned identity in the global storage service.
func (c *StorageAccountsClient) CreateAccount(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountCreateParameters) (*armstorage.Account, error) {
	c.CreateAccountName = utility.ToStringPtr(accountName)
	c.CreateAccountInput = &params

	if c.CreateAccountOutput != nil || c.CreateAccountError != nil {
		return c.CreateAccountOutput, c.CreateAccountError
	}

	if _, ok := GlobalStorageService.Accounts[accountName]; ok {
		return nil, &azcore.ResponseError{
			ErrorCode:  "StorageAccountAlreadyExists",
			StatusCode: http.StatusConflict,
		}
	}

	account := StoredAccount{
		Name:          accountName,
		ResourceGroup: resourceGroup,
		Location:      utility.FromStringPtr(params.Location),
		PrincipalID:   uuid.New().String(),
		Keys:          map[string]StoredAccountKey{},
		Containers:    map[string]StoredContainer{},
	}
	for _, name := range []string{"key1", "key2"} {
		account.Keys[name] = StoredAccountKey{
			Value:      fmt.Sprintf("%s-%s-0", accountName, name),
			Generation: 0,
		}
	}
	GlobalStorageService.Accounts[accountName] = account

	return account.export(), nil
}

// GetAccount saves the input and returns an existing mock storage account. The
// mock output can be customized. By default, it will return the cached account
// if it exists in the global storage service.
func (c *StorageAccountsClient) GetAccount(ctx context.Context, resourceGroup, accountName string) (*armstorage.Account, error) {
	c.GetAccountInput = utility.ToStringPtr(accountName)

	if c.GetAccountOutput != nil || c.GetAccountError != nil {
		return c.GetAccountOutput, c.GetAccountError
	}

	account, ok := GlobalStorageService.Accounts[accountName]
	if !ok {
		return nil, &azcore.ResponseError{
			ErrorCode:  "StorageAccountNotFound",
			StatusCode: http.StatusNotFound,
		}
	}

	return account.export(), nil
}

// UpdateAccount saves the input and updates an existing mock storage account.
// The mock output can be customized. By default, it will apply encryption
// changes to the cached account in the global storage service.
func (c *StorageAccountsClient) UpdateAccount(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountUpdateParameters) (*armstorage.Account, error) {
	c.UpdateAccountInput = &params

	if c.UpdateAccountOutput != nil || c.UpdateAccountError != nil {
		return c.UpdateAccountOutput, c.UpdateAccountError
	}

	account, ok := GlobalStorageService.Accounts[accountName]
	if !ok {
		return nil, &azcore.ResponseError{
			ErrorCode:  "StorageAccountNotFound",
			StatusCode: http.StatusNotFound,
		}
	}

	if params.Properties != nil && params.Properties.Encryption != nil {
		account.Encryption = params.Properties.Encryption
	}
	GlobalStorageService.Accounts[accountName] = account

	return account.export(), nil
}

// ListKeys saves the input and lists a mock account's access keys. The mock
// output can be customized. By default, it will return the cached account's
// keys from the global storage service.
func (c *StorageAccountsClient) ListKeys(ctx context.Context, resourceGroup, accountName string) ([]*armstorage.AccountKey, error) {
	c.ListKeysInput = utility.ToStringPtr(accountName)

	if c.ListKeysOutput != nil || c.ListKeysError != nil {
		return c.ListKeysOutput, c.ListKeysError
	}

	account, ok := GlobalStorageService.Accounts[accountName]
	if !ok {
		return nil, &azcore.ResponseError{
			ErrorCode:  "StorageAccountNotFound",
			StatusCode: http.StatusNotFound,
		}
	}

	return account.exportKeys(), nil
}

// RegenerateKey saves the input and regenerates one of a mock account's access
// keys. The mock output can be customized. By default, it will give the named
// key a fresh value in the global storage service and return the new key set.
func (c *StorageAccountsClient) RegenerateKey(ctx context.Context, resourceGroup, accountName, keyName string) ([]*armstorage.AccountKey, error) {
	c.RegenerateKeyInput = utility.ToStringPtr(keyName)

	if c.RegenerateKeyOutput != nil || c.RegenerateKeyError != nil {
		return c.RegenerateKeyOutput, c.RegenerateKeyError
	}

	account, ok := GlobalStorageService.Accounts[accountName]
	if !ok {
		return nil, &azcore.ResponseError{
			ErrorCode:  "StorageAccountNotFound",
			StatusCode: http.StatusNotFound,
		}
	}
	if _, ok := account.Keys[keyName]; !ok {
		return nil, &azcore.ResponseError{
			ErrorCode:  "InvalidValuesForRequestParameters",
			StatusCode: http.StatusBadRequest,
		}
	}

	account.regenerateKey(keyName)

	return account.exportKeys(), nil
}

// ListAccountSAS saves the input and mints a mock account SAS token. The mock
// output can be customized. By default, it will build a token that carries the
// requested services, resource types, and permissions, which the mock blob
// client enforces.
func (c *StorageAccountsClient) ListAccountSAS(ctx context.Context, resourceGroup, accountName string, params armstorage.AccountSasParameters) (string, error) {
	c.ListAccountSASInput = &params

	if c.ListAccountSASOutput != nil || c.ListAccountSASError != nil {
		return utility.FromStringPtr(c.ListAccountSASOutput), c.ListAccountSASError
	}

	if _, ok := GlobalStorageService.Accounts[accountName]; !ok {
		return "", &azcore.ResponseError{
			ErrorCode:  "StorageAccountNotFound",
			StatusCode: http.StatusNotFound,
		}
	}
	if params.Services == nil || params.ResourceTypes == nil || params.Permissions == nil || params.SharedAccessExpiryTime == nil {
		return "", &azcore.ResponseError{
			ErrorCode:  "InvalidValuesForRequestParameters",
			StatusCode: http.StatusBadRequest,
		}
	}

	token := url.Values{}
	token.Set("sv", "2021-08-06")
	token.Set("ss", string(*params.Services))
	token.Set("srt", string(*params.ResourceTypes))
	token.Set("sp", string(*params.Permissions))
	token.Set("se", params.SharedAccessExpiryTime.UTC().Format(time.RFC3339))
	token.Set("sig", "mock-signature")

	return token.Encode(), nil
}

// DeleteAccount saves the input and deletes a mock storage account. The mock
// output can be customized. By default, it will remove the cached account from
// the global storage service; like the real service, deleting an account that
// does not exist is not an error.
func (c *StorageAccountsClient) DeleteAccount(ctx context.Context, resourceGroup, accountName string) error {
	c.DeleteAccountInput = utility.ToStringPtr(accountName)

	if c.DeleteAccountError != nil {
		return c.DeleteAccountError
	}

	delete(GlobalStorageService.Accounts, accountName)

	return nil
}

// Close closes the mock client. The mock output can be customized. By default,
// it is a no-op that returns no error.
func (c *StorageAccountsClient) Close(ctx context.Context) error {
	return c.CloseError
}
