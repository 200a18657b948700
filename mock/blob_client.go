package mock

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/pkg/errors"
)

// BlobClient provides a mock implementation of a keyvalet.BlobClient. This
// makes it possible to introspect on inputs to the client and control the
// client's output. By default, it operates on the containers of the matching
// account in the fake GlobalStorageService and enforces the permission letters
// carried in its SAS token, so a token minted without write access fails the
// same way it would against the real data plane.
type BlobClient struct {
	ServiceURL string
	SasToken   string

	EnsureContainerInput *string
	EnsureContainerError error

	UploadBlobContainer *string
	UploadBlobName      *string
	UploadBlobData      []byte
	UploadBlobError     error

	DeleteContainerInput *string
	DeleteContainerError error

	CloseError error
}

// EnsureContainer saves the input and creates a mock container. The mock
// output can be customized. By default, it requires the token's create
// permission and treats a container that already exists as success.
func (c *BlobClient) EnsureContainer(ctx context.Context, container string) error {
	c.EnsureContainerInput = utility.ToStringPtr(container)

	if c.EnsureContainerError != nil {
		return c.EnsureContainerError
	}

	if !c.permits('c') {
		return permissionMismatchError()
	}

	account, err := c.account()
	if err != nil {
		return err
	}

	if _, ok := account.Containers[container]; !ok {
		account.Containers[container] = StoredContainer{}
	}

	return nil
}

// UploadBlob saves the input and stores a mock blob. The mock output can be
// customized. By default, it requires the token's write permission and an
// existing container.
func (c *BlobClient) UploadBlob(ctx context.Context, container, blob string, data []byte) error {
	c.UploadBlobContainer = utility.ToStringPtr(container)
	c.UploadBlobName = utility.ToStringPtr(blob)
	c.UploadBlobData = data

	if c.UploadBlobError != nil {
		return c.UploadBlobError
	}

	if !c.permits('w') {
		return permissionMismatchError()
	}

	account, err := c.account()
	if err != nil {
		return err
	}

	stored, ok := account.Containers[container]
	if !ok {
		return &azcore.ResponseError{
			ErrorCode:  string(bloberror.ContainerNotFound),
			StatusCode: http.StatusNotFound,
		}
	}

	stored[blob] = append([]byte{}, data...)

	return nil
}

// DeleteContainer saves the input and deletes a mock container. The mock
// output can be customized. By default, it requires the token's delete
// permission.
func (c *BlobClient) DeleteContainer(ctx context.Context, container string) error {
	c.DeleteContainerInput = utility.ToStringPtr(container)

	if c.DeleteContainerError != nil {
		return c.DeleteContainerError
	}

	if !c.permits('d') {
		return permissionMismatchError()
	}

	account, err := c.account()
	if err != nil {
		return err
	}

	if _, ok := account.Containers[container]; !ok {
		return &azcore.ResponseError{
			ErrorCode:  string(bloberror.ContainerNotFound),
			StatusCode: http.StatusNotFound,
		}
	}

	delete(account.Containers, container)

	return nil
}

// Close closes the mock client. The mock output can be customized. By default,
// it is a no-op that returns no error.
func (c *BlobClient) Close(ctx context.Context) error {
	return c.CloseError
}

// account resolves the client's service URL to its mock storage account.
func (c *BlobClient) account() (StoredAccount, error) {
	u, err := url.Parse(c.ServiceURL)
	if err != nil {
		return StoredAccount{}, errors.Wrap(err, "parsing service URL")
	}

	name := strings.Split(u.Hostname(), ".")[0]
	account, ok := GlobalStorageService.Accounts[name]
	if !ok {
		return StoredAccount{}, errors.Errorf("no storage account for service URL '%s'", c.ServiceURL)
	}

	return account, nil
}

// permits reports whether the client's SAS token carries the permission
// letter.
func (c *BlobClient) permits(perm rune) bool {
	query := strings.TrimPrefix(c.SasToken, "?")
	params, err := url.ParseQuery(query)
	if err != nil {
		return false
	}
	return strings.ContainsRune(params.Get("sp"), perm)
}

func permissionMismatchError() error {
	return &azcore.ResponseError{
		ErrorCode:  string(bloberror.AuthorizationPermissionMismatch),
		StatusCode: http.StatusForbidden,
	}
}

// BlobClientMaker provides a mock implementation of a keyvalet.BlobClientMaker
// through its Make method. It remembers the last client it built so tests can
// inspect the calls made with a minted token.
type BlobClientMaker struct {
	ServiceURL string
	SasToken   string
	Client     *BlobClient
	MakeError  error
}

// Make saves the input and builds a mock blob client bound to the service URL
// and token. The mock output can be customized. By default, it returns a
// client backed by the fake GlobalStorageService.
func (m *BlobClientMaker) Make(serviceURL, sasToken string) (keyvalet.BlobClient, error) {
	m.ServiceURL = serviceURL
	m.SasToken = sasToken

	if m.MakeError != nil {
		return nil, m.MakeError
	}

	m.Client = &BlobClient{
		ServiceURL: serviceURL,
		SasToken:   sasToken,
	}

	return m.Client, nil
}
