package mock

import (
	"context"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/evergreen-ci/utility"
	"github.com/pkg/errors"
)

// KeysClient provides a mock implementation of a keyvalet.KeysClient. This
// makes it possible to introspect on inputs to the client and control the
// client's output. It provides some default implementations where possible. By
// default, it will issue the API calls to the fake GlobalKeyVaultService.
type KeysClient struct {
	CreateKeyVault  *string
	CreateKeyName   *string
	CreateKeyInput  *azkeys.CreateKeyParameters
	CreateKeyOutput *azkeys.CreateKeyResponse
	CreateKeyError  error

	GetKeyVault   *string
	GetKeyInput   *string
	GetKeyVersion *string
	GetKeyOutput  *azkeys.GetKeyResponse
	GetKeyError   error

	CloseError error
}

func keyID(vaultURI, name, version string) azkeys.ID {
	return azkeys.ID(strings.TrimSuffix(vaultURI, "/") + "/keys/" + name + "/" + version)
}

func exportKey(vaultURI string, key StoredVaultKey) *azkeys.JSONWebKey {
	id := keyID(vaultURI, key.Name, key.Version)
	kty := azkeys.KeyType(key.Kty)
	return &azkeys.JSONWebKey{
		KID: &id,
		Kty: &kty,
	}
}

// CreateKey saves the input and creates a mock key version. The mock output
// can be customized. By default, it will append a new version of the key to
// the global key vault service and return it.
func (c *KeysClient) CreateKey(ctx context.Context, vaultURI, name string, params azkeys.CreateKeyParameters) (*azkeys.CreateKeyResponse, error) {
	c.CreateKeyVault = utility.ToStringPtr(vaultURI)
	c.CreateKeyName = utility.ToStringPtr(name)
	c.CreateKeyInput = &params

	if c.CreateKeyOutput != nil || c.CreateKeyError != nil {
		return c.CreateKeyOutput, c.CreateKeyError
	}

	if params.Kty == nil {
		return nil, errors.New("must provide a key type")
	}

	key := StoredVaultKey{
		Name:    name,
		Version: utility.RandomString(),
		Kty:     string(*params.Kty),
		Created: time.Now(),
	}
	if GlobalKeyVaultService.Keys[vaultURI] == nil {
		GlobalKeyVaultService.Keys[vaultURI] = VaultKeys{}
	}
	GlobalKeyVaultService.Keys[vaultURI][name] = append(GlobalKeyVaultService.Keys[vaultURI][name], key)

	return &azkeys.CreateKeyResponse{
		KeyBundle: azkeys.KeyBundle{
			Key: exportKey(vaultURI, key),
		},
	}, nil
}

// GetKey saves the input and returns a mock key. The mock output can be
// customized. By default, it will return the named version of the key from
// the global key vault service, or the latest version when none is given.
func (c *KeysClient) GetKey(ctx context.Context, vaultURI, name, version string) (*azkeys.GetKeyResponse, error) {
	c.GetKeyVault = utility.ToStringPtr(vaultURI)
	c.GetKeyInput = utility.ToStringPtr(name)
	c.GetKeyVersion = utility.ToStringPtr(version)

	if c.GetKeyOutput != nil || c.GetKeyError != nil {
		return c.GetKeyOutput, c.GetKeyError
	}

	notFound := &azcore.ResponseError{
		ErrorCode:  "KeyNotFound",
		StatusCode: 404,
	}

	versions := GlobalKeyVaultService.Keys[vaultURI][name]
	if len(versions) == 0 {
		return nil, notFound
	}

	key := versions[len(versions)-1]
	if version != "" {
		found := false
		for _, candidate := range versions {
			if candidate.Version == version {
				key = candidate
				found = true
				break
			}
		}
		if !found {
			return nil, notFound
		}
	}

	return &azkeys.GetKeyResponse{
		KeyBundle: azkeys.KeyBundle{
			Key: exportKey(vaultURI, key),
		},
	}, nil
}

// Close closes the mock client. The mock output can be customized. By default,
// it is a no-op that returns no error.
func (c *KeysClient) Close(ctx context.Context) error {
	return c.CloseError
}
