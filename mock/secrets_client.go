package mock

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/evergreen-ci/utility"
)

// SecretsClient provides a mock implementation of a keyvalet.SecretsClient.
// This makes it possible to introspect on inputs to the client and control the
// client's output. It provides some default implementations where possible. By
// default, it will issue the API calls to the fake GlobalKeyVaultService.
type SecretsClient struct {
	GetSecretVault   *string
	GetSecretInput   *string
	GetSecretVersion *string
	GetSecretOutput  *azsecrets.GetSecretResponse
	GetSecretError   error

	CloseError error
}

// GetSecret saves the input and returns a mock secret value. The mock output
// can be customized. By default, it will return the cached secret stored under
// the vault with the given name if the global key vault service has one,
// including the managed secrets that SAS definitions mint.
func (c *SecretsClient) GetSecret(ctx context.Context, vaultURI, name, version string) (*azsecrets.GetSecretResponse, error) {
	c.GetSecretVault = utility.ToStringPtr(vaultURI)
	c.GetSecretInput = utility.ToStringPtr(name)
	c.GetSecretVersion = utility.ToStringPtr(version)

	if c.GetSecretOutput != nil || c.GetSecretError != nil {
		return c.GetSecretOutput, c.GetSecretError
	}

	secret, ok := GlobalKeyVaultService.Secrets[vaultURI][name]
	if !ok {
		return nil, &azcore.ResponseError{
			ErrorCode:  "SecretNotFound",
			StatusCode: 404,
		}
	}

	id := strings.TrimSuffix(vaultURI, "/") + "/secrets/" + name
	if version != "" {
		id += "/" + version
	}
	secretID := azsecrets.ID(id)

	return &azsecrets.GetSecretResponse{
		Secret: azsecrets.Secret{
			ID:      &secretID,
			Value:   utility.ToStringPtr(secret.Value),
			Managed: utility.ToBoolPtr(secret.Managed),
		},
	}, nil
}

// Close closes the mock client. The mock output can be customized. By default,
// it is a no-op that returns no error.
func (c *SecretsClient) Close(ctx context.Context) error {
	return c.CloseError
}
