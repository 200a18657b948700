package testcase

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// KeysClientTestCase represents a test case for a keyvalet.KeysClient.
type KeysClientTestCase func(ctx context.Context, t *testing.T, c keyvalet.KeysClient, vaultURI string)

// KeysClientTests returns common test cases that a keyvalet.KeysClient should
// support.
func KeysClientTests() map[string]KeysClientTestCase {
	return map[string]KeysClientTestCase{
		"CreateKeySucceeds": func(ctx context.Context, t *testing.T, c keyvalet.KeysClient, vaultURI string) {
			resp, err := c.CreateKey(ctx, vaultURI, "account-key", newTestKeyParameters())
			require.NoError(t, err)
			require.NotZero(t, resp)
			require.NotZero(t, resp.Key)
			require.NotZero(t, resp.Key.KID)
			assert.Equal(t, "account-key", resp.Key.KID.Name())
			assert.NotZero(t, resp.Key.KID.Version())
		},
		"CreateKeyFailsWithMissingKeyType": func(ctx context.Context, t *testing.T, c keyvalet.KeysClient, vaultURI string) {
			resp, err := c.CreateKey(ctx, vaultURI, "account-key", azkeys.CreateKeyParameters{})
			assert.Error(t, err)
			assert.Zero(t, resp)
		},
		"GetKeyFailsWithNonexistentKey": func(ctx context.Context, t *testing.T, c keyvalet.KeysClient, vaultURI string) {
			resp, err := c.GetKey(ctx, vaultURI, "nonexistent-key", "")
			assert.Error(t, err)
			assert.True(t, azutil.HasErrorCode(err, "KeyNotFound"))
			assert.Zero(t, resp)
		},
		"GetKeySucceedsAfterCreate": func(ctx context.Context, t *testing.T, c keyvalet.KeysClient, vaultURI string) {
			created, err := c.CreateKey(ctx, vaultURI, "account-key", newTestKeyParameters())
			require.NoError(t, err)
			require.NotZero(t, created)
			require.NotZero(t, created.Key)

			resp, err := c.GetKey(ctx, vaultURI, "account-key", "")
			require.NoError(t, err)
			require.NotZero(t, resp)
			require.NotZero(t, resp.Key)
			require.NotZero(t, resp.Key.KID)
			assert.Equal(t, created.Key.KID.Version(), resp.Key.KID.Version())
		},
		"CreateKeyAddsVersionsAndGetReturnsTheLatest": func(ctx context.Context, t *testing.T, c keyvalet.KeysClient, vaultURI string) {
			first, err := c.CreateKey(ctx, vaultURI, "account-key", newTestKeyParameters())
			require.NoError(t, err)
			require.NotZero(t, first)

			second, err := c.CreateKey(ctx, vaultURI, "account-key", newTestKeyParameters())
			require.NoError(t, err)
			require.NotZero(t, second)
			require.NotEqual(t, first.Key.KID.Version(), second.Key.KID.Version())

			latest, err := c.GetKey(ctx, vaultURI, "account-key", "")
			require.NoError(t, err)
			require.NotZero(t, latest.Key)
			assert.Equal(t, second.Key.KID.Version(), latest.Key.KID.Version())

			pinned, err := c.GetKey(ctx, vaultURI, "account-key", first.Key.KID.Version())
			require.NoError(t, err)
			require.NotZero(t, pinned.Key)
			assert.Equal(t, first.Key.KID.Version(), pinned.Key.KID.Version())
		},
	}
}

// newTestKeyParameters returns parameters for an RSA key suitable for wrapping
// storage account encryption keys.
func newTestKeyParameters() azkeys.CreateKeyParameters {
	return azkeys.CreateKeyParameters{
		Kty:     to.Ptr(azkeys.KeyTypeRSA),
		KeySize: to.Ptr(int32(2048)),
	}
}
