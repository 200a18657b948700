package mock

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobClient(t *testing.T) {
	assert.Implements(t, (*keyvalet.BlobClient)(nil), &BlobClient{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for tName, tCase := range blobClientTests() {
		t.Run(tName, func(t *testing.T) {
			tctx, tcancel := context.WithTimeout(ctx, defaultTestTimeout)
			defer tcancel()

			ResetGlobalServices()

			accounts := &StorageAccountsClient{}
			account, err := accounts.CreateAccount(tctx, testutil.ResourceGroup(), testutil.NewStorageAccountName(), newBlobTestAccountParameters())
			require.NoError(t, err)
			require.NotZero(t, account)
			require.NotZero(t, account.Properties)

			tCase(tctx, t, utility.FromStringPtr(account.Properties.PrimaryEndpoints.Blob))
		})
	}
}

func TestBlobClientMaker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	ResetGlobalServices()

	maker := &BlobClientMaker{}
	c, err := maker.Make("https://example.blob.core.windows.net/", testSasToken("rw"))
	require.NoError(t, err)
	require.NotZero(t, c)
	assert.Equal(t, "https://example.blob.core.windows.net/", maker.ServiceURL)
	assert.Equal(t, testSasToken("rw"), maker.SasToken)
	require.NotZero(t, maker.Client)
	assert.NoError(t, c.Close(ctx))
}

// blobClientTests are mock-specific tests for the permission-enforcing blob
// client bound to a provisioned mock account's blob endpoint.
func blobClientTests() map[string]func(ctx context.Context, t *testing.T, serviceURL string) {
	return map[string]func(ctx context.Context, t *testing.T, serviceURL string){
		"EnsureContainerCreatesAndIsIdempotent": func(ctx context.Context, t *testing.T, serviceURL string) {
			c := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("acdlpruw")}
			require.NoError(t, c.EnsureContainer(ctx, "proof"))
			assert.NoError(t, c.EnsureContainer(ctx, "proof"), "a container that already exists is not an error")
		},
		"EnsureContainerFailsWithoutCreatePermission": func(ctx context.Context, t *testing.T, serviceURL string) {
			c := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("rlw")}
			err := c.EnsureContainer(ctx, "proof")
			assert.Error(t, err)
			assert.True(t, bloberror.HasCode(err, bloberror.AuthorizationPermissionMismatch))
		},
		"UploadBlobStoresData": func(ctx context.Context, t *testing.T, serviceURL string) {
			c := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("acdlpruw")}
			require.NoError(t, c.EnsureContainer(ctx, "proof"))
			require.NoError(t, c.UploadBlob(ctx, "proof", "proof.txt", []byte("hello")))

			account, err := c.account()
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), account.Containers["proof"]["proof.txt"])
		},
		"UploadBlobFailsWithoutWritePermission": func(ctx context.Context, t *testing.T, serviceURL string) {
			withWrite := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("acdlpruw")}
			require.NoError(t, withWrite.EnsureContainer(ctx, "proof"))

			c := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("rl")}
			err := c.UploadBlob(ctx, "proof", "proof.txt", []byte("hello"))
			assert.Error(t, err)
			assert.True(t, bloberror.HasCode(err, bloberror.AuthorizationPermissionMismatch))
		},
		"UploadBlobFailsWithMissingContainer": func(ctx context.Context, t *testing.T, serviceURL string) {
			c := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("acdlpruw")}
			err := c.UploadBlob(ctx, "nonexistent", "proof.txt", []byte("hello"))
			assert.Error(t, err)
			assert.True(t, bloberror.HasCode(err, bloberror.ContainerNotFound))
		},
		"DeleteContainerRemovesContainer": func(ctx context.Context, t *testing.T, serviceURL string) {
			c := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("acdlpruw")}
			require.NoError(t, c.EnsureContainer(ctx, "proof"))
			require.NoError(t, c.DeleteContainer(ctx, "proof"))

			err := c.DeleteContainer(ctx, "proof")
			assert.Error(t, err)
			assert.True(t, bloberror.HasCode(err, bloberror.ContainerNotFound))
		},
		"DeleteContainerFailsWithoutDeletePermission": func(ctx context.Context, t *testing.T, serviceURL string) {
			withDelete := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("acdlpruw")}
			require.NoError(t, withDelete.EnsureContainer(ctx, "proof"))

			c := &BlobClient{ServiceURL: serviceURL, SasToken: testSasToken("crw")}
			err := c.DeleteContainer(ctx, "proof")
			assert.Error(t, err)
			assert.True(t, bloberror.HasCode(err, bloberror.AuthorizationPermissionMismatch))
		},
	}
}

func newBlobTestAccountParameters() armstorage.AccountCreateParameters {
	return armstorage.AccountCreateParameters{
		Location: utility.ToStringPtr(testutil.Region()),
		Kind:     to.Ptr(armstorage.KindStorageV2),
		SKU:      &armstorage.SKU{Name: to.Ptr(armstorage.SKUNameStandardLRS)},
		Identity: &armstorage.Identity{Type: to.Ptr(armstorage.IdentityTypeSystemAssigned)},
	}
}

// testSasToken builds a fake account SAS token carrying the given permission
// letters.
func testSasToken(perms string) string {
	token := url.Values{}
	token.Set("sv", "2021-08-06")
	token.Set("ss", "b")
	token.Set("srt", "sco")
	token.Set("sp", perms)
	token.Set("se", time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	token.Set("sig", "mock-signature")
	return token.Encode()
}
