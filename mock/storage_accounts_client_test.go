package mock

import (
	"context"
	"testing"

	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/internal/testcase"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStorageAccountsClient(t *testing.T) {
	assert.Implements(t, (*keyvalet.StorageAccountsClient)(nil), &StorageAccountsClient{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanupAccount := func(ctx context.Context, t *testing.T, c keyvalet.StorageAccountsClient, accountName string) {
		assert.NoError(t, c.DeleteAccount(ctx, testutil.ResourceGroup(), accountName))
	}

	for tName, tCase := range testcase.StorageAccountsClientTests(cleanupAccount) {
		t.Run(tName, func(t *testing.T) {
			tctx, tcancel := context.WithTimeout(ctx, defaultTestTimeout)
			defer tcancel()

			ResetGlobalServices()

			c := &StorageAccountsClient{}
			defer func() {
				assert.NoError(t, c.Close(tctx))
			}()

			tCase(tctx, t, c)
		})
	}
}
