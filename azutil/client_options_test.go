package azutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/evergreen-ci/utility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticCredential satisfies azcore.TokenCredential without talking to an
// identity provider.
type staticCredential struct{}

func (staticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "fake-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestClientOptions(t *testing.T) {
	t.Run("SetCredential", func(t *testing.T) {
		cred := staticCredential{}
		opts := NewClientOptions().SetCredential(cred)
		assert.Equal(t, cred, opts.Credential)
	})
	t.Run("SetSubscriptionID", func(t *testing.T) {
		id := "12345678-1234-1234-1234-123456789abc"
		opts := NewClientOptions().SetSubscriptionID(id)
		require.NotNil(t, opts.SubscriptionID)
		assert.Equal(t, id, *opts.SubscriptionID)
	})
	t.Run("SetCloud", func(t *testing.T) {
		opts := NewClientOptions().SetCloud(cloud.AzureGovernment)
		require.NotNil(t, opts.Cloud)
		assert.Equal(t, cloud.AzureGovernment, *opts.Cloud)
	})
	t.Run("SetRetryOptions", func(t *testing.T) {
		retryOpts := utility.RetryOptions{
			MaxAttempts: 10,
			MinDelay:    100 * time.Millisecond,
			MaxDelay:    time.Second,
		}
		opts := NewClientOptions().SetRetryOptions(retryOpts)
		require.NotNil(t, opts.RetryOpts)
		assert.Equal(t, retryOpts, *opts.RetryOpts)
	})
	t.Run("SetHTTPClient", func(t *testing.T) {
		hc := http.DefaultClient
		opts := NewClientOptions().SetHTTPClient(hc)
		require.NotNil(t, opts.HTTPClient)
		assert.Equal(t, hc, opts.HTTPClient)
		assert.False(t, opts.ownsHTTPClient)
	})
	t.Run("Validate", func(t *testing.T) {
		t.Run("SucceedsWithAllOptionsSet", func(t *testing.T) {
			hc := utility.GetHTTPClient()
			defer utility.PutHTTPClient(hc)

			opts := NewClientOptions().
				SetCredential(staticCredential{}).
				SetSubscriptionID("12345678-1234-1234-1234-123456789abc").
				SetCloud(cloud.AzurePublic).
				SetRetryOptions(utility.RetryOptions{MaxAttempts: 10}).
				SetHTTPClient(hc)
			assert.NoError(t, opts.Validate())
		})
		t.Run("FailsWithoutCredential", func(t *testing.T) {
			opts := NewClientOptions().SetSubscriptionID("12345678-1234-1234-1234-123456789abc")
			assert.Error(t, opts.Validate())
		})
		t.Run("FailsWithoutSubscriptionID", func(t *testing.T) {
			opts := NewClientOptions().SetCredential(staticCredential{})
			assert.Error(t, opts.Validate())
		})
		t.Run("DefaultsTheCloudAndHTTPClient", func(t *testing.T) {
			opts := NewClientOptions().
				SetCredential(staticCredential{}).
				SetSubscriptionID("12345678-1234-1234-1234-123456789abc")
			require.NoError(t, opts.Validate())
			defer opts.Close()

			require.NotNil(t, opts.Cloud)
			assert.Equal(t, cloud.AzurePublic, *opts.Cloud)
			assert.NotNil(t, opts.HTTPClient)
			assert.True(t, opts.ownsHTTPClient)
		})
	})
	t.Run("GetClientOptions", func(t *testing.T) {
		t.Run("TranslatesAttemptsIntoRetries", func(t *testing.T) {
			opts := NewClientOptions().
				SetCredential(staticCredential{}).
				SetSubscriptionID("12345678-1234-1234-1234-123456789abc").
				SetRetryOptions(utility.RetryOptions{
					MaxAttempts: 5,
					MinDelay:    100 * time.Millisecond,
					MaxDelay:    time.Second,
				})
			require.NoError(t, opts.Validate())
			defer opts.Close()

			clientOpts := opts.GetClientOptions()
			require.NotNil(t, clientOpts)
			assert.EqualValues(t, 4, clientOpts.Retry.MaxRetries)
			assert.Equal(t, 100*time.Millisecond, clientOpts.Retry.RetryDelay)
			assert.Equal(t, time.Second, clientOpts.Retry.MaxRetryDelay)
		})
		t.Run("IsResolvedOnce", func(t *testing.T) {
			opts := NewClientOptions().
				SetCredential(staticCredential{}).
				SetSubscriptionID("12345678-1234-1234-1234-123456789abc")
			require.NoError(t, opts.Validate())
			defer opts.Close()

			assert.Same(t, opts.GetClientOptions(), opts.GetClientOptions())
		})
	})
}
