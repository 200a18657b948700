package testutil

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/stretchr/testify/require"
)

// NewVaultName returns a new random vault name that satisfies the service's
// name constraints (3-24 characters, alphanumeric and hyphens, starting with
// a letter). The randomness also acts as a namespace so tests running
// concurrently on different machines do not interfere with each other's
// resources.
func NewVaultName() string {
	return "kv" + utility.MakeRandomString(10)
}

// SubscriptionID returns the subscription that test resources are created
// under. The fallback keeps non-integration runs aligned with the mock
// services.
func SubscriptionID() string {
	return envOr("AZURE_SUBSCRIPTION_ID", "12345678-1234-1234-1234-123456789abc")
}

// TenantID returns the tenant that test vaults are created under.
func TenantID() string {
	return envOr("AZURE_TENANT_ID", "87654321-4321-4321-4321-cba987654321")
}

// Region returns the region that test resources are created in.
func Region() string {
	return envOr("AZURE_REGION", "westus")
}

// ResourceGroup returns the resource group that test resources are created
// in.
func ResourceGroup() string {
	return envOr("AZURE_RESOURCE_GROUP", "keyvalet-test")
}

// ClientObjectID returns the object ID of the principal running the tests,
// which test vaults grant their access policies to.
func ClientObjectID() string {
	return envOr("AZURE_CLIENT_OBJECT_ID", "00000000-0000-0000-0000-000000000001")
}

// StorageAccountResourceID returns the full resource ID of the named test
// storage account.
func StorageAccountResourceID(accountName string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Storage/storageAccounts/%s", SubscriptionID(), ResourceGroup(), accountName)
}

// NewVaultCreateParameters returns parameters for a standard-SKU vault with a
// single access policy granting the test principal key and secret
// permissions.
func NewVaultCreateParameters() armkeyvault.VaultCreateOrUpdateParameters {
	return armkeyvault.VaultCreateOrUpdateParameters{
		Location: utility.ToStringPtr(Region()),
		Properties: &armkeyvault.VaultProperties{
			TenantID: utility.ToStringPtr(TenantID()),
			SKU: &armkeyvault.SKU{
				Family: to.Ptr(armkeyvault.SKUFamilyA),
				Name:   to.Ptr(armkeyvault.SKUNameStandard),
			},
			AccessPolicies: []*armkeyvault.AccessPolicyEntry{{
				TenantID: utility.ToStringPtr(TenantID()),
				ObjectID: utility.ToStringPtr(ClientObjectID()),
				Permissions: &armkeyvault.Permissions{
					Keys:    to.SliceOfPtrs(armkeyvault.PossibleKeyPermissionsValues()...),
					Secrets: to.SliceOfPtrs(armkeyvault.PossibleSecretPermissionsValues()...),
					Storage: to.SliceOfPtrs(armkeyvault.PossibleStoragePermissionsValues()...),
				},
			}},
		},
	}
}

func envOr(envVar, fallback string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return fallback
}

// NewStorageAccountName returns a new random storage account name that
// satisfies the service's name constraints (3-24 characters, lowercase
// alphanumeric).
func NewStorageAccountName() string {
	return "kvsa" + utility.MakeRandomString(10)
}

// StaticTokenCredential is a token credential that hands out a fixed token
// without talking to an identity provider.
type StaticTokenCredential struct {
	Token string
}

// GetToken returns the fixed token with an expiry an hour out.
func (c StaticTokenCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.Token,
		ExpiresOn: time.Now().Add(time.Hour),
	}, nil
}

// ValidNonIntegrationOptions returns valid options to create an Azure client
// that doesn't make any actual requests to Azure.
func ValidNonIntegrationOptions() azutil.ClientOptions {
	return *azutil.NewClientOptions().
		SetCredential(StaticTokenCredential{Token: "fake-token"}).
		SetSubscriptionID("12345678-1234-1234-1234-123456789abc")
}

// ValidIntegrationOptions returns valid options to create an Azure client that
// can make actual requests to Azure for integration testing. Credentials, the
// tenant, and the subscription are extracted from the standard environment
// variables.
func ValidIntegrationOptions(t *testing.T, hc *http.Client) azutil.ClientOptions {
	cred, err := azutil.NewServicePrincipalCredential(
		os.Getenv("AZURE_TENANT_ID"),
		os.Getenv("AZURE_CLIENT_ID"),
		os.Getenv("AZURE_CLIENT_SECRET"),
		hc,
	)
	require.NoError(t, err)

	opts := azutil.NewClientOptions().
		SetCredential(cred).
		SetSubscriptionID(os.Getenv("AZURE_SUBSCRIPTION_ID"))
	if hc != nil {
		opts.SetHTTPClient(hc)
	}

	return *opts
}
