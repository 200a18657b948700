package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// CheckAzureEnvVars checks that the required environment variables are defined
// for testing against any Azure API.
func CheckAzureEnvVars(t *testing.T) {
	CheckEnvVars(t,
		"AZURE_SUBSCRIPTION_ID",
		"AZURE_TENANT_ID",
		"AZURE_CLIENT_ID",
		"AZURE_CLIENT_SECRET",
	)
}

// CheckAzureEnvVarsForProvisioning checks that the required environment
// variables are defined for tests that create resources in a resource group.
// The resource group is expected to already exist.
func CheckAzureEnvVarsForProvisioning(t *testing.T) {
	CheckEnvVars(t,
		"AZURE_SUBSCRIPTION_ID",
		"AZURE_TENANT_ID",
		"AZURE_CLIENT_ID",
		"AZURE_CLIENT_SECRET",
		"AZURE_REGION",
		"AZURE_RESOURCE_GROUP",
	)
}

// CheckAzureEnvVarsForKeyVault checks that the required environment variables
// are defined for testing against key vault, including the operator's object
// ID that access policies are granted to.
func CheckAzureEnvVarsForKeyVault(t *testing.T) {
	CheckEnvVars(t,
		"AZURE_SUBSCRIPTION_ID",
		"AZURE_TENANT_ID",
		"AZURE_CLIENT_ID",
		"AZURE_CLIENT_SECRET",
		"AZURE_CLIENT_OBJECT_ID",
		"AZURE_REGION",
		"AZURE_RESOURCE_GROUP",
	)
}

// CheckEnvVars checks that the required environment variables are set.
func CheckEnvVars(t *testing.T, envVars ...string) {
	var missing []string

	for _, envVar := range envVars {
		if os.Getenv(envVar) == "" {
			missing = append(missing, envVar)
		}
	}

	if len(missing) > 0 {
		require.FailNow(t, fmt.Sprintf("missing required Azure environment variables: %s", missing))
	}
}
