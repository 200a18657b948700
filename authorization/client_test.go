package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/evergreen-ci/utility"
	"github.com/google/uuid"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultIntegrationTimeout = time.Minute

func TestBasicAuthorizationClient(t *testing.T) {
	assert.Implements(t, (*keyvalet.AuthorizationClient)(nil), &BasicAuthorizationClient{})

	testutil.CheckAzureEnvVars(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscriptionScope := "/subscriptions/" + testutil.SubscriptionID()

	for tName, tCase := range map[string]func(ctx context.Context, t *testing.T, c *BasicAuthorizationClient){
		"FindRoleDefinitionSucceedsForBuiltInRole": func(ctx context.Context, t *testing.T, c *BasicAuthorizationClient) {
			roleDef, err := c.FindRoleDefinition(ctx, subscriptionScope, keyvalet.StorageKeyOperatorRole)
			require.NoError(t, err)
			require.NotZero(t, roleDef)
			require.NotZero(t, roleDef.Properties)
			assert.Equal(t, keyvalet.StorageKeyOperatorRole, utility.FromStringPtr(roleDef.Properties.RoleName))
			assert.NotZero(t, utility.FromStringPtr(roleDef.ID))
		},
		"FindRoleDefinitionFailsWithUnknownRole": func(ctx context.Context, t *testing.T, c *BasicAuthorizationClient) {
			roleDef, err := c.FindRoleDefinition(ctx, subscriptionScope, "Grand Vizier")
			assert.Error(t, err)
			assert.Zero(t, roleDef)
		},
		"CreateRoleAssignmentFailsWithInvalidInput": func(ctx context.Context, t *testing.T, c *BasicAuthorizationClient) {
			assignment, err := c.CreateRoleAssignment(ctx, subscriptionScope, uuid.New().String(), armauthorization.RoleAssignmentCreateParameters{})
			assert.Error(t, err)
			assert.Zero(t, assignment)
		},
	} {
		t.Run(tName, func(t *testing.T) {
			tctx, tcancel := context.WithTimeout(ctx, defaultIntegrationTimeout)
			defer tcancel()

			hc := utility.GetHTTPClient()
			defer utility.PutHTTPClient(hc)

			c, err := NewBasicAuthorizationClient(testutil.ValidIntegrationOptions(t, hc))
			require.NoError(t, err)
			require.NotNil(t, c)
			defer func() {
				assert.NoError(t, c.Close(tctx))
			}()

			tCase(tctx, t, c)
		})
	}
}
