package authorization

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// roleAssignmentExistsCode is the service error code for a role assignment
// that already exists at the scope.
const roleAssignmentExistsCode = "RoleAssignmentExists"

// BasicAuthorizationClient provides an AuthorizationClient implementation
// that wraps the role-based access control API. It supports retrying requests
// using exponential backoff and jitter.
type BasicAuthorizationClient struct {
	definitions *armauthorization.RoleDefinitionsClient
	assignments *armauthorization.RoleAssignmentsClient
	opts        *azutil.ClientOptions
}

// NewBasicAuthorizationClient creates a new client for the role-based access
// control API from the given options.
func NewBasicAuthorizationClient(opts azutil.ClientOptions) (*BasicAuthorizationClient, error) {
	c := &BasicAuthorizationClient{
		opts: &opts,
	}
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	return c, nil
}

func (c *BasicAuthorizationClient) setup() error {
	if err := c.opts.Validate(); err != nil {
		return errors.Wrap(err, "invalid options")
	}

	if c.definitions != nil && c.assignments != nil {
		return nil
	}

	definitions, err := armauthorization.NewRoleDefinitionsClient(c.opts.Credential, c.opts.GetARMClientOptions())
	if err != nil {
		return errors.Wrap(err, "creating role definitions client")
	}

	assignments, err := armauthorization.NewRoleAssignmentsClient(utility.FromStringPtr(c.opts.SubscriptionID), c.opts.Credential, c.opts.GetARMClientOptions())
	if err != nil {
		return errors.Wrap(err, "creating role assignments client")
	}

	c.definitions = definitions
	c.assignments = assignments

	return nil
}

// FindRoleDefinition finds the role definition with the given role name at
// the scope. It errors if no such role is defined.
func (c *BasicAuthorizationClient) FindRoleDefinition(ctx context.Context, scope, roleName string) (*armauthorization.RoleDefinition, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	filter := fmt.Sprintf("roleName eq '%s'", roleName)
	pager := c.definitions.NewListPager(scope, &armauthorization.RoleDefinitionsClientListOptions{Filter: &filter})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("ListRoleDefinitions", filter)))
			return nil, err
		}

		for _, def := range page.Value {
			if def == nil || def.Properties == nil {
				continue
			}
			if utility.FromStringPtr(def.Properties.RoleName) == roleName {
				return def, nil
			}
		}
	}

	return nil, errors.Errorf("no role definition named '%s' at scope '%s'", roleName, scope)
}

// CreateRoleAssignment assigns a role to a principal at the scope. If an
// equivalent assignment already exists, it returns an error matched by
// IsRoleAssignmentExistsError.
func (c *BasicAuthorizationClient) CreateRoleAssignment(ctx context.Context, scope, assignmentName string, params armauthorization.RoleAssignmentCreateParameters) (*armauthorization.RoleAssignment, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	resp, err := c.assignments.Create(ctx, scope, assignmentName, params, nil)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage("CreateRoleAssignment", params)))
		if azutil.HasErrorCode(err, roleAssignmentExistsCode) {
			var principal string
			if params.Properties != nil {
				principal = utility.FromStringPtr(params.Properties.PrincipalID)
			}
			return nil, keyvalet.NewRoleAssignmentExistsError(scope, principal)
		}
		return nil, err
	}

	return &resp.RoleAssignment, nil
}

// Close closes the client and cleans up its resources.
func (c *BasicAuthorizationClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
