package keyvalet

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
)

// AuthorizationClient provides a common interface to interact with the
// role-based access control management plane. Implementations must handle
// retrying and backoff.
type AuthorizationClient interface {
	// FindRoleDefinition finds the role definition with the given role name at
	// the scope. It errors if no such role is defined.
	FindRoleDefinition(ctx context.Context, scope, roleName string) (*armauthorization.RoleDefinition, error)
	// CreateRoleAssignment assigns a role to a principal at the scope. If an
	// equivalent assignment already exists, implementations must return an
	// error matched by IsRoleAssignmentExistsError so that callers can treat
	// it as already granted.
	CreateRoleAssignment(ctx context.Context, scope, assignmentName string, params armauthorization.RoleAssignmentCreateParameters) (*armauthorization.RoleAssignment, error)
	// Close closes the client and cleans up its resources. Implementations
	// should ensure that this is idempotent.
	Close(ctx context.Context) error
}
