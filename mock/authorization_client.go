package mock

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
	"github.com/pkg/errors"
)

// StorageKeyOperatorRoleDefinition is the definition name the fake
// authorization service seeds for the key operator role, matching the
// well-known built-in role.
const StorageKeyOperatorRoleDefinition = "81a9662b-bebf-436f-a333-f67b29880f12"

// StoredRoleDefinition represents a mock role definition in the global
// authorization service.
type StoredRoleDefinition struct {
	ID       string
	Name     string
	RoleName string
}

func (d StoredRoleDefinition) export() *armauthorization.RoleDefinition {
	return &armauthorization.RoleDefinition{
		ID:   utility.ToStringPtr(d.ID),
		Name: utility.ToStringPtr(d.Name),
		Properties: &armauthorization.RoleDefinitionProperties{
			RoleName: utility.ToStringPtr(d.RoleName),
		},
	}
}

// StoredRoleAssignment represents a mock role assignment in the global
// authorization service.
type StoredRoleAssignment struct {
	Name             string
	Scope            string
	RoleDefinitionID string
	PrincipalID      string
}

func (a StoredRoleAssignment) export() *armauthorization.RoleAssignment {
	return &armauthorization.RoleAssignment{
		ID:   utility.ToStringPtr(a.Scope + "/providers/Microsoft.Authorization/roleAssignments/" + a.Name),
		Name: utility.ToStringPtr(a.Name),
		Properties: &armauthorization.RoleAssignmentProperties{
			RoleDefinitionID: utility.ToStringPtr(a.RoleDefinitionID),
			PrincipalID:      utility.ToStringPtr(a.PrincipalID),
			Scope:            utility.ToStringPtr(a.Scope),
		},
	}
}

// AuthorizationService is a global implementation of the role-based access
// control management plane that provides a simplified in-memory implementation
// of the service. This can be used indirectly with the AuthorizationClient, or
// used directly.
type AuthorizationService struct {
	RoleDefinitions map[string]StoredRoleDefinition
	RoleAssignments map[string]StoredRoleAssignment
}

// AddRoleDefinition stores a mock role definition under the given role name
// and definition name.
func (s *AuthorizationService) AddRoleDefinition(roleName, name string) {
	s.RoleDefinitions[roleName] = StoredRoleDefinition{
		ID:       "/subscriptions/" + MockSubscriptionID + "/providers/Microsoft.Authorization/roleDefinitions/" + name,
		Name:     name,
		RoleName: roleName,
	}
}

// GlobalAuthorizationService represents the global fake authorization service
// state.
var GlobalAuthorizationService AuthorizationService

func init() {
	ResetGlobalAuthorizationService()
}

// ResetGlobalAuthorizationService resets the global fake authorization service
// to an initialized but clean state with the built-in key operator role
// seeded.
func ResetGlobalAuthorizationService() {
	GlobalAuthorizationService = AuthorizationService{
		RoleDefinitions: map[string]StoredRoleDefinition{},
		RoleAssignments: map[string]StoredRoleAssignment{},
	}
	GlobalAuthorizationService.AddRoleDefinition(keyvalet.StorageKeyOperatorRole, StorageKeyOperatorRoleDefinition)
}

// AuthorizationClient provides a mock implementation of a
// keyvalet.AuthorizationClient. This makes it possible to introspect on inputs
// to the client and control the client's output. It provides some default
// implementations where possible. By default, it will issue the API calls to
// the fake GlobalAuthorizationService.
type AuthorizationClient struct {
	FindRoleDefinitionScope  *string
	FindRoleDefinitionInput  *string
	FindRoleDefinitionOutput *armauthorization.RoleDefinition
	FindRoleDefinitionError  error

	CreateRoleAssignmentInput  *armauthorization.RoleAssignmentCreateParameters
	CreateRoleAssignmentOutput *armauthorization.RoleAssignment
	CreateRoleAssignmentError  error
	CreateRoleAssignmentCalls  int

	CloseError error
}

// FindRoleDefinition saves the input and returns a mock role definition. The
// mock output can be customized. By default, it will return the cached role
// definition with the given role name if the global authorization service has
// one.
func (c *AuthorizationClient) FindRoleDefinition(ctx context.Context, scope, roleName string) (*armauthorization.RoleDefinition, error) {
	c.FindRoleDefinitionScope = utility.ToStringPtr(scope)
	c.FindRoleDefinitionInput = utility.ToStringPtr(roleName)

	if c.FindRoleDefinitionOutput != nil || c.FindRoleDefinitionError != nil {
		return c.FindRoleDefinitionOutput, c.FindRoleDefinitionError
	}

	def, ok := GlobalAuthorizationService.RoleDefinitions[roleName]
	if !ok {
		return nil, errors.Errorf("no role definition named '%s' at scope '%s'", roleName, scope)
	}

	return def.export(), nil
}

// CreateRoleAssignment saves the input and creates a mock role assignment. The
// mock output can be customized. By default, it will store the assignment in
// the global authorization service, and an equivalent assignment that already
// exists returns the same error the real client maps the service conflict to.
func (c *AuthorizationClient) CreateRoleAssignment(ctx context.Context, scope, assignmentName string, params armauthorization.RoleAssignmentCreateParameters) (*armauthorization.RoleAssignment, error) {
	c.CreateRoleAssignmentInput = &params
	c.CreateRoleAssignmentCalls++

	if c.CreateRoleAssignmentOutput != nil || c.CreateRoleAssignmentError != nil {
		return c.CreateRoleAssignmentOutput, c.CreateRoleAssignmentError
	}

	if params.Properties == nil || params.Properties.RoleDefinitionID == nil || params.Properties.PrincipalID == nil {
		return nil, errors.New("must provide a role definition ID and a principal ID")
	}

	roleDefID := utility.FromStringPtr(params.Properties.RoleDefinitionID)
	principal := utility.FromStringPtr(params.Properties.PrincipalID)
	for _, existing := range GlobalAuthorizationService.RoleAssignments {
		if existing.Scope == scope && existing.RoleDefinitionID == roleDefID && existing.PrincipalID == principal {
			return nil, keyvalet.NewRoleAssignmentExistsError(scope, principal)
		}
	}

	assignment := StoredRoleAssignment{
		Name:             assignmentName,
		Scope:            scope,
		RoleDefinitionID: roleDefID,
		PrincipalID:      principal,
	}
	GlobalAuthorizationService.RoleAssignments[assignmentName] = assignment

	return assignment.export(), nil
}

// Close closes the mock client. The mock output can be customized. By default,
// it is a no-op that returns no error.
func (c *AuthorizationClient) Close(ctx context.Context) error {
	return c.CloseError
}
