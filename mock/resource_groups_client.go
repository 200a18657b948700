package mock

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/evergreen-ci/utility"
	"github.com/pkg/errors"
)

// StoredResourceGroup represents a mock resource group in the global resource
// group service.
type StoredResourceGroup struct {
	Name     string
	Location string
}

func (g StoredResourceGroup) export() *armresources.ResourceGroup {
	return &armresources.ResourceGroup{
		ID:       utility.ToStringPtr("/subscriptions/" + MockSubscriptionID + "/resourceGroups/" + g.Name),
		Name:     utility.ToStringPtr(g.Name),
		Location: utility.ToStringPtr(g.Location),
	}
}

// ResourceGroupService is a global implementation of the resource group
// management plane that provides a simplified in-memory implementation of the
// service. This can be used indirectly with the ResourceGroupsClient, or used
// directly.
type ResourceGroupService struct {
	Groups map[string]StoredResourceGroup
}

// GlobalResourceGroupService represents the global fake resource group service
// state.
var GlobalResourceGroupService ResourceGroupService

func init() {
	ResetGlobalResourceGroupService()
}

// ResetGlobalResourceGroupService resets the global fake resource group
// service to an initialized but clean state.
func ResetGlobalResourceGroupService() {
	GlobalResourceGroupService = ResourceGroupService{
		Groups: map[string]StoredResourceGroup{},
	}
}

// ResourceGroupsClient provides a mock implementation of a
// keyvalet.ResourceGroupsClient. This makes it possible to introspect on
// inputs to the client and control the client's output. It provides some
// default implementations where possible. By default, it will issue the API
// calls to the fake GlobalResourceGroupService.
type ResourceGroupsClient struct {
	CreateOrUpdateResourceGroupName   *string
	CreateOrUpdateResourceGroupInput  *armresources.ResourceGroup
	CreateOrUpdateResourceGroupOutput *armresources.ResourceGroup
	CreateOrUpdateResourceGroupError  error

	CloseError error
}

// CreateOrUpdateResourceGroup saves the input and creates or updates a mock
// resource group. The mock output can be customized. By default, it will
// store the group in the global resource group service and return it.
func (c *ResourceGroupsClient) CreateOrUpdateResourceGroup(ctx context.Context, name string, params armresources.ResourceGroup) (*armresources.ResourceGroup, error) {
	c.CreateOrUpdateResourceGroupName = utility.ToStringPtr(name)
	c.CreateOrUpdateResourceGroupInput = &params

	if c.CreateOrUpdateResourceGroupOutput != nil || c.CreateOrUpdateResourceGroupError != nil {
		return c.CreateOrUpdateResourceGroupOutput, c.CreateOrUpdateResourceGroupError
	}

	if params.Location == nil {
		return nil, errors.New("must provide a location")
	}

	group := StoredResourceGroup{
		Name:     name,
		Location: utility.FromStringPtr(params.Location),
	}
	GlobalResourceGroupService.Groups[name] = group

	return group.export(), nil
}

// Close closes the mock client. The mock output can be customized. By default,
// it is a no-op that returns no error.
func (c *ResourceGroupsClient) Close(ctx context.Context) error {
	return c.CloseError
}
