package mock

import (
	"context"

	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
)

// ManagedAccount provides a mock implementation of a keyvalet.ManagedAccount
// backed by another managed account implementation.
type ManagedAccount struct {
	keyvalet.ManagedAccount

	InfoOutput *keyvalet.StorageBundle
	InfoError  error

	SetActiveKeyInput *string
	SetActiveKeyError error

	RotateInput *string
	RotateError error

	CreateSasDefinitionInput  []keyvalet.SasDefinitionOptions
	CreateSasDefinitionOutput *keyvalet.SasDefinitionBundle
	CreateSasDefinitionError  error

	ListSasDefinitionsOutput []keyvalet.SasDefinitionBundle
	ListSasDefinitionsError  error

	DeregisterError error
	DeregisterCalls int
}

// NewManagedAccount creates a mock managed account backed by the given managed
// account.
func NewManagedAccount(a keyvalet.ManagedAccount) *ManagedAccount {
	return &ManagedAccount{
		ManagedAccount: a,
	}
}

// Info returns the mock vault record of the account. The mock output can be
// customized. By default, it will return the backing account's record.
func (a *ManagedAccount) Info(ctx context.Context) (*keyvalet.StorageBundle, error) {
	if a.InfoOutput != nil || a.InfoError != nil {
		return a.InfoOutput, a.InfoError
	}

	return a.ManagedAccount.Info(ctx)
}

// SetActiveKey saves the input and makes the mock vault hand out the named
// key. The mock output can be customized. By default, it will update the
// backing account's registration.
func (a *ManagedAccount) SetActiveKey(ctx context.Context, keyName string) error {
	a.SetActiveKeyInput = utility.ToStringPtr(keyName)

	if a.SetActiveKeyError != nil {
		return a.SetActiveKeyError
	}

	return a.ManagedAccount.SetActiveKey(ctx, keyName)
}

// Rotate saves the input and makes the mock vault regenerate the named key.
// The mock output can be customized. By default, it will rotate the key
// through the backing account.
func (a *ManagedAccount) Rotate(ctx context.Context, keyName string) error {
	a.RotateInput = utility.ToStringPtr(keyName)

	if a.RotateError != nil {
		return a.RotateError
	}

	return a.ManagedAccount.Rotate(ctx, keyName)
}

// CreateSasDefinition saves the input and creates a mock SAS definition. The
// mock output can be customized. By default, it will create the definition
// through the backing account.
func (a *ManagedAccount) CreateSasDefinition(ctx context.Context, opts ...*keyvalet.SasDefinitionOptions) (*keyvalet.SasDefinitionBundle, error) {
	for _, opt := range opts {
		if opt != nil {
			a.CreateSasDefinitionInput = append(a.CreateSasDefinitionInput, *opt)
		}
	}

	if a.CreateSasDefinitionOutput != nil || a.CreateSasDefinitionError != nil {
		return a.CreateSasDefinitionOutput, a.CreateSasDefinitionError
	}

	return a.ManagedAccount.CreateSasDefinition(ctx, opts...)
}

// ListSasDefinitions lists the account's mock SAS definitions. The mock output
// can be customized. By default, it will list the definitions through the
// backing account.
func (a *ManagedAccount) ListSasDefinitions(ctx context.Context) ([]keyvalet.SasDefinitionBundle, error) {
	if a.ListSasDefinitionsOutput != nil || a.ListSasDefinitionsError != nil {
		return a.ListSasDefinitionsOutput, a.ListSasDefinitionsError
	}

	return a.ManagedAccount.ListSasDefinitions(ctx)
}

// Deregister removes the mock account's registration from the vault. The mock
// output can be customized. By default, it will deregister the backing
// account.
func (a *ManagedAccount) Deregister(ctx context.Context) error {
	a.DeregisterCalls++

	if a.DeregisterError != nil {
		return a.DeregisterError
	}

	return a.ManagedAccount.Deregister(ctx)
}
