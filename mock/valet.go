package mock

import (
	"context"

	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
)

// Valet provides a mock implementation of a keyvalet.Valet backed by another
// valet implementation.
type Valet struct {
	keyvalet.Valet

	GrantKeyOperatorScope     *string
	GrantKeyOperatorPrincipal *string
	GrantKeyOperatorRoleName  *string
	GrantKeyOperatorError     error
	GrantKeyOperatorCalls     int

	RegisterAccountInput  []keyvalet.AccountRegistrationOptions
	RegisterAccountOutput keyvalet.ManagedAccount
	RegisterAccountError  error

	GetAccountVault  *string
	GetAccountInput  *string
	GetAccountOutput keyvalet.ManagedAccount
	GetAccountError  error

	ListAccountsInput  *string
	ListAccountsOutput []keyvalet.StorageBundle
	ListAccountsError  error
}

// NewValet creates a mock valet backed by the given valet.
func NewValet(v keyvalet.Valet) *Valet {
	return &Valet{
		Valet: v,
	}
}

// GrantKeyOperator saves the input and grants the role to the principal. The
// mock output can be customized. By default, it will return the result of
// granting the role with the backing valet.
func (v *Valet) GrantKeyOperator(ctx context.Context, scope, principal, roleName string) error {
	v.GrantKeyOperatorScope = utility.ToStringPtr(scope)
	v.GrantKeyOperatorPrincipal = utility.ToStringPtr(principal)
	v.GrantKeyOperatorRoleName = utility.ToStringPtr(roleName)
	v.GrantKeyOperatorCalls++

	if v.GrantKeyOperatorError != nil {
		return v.GrantKeyOperatorError
	}

	return v.Valet.GrantKeyOperator(ctx, scope, principal, roleName)
}

// RegisterAccount saves the input and registers the account with the vault.
// The mock output can be customized. By default, it will return the result of
// registering the account with the backing valet.
func (v *Valet) RegisterAccount(ctx context.Context, opts ...*keyvalet.AccountRegistrationOptions) (keyvalet.ManagedAccount, error) {
	for _, opt := range opts {
		if opt != nil {
			v.RegisterAccountInput = append(v.RegisterAccountInput, *opt)
		}
	}

	if v.RegisterAccountOutput != nil || v.RegisterAccountError != nil {
		return v.RegisterAccountOutput, v.RegisterAccountError
	}

	return v.Valet.RegisterAccount(ctx, opts...)
}

// GetAccount saves the input and returns a handle for a registered account.
// The mock output can be customized. By default, it will return the result of
// getting the account from the backing valet.
func (v *Valet) GetAccount(ctx context.Context, vaultURI, accountName string) (keyvalet.ManagedAccount, error) {
	v.GetAccountVault = utility.ToStringPtr(vaultURI)
	v.GetAccountInput = utility.ToStringPtr(accountName)

	if v.GetAccountOutput != nil || v.GetAccountError != nil {
		return v.GetAccountOutput, v.GetAccountError
	}

	return v.Valet.GetAccount(ctx, vaultURI, accountName)
}

// ListAccounts saves the input and lists the vault's registered accounts. The
// mock output can be customized. By default, it will return the result of
// listing the accounts with the backing valet.
func (v *Valet) ListAccounts(ctx context.Context, vaultURI string) ([]keyvalet.StorageBundle, error) {
	v.ListAccountsInput = utility.ToStringPtr(vaultURI)

	if v.ListAccountsOutput != nil || v.ListAccountsError != nil {
		return v.ListAccountsOutput, v.ListAccountsError
	}

	return v.Valet.ListAccounts(ctx, vaultURI)
}
