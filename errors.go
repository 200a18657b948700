package keyvalet

import (
	"fmt"

	"github.com/pkg/errors"
)

// RoleAssignmentExistsError indicates that an equivalent role assignment
// already exists at the requested scope, so the principal already holds the
// role.
type RoleAssignmentExistsError struct {
	Scope     string
	Principal string
}

// NewRoleAssignmentExistsError returns a new error indicating that the
// principal already holds a role at the scope.
func NewRoleAssignmentExistsError(scope, principal string) *RoleAssignmentExistsError {
	return &RoleAssignmentExistsError{Scope: scope, Principal: principal}
}

func (e *RoleAssignmentExistsError) Error() string {
	return fmt.Sprintf("role assignment for principal '%s' already exists at scope '%s'", e.Principal, e.Scope)
}

// IsRoleAssignmentExistsError returns whether the error includes an error for
// a role assignment that already exists.
func IsRoleAssignmentExistsError(err error) bool {
	var existsErr *RoleAssignmentExistsError
	return errors.As(err, &existsErr)
}

// AccountNotRegisteredError indicates that the vault has no registration for
// the named storage account.
type AccountNotRegisteredError struct {
	AccountName string
}

// NewAccountNotRegisteredError returns a new error indicating that the vault
// has no registration for the storage account.
func NewAccountNotRegisteredError(accountName string) *AccountNotRegisteredError {
	return &AccountNotRegisteredError{AccountName: accountName}
}

func (e *AccountNotRegisteredError) Error() string {
	return fmt.Sprintf("storage account '%s' is not registered with the vault", e.AccountName)
}

// IsAccountNotRegisteredError returns whether the error includes an error for
// a storage account that is not registered with the vault.
func IsAccountNotRegisteredError(err error) bool {
	var notRegisteredErr *AccountNotRegisteredError
	return errors.As(err, &notRegisteredErr)
}
