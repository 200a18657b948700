package keyvalet

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestRoleAssignmentExistsError(t *testing.T) {
	assert.Implements(t, (*error)(nil), new(RoleAssignmentExistsError))
	t.Run("IsRoleAssignmentExistsError", func(t *testing.T) {
		err := NewRoleAssignmentExistsError("scope", "principal")
		assert.Error(t, err)
		assert.True(t, IsRoleAssignmentExistsError(err))
	})
	t.Run("OtherErrorsAreNotRoleAssignmentExists", func(t *testing.T) {
		err := errors.New("some error")
		assert.False(t, IsRoleAssignmentExistsError(err))
	})
	t.Run("WrappedRoleAssignmentExistsError", func(t *testing.T) {
		err := errors.Wrap(NewRoleAssignmentExistsError("scope", "principal"), "wrapping message")
		assert.True(t, IsRoleAssignmentExistsError(err))
	})
}

func TestAccountNotRegisteredError(t *testing.T) {
	assert.Implements(t, (*error)(nil), new(AccountNotRegisteredError))
	t.Run("IsAccountNotRegisteredError", func(t *testing.T) {
		err := NewAccountNotRegisteredError("account")
		assert.Error(t, err)
		assert.True(t, IsAccountNotRegisteredError(err))
	})
	t.Run("OtherErrorsAreNotAccountNotRegistered", func(t *testing.T) {
		err := errors.New("some error")
		assert.False(t, IsAccountNotRegisteredError(err))
	})
	t.Run("WrappedAccountNotRegisteredError", func(t *testing.T) {
		err := errors.Wrap(NewAccountNotRegisteredError("account"), "wrapping message")
		assert.True(t, IsAccountNotRegisteredError(err))
	})
}
