package azutil

import (
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHasErrorCode(t *testing.T) {
	respErr := &azcore.ResponseError{ErrorCode: "RoleAssignmentExists", StatusCode: http.StatusConflict}

	t.Run("MatchesTheCarriedCode", func(t *testing.T) {
		assert.True(t, HasErrorCode(respErr, "RoleAssignmentExists"))
		assert.True(t, HasErrorCode(respErr, "SomethingElse", "RoleAssignmentExists"))
	})
	t.Run("DoesNotMatchOtherCodes", func(t *testing.T) {
		assert.False(t, HasErrorCode(respErr, "VaultNotFound"))
	})
	t.Run("MatchesThroughWrapping", func(t *testing.T) {
		assert.True(t, HasErrorCode(errors.Wrap(respErr, "creating role assignment"), "RoleAssignmentExists"))
	})
	t.Run("DoesNotMatchNonResponseErrors", func(t *testing.T) {
		assert.False(t, HasErrorCode(errors.New("RoleAssignmentExists"), "RoleAssignmentExists"))
		assert.False(t, HasErrorCode(nil, "RoleAssignmentExists"))
	})
}

func TestHasStatusCode(t *testing.T) {
	respErr := &azcore.ResponseError{StatusCode: http.StatusNotFound}

	t.Run("MatchesTheCarriedStatus", func(t *testing.T) {
		assert.True(t, HasStatusCode(respErr, http.StatusNotFound))
		assert.True(t, HasStatusCode(respErr, http.StatusConflict, http.StatusNotFound))
	})
	t.Run("DoesNotMatchOtherStatuses", func(t *testing.T) {
		assert.False(t, HasStatusCode(respErr, http.StatusConflict))
	})
	t.Run("MatchesThroughWrapping", func(t *testing.T) {
		assert.True(t, HasStatusCode(errors.Wrap(respErr, "getting registration"), http.StatusNotFound))
	})
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(&azcore.ResponseError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsNotFoundError(&azcore.ResponseError{StatusCode: http.StatusForbidden}))
	assert.False(t, IsNotFoundError(errors.New("not found")))
	assert.False(t, IsNotFoundError(nil))
}

func TestIsConflictError(t *testing.T) {
	assert.True(t, IsConflictError(&azcore.ResponseError{StatusCode: http.StatusConflict}))
	assert.False(t, IsConflictError(&azcore.ResponseError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsConflictError(nil))
}
