package azutil

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/evergreen-ci/utility"
)

// HasErrorCode returns whether the error is a service response error carrying
// one of the given service error codes.
func HasErrorCode(err error, codes ...string) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	return utility.StringSliceContains(codes, respErr.ErrorCode)
}

// HasStatusCode returns whether the error is a service response error with
// one of the given HTTP status codes.
func HasStatusCode(err error, statusCodes ...int) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	for _, code := range statusCodes {
		if respErr.StatusCode == code {
			return true
		}
	}
	return false
}

// IsNotFoundError returns whether the error is a service response error for a
// resource that does not exist.
func IsNotFoundError(err error) bool {
	return HasStatusCode(err, http.StatusNotFound)
}

// IsConflictError returns whether the error is a service response error for a
// resource that already exists or is in a conflicting state.
func IsConflictError(err error) bool {
	return HasStatusCode(err, http.StatusConflict)
}
