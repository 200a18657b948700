package azutil

import (
	"context"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// NewServicePrincipalCredential builds a token credential that authenticates
// as a service principal with a client secret.
func NewServicePrincipalCredential(tenantID, clientID, clientSecret string, hc *http.Client) (azcore.TokenCredential, error) {
	opts := azidentity.ClientSecretCredentialOptions{}
	if hc != nil {
		opts.ClientOptions.Transport = hc
	}

	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, &opts)
	if err != nil {
		return nil, errors.Wrap(err, "creating service principal credential")
	}

	return cred, nil
}

// NewDeviceCredential builds a token credential that authenticates a user
// interactively with the device code flow. The login prompt is logged so the
// user can complete it in a browser.
func NewDeviceCredential(tenantID, clientID string, hc *http.Client) (azcore.TokenCredential, error) {
	opts := azidentity.DeviceCodeCredentialOptions{
		TenantID: tenantID,
		ClientID: clientID,
		UserPrompt: func(ctx context.Context, dc azidentity.DeviceCodeMessage) error {
			grip.Info(dc.Message)
			return nil
		},
	}
	if hc != nil {
		opts.ClientOptions.Transport = hc
	}

	cred, err := azidentity.NewDeviceCodeCredential(&opts)
	if err != nil {
		return nil, errors.Wrap(err, "creating device code credential")
	}

	return cred, nil
}

// NewDefaultCredential builds a token credential from the ambient environment
// (environment variables, workload identity, managed identity, or the CLI).
func NewDefaultCredential(hc *http.Client) (azcore.TokenCredential, error) {
	opts := azidentity.DefaultAzureCredentialOptions{}
	if hc != nil {
		opts.ClientOptions.Transport = hc
	}

	cred, err := azidentity.NewDefaultAzureCredential(&opts)
	if err != nil {
		return nil, errors.Wrap(err, "creating default credential")
	}

	return cred, nil
}
