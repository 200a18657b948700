package azutil

import (
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/tracing/azotel"
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"go.opentelemetry.io/otel/trace"
)

// ClientOptions represent Azure client options such as authentication and
// making requests.
type ClientOptions struct {
	// Credential is the token credential used to authenticate API requests.
	Credential azcore.TokenCredential
	// SubscriptionID is the subscription that management-plane API calls act
	// on.
	SubscriptionID *string
	// Cloud is the cloud configuration (authority host and service audiences)
	// for API calls. Defaults to the Azure public cloud.
	Cloud *cloud.Configuration
	// RetryOpts sets the retry policy for API requests.
	RetryOpts *utility.RetryOptions
	// HTTPClient is the HTTP client to use to make requests.
	HTTPClient *http.Client
	// TracerProvider instruments API calls for distributed tracing.
	TracerProvider trace.TracerProvider

	policyOpts *policy.ClientOptions

	ownsHTTPClient bool
}

// NewClientOptions returns new unconfigured client options.
func NewClientOptions() *ClientOptions {
	return &ClientOptions{}
}

// SetCredential sets the client's token credential.
func (o *ClientOptions) SetCredential(cred azcore.TokenCredential) *ClientOptions {
	o.Credential = cred
	return o
}

// SetSubscriptionID sets the subscription that management-plane API calls act
// on.
func (o *ClientOptions) SetSubscriptionID(id string) *ClientOptions {
	o.SubscriptionID = &id
	return o
}

// SetCloud sets the cloud configuration for the client.
func (o *ClientOptions) SetCloud(c cloud.Configuration) *ClientOptions {
	o.Cloud = &c
	return o
}

// SetRetryOptions sets the client's retry options.
func (o *ClientOptions) SetRetryOptions(opts utility.RetryOptions) *ClientOptions {
	o.RetryOpts = &opts
	return o
}

// SetHTTPClient sets the HTTP client to use.
func (o *ClientOptions) SetHTTPClient(hc *http.Client) *ClientOptions {
	o.HTTPClient = hc
	return o
}

// SetOtelTracerProvider sets the OpenTelemetry tracer provider used to
// instrument API calls.
func (o *ClientOptions) SetOtelTracerProvider(tp trace.TracerProvider) *ClientOptions {
	o.TracerProvider = tp
	return o
}

// Validate checks that all required fields are given and sets defaults for
// unspecified options.
func (o *ClientOptions) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(o.Credential == nil, "must provide a token credential")
	catcher.NewWhen(o.SubscriptionID == nil, "must provide a subscription ID")

	if catcher.HasErrors() {
		return catcher.Resolve()
	}

	if o.Cloud == nil {
		o.Cloud = &cloud.AzurePublic
	}

	if o.HTTPClient == nil {
		o.HTTPClient = utility.GetHTTPClient()
		o.ownsHTTPClient = true
	}

	if o.RetryOpts == nil {
		o.RetryOpts = &utility.RetryOptions{}
	}
	o.RetryOpts.Validate()

	return nil
}

// GetClientOptions gets the resolved pipeline options shared by all service
// clients built from these client options.
func (o *ClientOptions) GetClientOptions() *policy.ClientOptions {
	if o.policyOpts != nil {
		return o.policyOpts
	}

	opts := policy.ClientOptions{
		Cloud:     *o.Cloud,
		Retry:     o.getRetryPolicy(),
		Transport: o.HTTPClient,
	}
	if o.TracerProvider != nil {
		opts.TracingProvider = azotel.NewTracingProvider(o.TracerProvider, nil)
	}

	o.policyOpts = &opts

	return o.policyOpts
}

// GetARMClientOptions gets the options to build management-plane (ARM)
// clients.
func (o *ClientOptions) GetARMClientOptions() *arm.ClientOptions {
	return &arm.ClientOptions{ClientOptions: *o.GetClientOptions()}
}

// getRetryPolicy translates the retry options into the transport-level retry
// policy. The policy counts retries rather than attempts.
func (o *ClientOptions) getRetryPolicy() policy.RetryOptions {
	retryOpts := policy.RetryOptions{}
	if o.RetryOpts == nil {
		return retryOpts
	}
	if o.RetryOpts.MaxAttempts > 0 {
		retryOpts.MaxRetries = int32(o.RetryOpts.MaxAttempts - 1)
	}
	retryOpts.RetryDelay = o.RetryOpts.MinDelay
	retryOpts.MaxRetryDelay = o.RetryOpts.MaxDelay
	return retryOpts
}

// Close cleans up the HTTP client if it is owned by this client.
func (o *ClientOptions) Close() {
	if o.ownsHTTPClient {
		utility.PutHTTPClient(o.HTTPClient)
	}
}
