package vault

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/keyvalet/keyvalet"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

const (
	// apiVersion is the key vault data-plane API version the client speaks.
	apiVersion = "7.4"

	// Scope is the token scope for the key vault data plane in the public
	// cloud.
	Scope = "https://vault.azure.net/.default"

	moduleName    = "github.com/keyvalet/keyvalet"
	moduleVersion = "v0.1.0"
)

// BasicManagedStorageClient provides a ManagedStorageClient implementation
// that speaks to the key vault managed storage endpoints directly, since no
// current SDK package covers them. It supports retrying requests using
// exponential backoff and jitter.
type BasicManagedStorageClient struct {
	pl    runtime.Pipeline
	ready bool
	opts  *azutil.ClientOptions
}

// NewBasicManagedStorageClient creates a new client for the key vault managed
// storage endpoints from the given options.
func NewBasicManagedStorageClient(opts azutil.ClientOptions) (*BasicManagedStorageClient, error) {
	c := &BasicManagedStorageClient{
		opts: &opts,
	}
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	return c, nil
}

func (c *BasicManagedStorageClient) setup() error {
	if err := c.opts.Validate(); err != nil {
		return errors.Wrap(err, "invalid options")
	}

	if c.ready {
		return nil
	}

	plOpts := runtime.PipelineOptions{
		PerRetry: []policy.Policy{runtime.NewBearerTokenPolicy(c.opts.Credential, []string{Scope}, nil)},
	}
	c.pl = runtime.NewPipeline(moduleName, moduleVersion, plOpts, c.opts.GetClientOptions())
	c.ready = true

	return nil
}

// newRequest builds a request against the vault with the API version set. The
// path segments are escaped.
func (c *BasicManagedStorageClient) newRequest(ctx context.Context, method, vaultURI string, segments ...string) (*policy.Request, error) {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}

	endpoint := runtime.JoinPaths(vaultURI, escaped...) + "?api-version=" + apiVersion
	req, err := runtime.NewRequest(ctx, method, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}

	return req, nil
}

// do sends the request and decodes the response body into out on any of the
// expected status codes. Other statuses are returned as response errors.
func (c *BasicManagedStorageClient) do(req *policy.Request, endpoint string, in interface{}, out interface{}, statusCodes ...int) error {
	resp, err := c.pl.Do(req)
	if err != nil {
		grip.Debug(message.WrapError(err, azutil.MakeAPILogMessage(endpoint, in)))
		return errors.Wrap(err, "sending request")
	}

	if !runtime.HasStatusCode(resp, statusCodes...) {
		respErr := runtime.NewResponseError(resp)
		grip.Debug(message.WrapError(respErr, azutil.MakeAPILogMessage(endpoint, in)))
		return respErr
	}

	if out == nil {
		return nil
	}

	return errors.Wrap(runtime.UnmarshalAsJSON(resp, out), "decoding response")
}

// SetStorageAccount registers a storage account with the vault for managed
// key rotation, or replaces an existing registration.
func (c *BasicManagedStorageClient) SetStorageAccount(ctx context.Context, vaultURI, accountName string, attachment keyvalet.StorageAccountAttachment) (*keyvalet.StorageBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}
	if err := attachment.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid attachment")
	}

	req, err := c.newRequest(ctx, http.MethodPut, vaultURI, "storage", accountName)
	if err != nil {
		return nil, err
	}
	if err := runtime.MarshalAsJSON(req, attachment); err != nil {
		return nil, errors.Wrap(err, "encoding attachment")
	}

	var bundle keyvalet.StorageBundle
	if err := c.do(req, "SetStorageAccount", attachment, &bundle, http.StatusOK); err != nil {
		return nil, err
	}

	return &bundle, nil
}

// UpdateStorageAccount updates the registration of a storage account, such as
// its active key name or regeneration period.
func (c *BasicManagedStorageClient) UpdateStorageAccount(ctx context.Context, vaultURI, accountName string, patch keyvalet.StorageAccountPatch) (*keyvalet.StorageBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}
	if err := patch.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid patch")
	}

	req, err := c.newRequest(ctx, http.MethodPatch, vaultURI, "storage", accountName)
	if err != nil {
		return nil, err
	}
	if err := runtime.MarshalAsJSON(req, patch); err != nil {
		return nil, errors.Wrap(err, "encoding patch")
	}

	var bundle keyvalet.StorageBundle
	if err := c.do(req, "UpdateStorageAccount", patch, &bundle, http.StatusOK); err != nil {
		return nil, c.mapNotRegistered(err, accountName)
	}

	return &bundle, nil
}

// GetStorageAccount gets the registration of a storage account.
func (c *BasicManagedStorageClient) GetStorageAccount(ctx context.Context, vaultURI, accountName string) (*keyvalet.StorageBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	req, err := c.newRequest(ctx, http.MethodGet, vaultURI, "storage", accountName)
	if err != nil {
		return nil, err
	}

	var bundle keyvalet.StorageBundle
	if err := c.do(req, "GetStorageAccount", accountName, &bundle, http.StatusOK); err != nil {
		return nil, c.mapNotRegistered(err, accountName)
	}

	return &bundle, nil
}

// storageListResult is a page of registered storage accounts.
type storageListResult struct {
	Value    []keyvalet.StorageBundle `json:"value"`
	NextLink *string                  `json:"nextLink"`
}

// ListStorageAccounts lists all storage accounts registered with the vault.
func (c *BasicManagedStorageClient) ListStorageAccounts(ctx context.Context, vaultURI string) ([]keyvalet.StorageBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	var bundles []keyvalet.StorageBundle

	req, err := c.newRequest(ctx, http.MethodGet, vaultURI, "storage")
	if err != nil {
		return nil, err
	}

	for {
		var page storageListResult
		if err := c.do(req, "ListStorageAccounts", vaultURI, &page, http.StatusOK); err != nil {
			return nil, err
		}

		bundles = append(bundles, page.Value...)

		if page.NextLink == nil || *page.NextLink == "" {
			break
		}

		req, err = runtime.NewRequest(ctx, http.MethodGet, *page.NextLink)
		if err != nil {
			return nil, errors.Wrap(err, "creating request for the next page")
		}
	}

	return bundles, nil
}

// DeleteStorageAccount removes the registration of a storage account from the
// vault. The storage account itself is unaffected.
func (c *BasicManagedStorageClient) DeleteStorageAccount(ctx context.Context, vaultURI, accountName string) (*keyvalet.StorageBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	req, err := c.newRequest(ctx, http.MethodDelete, vaultURI, "storage", accountName)
	if err != nil {
		return nil, err
	}

	var bundle keyvalet.StorageBundle
	if err := c.do(req, "DeleteStorageAccount", accountName, &bundle, http.StatusOK); err != nil {
		return nil, c.mapNotRegistered(err, accountName)
	}

	return &bundle, nil
}

// regenerateStorageKeyParameters is the body of a key regeneration request.
type regenerateStorageKeyParameters struct {
	KeyName string `json:"keyName"`
}

// RegenerateStorageKey asks the vault to regenerate the named account key and
// take over the new value.
func (c *BasicManagedStorageClient) RegenerateStorageKey(ctx context.Context, vaultURI, accountName, keyName string) (*keyvalet.StorageBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	req, err := c.newRequest(ctx, http.MethodPost, vaultURI, "storage", accountName, "regeneratekey")
	if err != nil {
		return nil, err
	}
	params := regenerateStorageKeyParameters{KeyName: keyName}
	if err := runtime.MarshalAsJSON(req, params); err != nil {
		return nil, errors.Wrap(err, "encoding parameters")
	}

	var bundle keyvalet.StorageBundle
	if err := c.do(req, "RegenerateStorageKey", params, &bundle, http.StatusOK); err != nil {
		return nil, c.mapNotRegistered(err, accountName)
	}

	return &bundle, nil
}

// SetSasDefinition creates or updates a SAS definition for a registered
// storage account.
func (c *BasicManagedStorageClient) SetSasDefinition(ctx context.Context, vaultURI, accountName, sasName string, props keyvalet.SasDefinitionProperties) (*keyvalet.SasDefinitionBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}
	if err := props.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid SAS definition properties")
	}

	req, err := c.newRequest(ctx, http.MethodPut, vaultURI, "storage", accountName, "sas", sasName)
	if err != nil {
		return nil, err
	}
	if err := runtime.MarshalAsJSON(req, props); err != nil {
		return nil, errors.Wrap(err, "encoding SAS definition properties")
	}

	var bundle keyvalet.SasDefinitionBundle
	if err := c.do(req, "SetSasDefinition", props, &bundle, http.StatusOK, http.StatusCreated); err != nil {
		return nil, c.mapNotRegistered(err, accountName)
	}

	return &bundle, nil
}

// GetSasDefinition gets a SAS definition for a registered storage account.
func (c *BasicManagedStorageClient) GetSasDefinition(ctx context.Context, vaultURI, accountName, sasName string) (*keyvalet.SasDefinitionBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	req, err := c.newRequest(ctx, http.MethodGet, vaultURI, "storage", accountName, "sas", sasName)
	if err != nil {
		return nil, err
	}

	var bundle keyvalet.SasDefinitionBundle
	if err := c.do(req, "GetSasDefinition", sasName, &bundle, http.StatusOK); err != nil {
		return nil, c.mapNotRegistered(err, accountName)
	}

	return &bundle, nil
}

// sasDefinitionListResult is a page of SAS definitions.
type sasDefinitionListResult struct {
	Value    []keyvalet.SasDefinitionBundle `json:"value"`
	NextLink *string                        `json:"nextLink"`
}

// ListSasDefinitions lists the SAS definitions for a registered storage
// account.
func (c *BasicManagedStorageClient) ListSasDefinitions(ctx context.Context, vaultURI, accountName string) ([]keyvalet.SasDefinitionBundle, error) {
	if err := c.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up client")
	}

	var bundles []keyvalet.SasDefinitionBundle

	req, err := c.newRequest(ctx, http.MethodGet, vaultURI, "storage", accountName, "sas")
	if err != nil {
		return nil, err
	}

	for {
		var page sasDefinitionListResult
		if err := c.do(req, "ListSasDefinitions", accountName, &page, http.StatusOK); err != nil {
			return nil, c.mapNotRegistered(err, accountName)
		}

		bundles = append(bundles, page.Value...)

		if page.NextLink == nil || *page.NextLink == "" {
			break
		}

		req, err = runtime.NewRequest(ctx, http.MethodGet, *page.NextLink)
		if err != nil {
			return nil, errors.Wrap(err, "creating request for the next page")
		}
	}

	return bundles, nil
}

// mapNotRegistered converts a not-found response into the typed registration
// error so callers can distinguish a missing registration from other
// failures.
func (c *BasicManagedStorageClient) mapNotRegistered(err error, accountName string) error {
	if azutil.IsNotFoundError(err) {
		return keyvalet.NewAccountNotRegisteredError(accountName)
	}
	return err
}

// Close closes the client and cleans up its resources.
func (c *BasicManagedStorageClient) Close(ctx context.Context) error {
	c.opts.Close()
	return nil
}
