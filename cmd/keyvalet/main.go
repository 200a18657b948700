package main

import (
	"context"
	"net/http"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet/authorization"
	"github.com/keyvalet/keyvalet/azutil"
	"github.com/keyvalet/keyvalet/resources"
	"github.com/keyvalet/keyvalet/storage"
	"github.com/keyvalet/keyvalet/vault"
	"github.com/keyvalet/keyvalet/workflow"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		grip.Error(message.WrapError(err, message.Fields{
			"message": "workflow failed",
		}))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		interactive    bool
		keepResources  bool
		mode           string
		sasPermissions string
	)

	cmd := &cobra.Command{
		Use:   "keyvalet",
		Short: "Delegate storage account key management to a key vault",
		Long: `keyvalet runs a provisioning workflow that hands a storage account's keys to
a key vault: it acquires a vault, creates a storage account, grants the vault
the key operator role on the account, registers the account for managed key
rotation, exercises the key lifecycle, mints a SAS definition whose tokens
the vault serves as a managed secret, proves a minted token against the blob
data plane, and tears the registration back down.

Steps run strictly in order and the first failure aborts the run. Credentials
and resource settings come from the standard AZURE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := workflow.NewConfigFromEnvironment()
			conf.Interactive = interactive
			conf.KeepResources = keepResources
			conf.Mode = workflow.Mode(mode)
			conf.SasPermissions = sasPermissions
			if err := conf.Validate(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}

			return run(cmd.Context(), conf)
		},
	}

	cmd.Flags().BoolVar(&interactive, "interactive", false, "authenticate a user with a device code prompt instead of the client secret")
	cmd.Flags().BoolVar(&keepResources, "keep-resources", false, "skip teardown so the run's resources can be inspected")
	cmd.Flags().StringVar(&mode, "mode", string(workflow.ModeManagedKeys), "how the account binds to the vault (managed-keys or customer-managed-key)")
	cmd.Flags().StringVar(&sasPermissions, "sas-permissions", workflow.DefaultSasPermissions, "account SAS permission letters for the SAS definition template")

	return cmd
}

func run(ctx context.Context, conf *workflow.Config) error {
	hc := utility.GetHTTPClient()
	defer utility.PutHTTPClient(hc)

	cred, err := newCredential(conf, hc)
	if err != nil {
		return errors.Wrap(err, "acquiring a credential")
	}

	opts := *azutil.NewClientOptions().
		SetCredential(cred).
		SetSubscriptionID(conf.SubscriptionID).
		SetHTTPClient(hc)

	runnerOpts, closers, err := newRunnerOptions(conf, opts)
	defer func() {
		for _, closeClient := range closers {
			grip.Error(message.WrapError(closeClient(ctx), message.Fields{
				"message": "closing client",
			}))
		}
	}()
	if err != nil {
		return errors.Wrap(err, "building clients")
	}

	runner, err := workflow.NewRunner(runnerOpts)
	if err != nil {
		return errors.Wrap(err, "building the workflow runner")
	}

	return runner.Run(ctx)
}

// newCredential builds the identity the workflow runs as: the configured
// service principal, or an interactively authenticated user when the
// operator asked for a device code login.
func newCredential(conf *workflow.Config, hc *http.Client) (azcore.TokenCredential, error) {
	if conf.Interactive {
		return azutil.NewDeviceCredential(conf.TenantID, conf.ClientID, hc)
	}
	return azutil.NewServicePrincipalCredential(conf.TenantID, conf.ClientID, conf.ClientSecret, hc)
}

// newRunnerOptions builds every client the workflow needs from one set of
// client options, returning closers for whatever was built before any error.
func newRunnerOptions(conf *workflow.Config, opts azutil.ClientOptions) (*workflow.RunnerOptions, []func(context.Context) error, error) {
	var closers []func(context.Context) error

	resourceGroups, err := resources.NewBasicResourceGroupsClient(opts)
	if err != nil {
		return nil, closers, errors.Wrap(err, "building the resource groups client")
	}
	closers = append(closers, resourceGroups.Close)

	vaults, err := vault.NewBasicVaultsClient(opts)
	if err != nil {
		return nil, closers, errors.Wrap(err, "building the vaults client")
	}
	closers = append(closers, vaults.Close)

	accounts, err := storage.NewBasicStorageAccountsClient(opts)
	if err != nil {
		return nil, closers, errors.Wrap(err, "building the storage accounts client")
	}
	closers = append(closers, accounts.Close)

	runnerOpts := workflow.NewRunnerOptions().
		SetConfig(conf).
		SetResourceGroupsClient(resourceGroups).
		SetVaultsClient(vaults).
		SetStorageAccountsClient(accounts).
		SetBlobClientMaker(storage.NewBlobClientMaker(opts))

	switch conf.Mode {
	case workflow.ModeCustomerManagedKey:
		keys, err := vault.NewBasicKeysClient(opts)
		if err != nil {
			return nil, closers, errors.Wrap(err, "building the keys client")
		}
		closers = append(closers, keys.Close)
		runnerOpts.SetKeysClient(keys)
	default:
		auth, err := authorization.NewBasicAuthorizationClient(opts)
		if err != nil {
			return nil, closers, errors.Wrap(err, "building the authorization client")
		}
		closers = append(closers, auth.Close)

		managedStorage, err := vault.NewBasicManagedStorageClient(opts)
		if err != nil {
			return nil, closers, errors.Wrap(err, "building the managed storage client")
		}
		closers = append(closers, managedStorage.Close)

		secrets, err := vault.NewBasicSecretsClient(opts)
		if err != nil {
			return nil, closers, errors.Wrap(err, "building the secrets client")
		}
		closers = append(closers, secrets.Close)

		runnerOpts.
			SetAuthorizationClient(auth).
			SetManagedStorageClient(managedStorage).
			SetSecretsClient(secrets)
	}

	return runnerOpts, closers, nil
}
