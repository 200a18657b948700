/*
Package keyvalet provides interfaces to delegate storage account key
management to a key vault. The vault holds the account keys, rotates them on a
schedule, and surfaces shared access signatures as managed secrets, so
applications never handle a raw account key.

The Valet interface provides an abstraction to register storage accounts with
a vault and manage their keys without needing to make direct calls to the
APIs to perform frequently-used operations.

The client interfaces (VaultsClient, StorageAccountsClient,
AuthorizationClient, ManagedStorageClient, and friends) provide convenience
wrappers around the individual Azure APIs. If the Valet does not fulfill your
needs, you can make API calls directly instead.
*/
package keyvalet
