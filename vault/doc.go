/*
Package vault provides clients for the key vault APIs that carry the managed
storage account workflow: the management plane that creates and updates
vaults, the managed storage data plane that registers accounts and serves SAS
definitions, and the secrets and keys data planes.

The managed storage client is built directly on the azcore pipeline because
no current SDK package covers those endpoints.
*/
package vault
