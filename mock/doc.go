/*
Package mock provides mock implementations of interfaces for testing purposes.

The mock clients can be used for running tests without relying on
infrastructure in Azure to be set up. By default they are backed by fake
in-memory services (the global key vault, storage, authorization, and resource
group services), so code exercised against the mocks observes the same
cross-client effects it would against the real services: registering an
account makes it listable, creating a SAS definition mints a readable secret,
and a token minted with a permission set is enforced by the blob client.

The global fake services are shared package state. Tests must reset them
between runs and cannot run in parallel against them.
*/
package mock
