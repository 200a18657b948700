package mock

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/evergreen-ci/utility"
	"github.com/keyvalet/keyvalet"
)

// StoredVault represents a mock key vault in the global key vault service.
type StoredVault struct {
	Name          string
	ResourceGroup string
	Location      string
	TenantID      string
	URI           string
	Properties    *armkeyvault.VaultProperties
}

func (v *StoredVault) export() *armkeyvault.Vault {
	props := v.Properties
	if props == nil {
		props = &armkeyvault.VaultProperties{}
	}
	props.VaultURI = utility.ToStringPtr(v.URI)
	return &armkeyvault.Vault{
		ID:         utility.ToStringPtr(fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.KeyVault/vaults/%s", MockSubscriptionID, v.ResourceGroup, v.Name)),
		Name:       utility.ToStringPtr(v.Name),
		Location:   utility.ToStringPtr(v.Location),
		Properties: props,
	}
}

// StoredRegistration represents a mock storage account registration in a mock
// key vault.
type StoredRegistration struct {
	AccountName        string
	ResourceID         string
	ActiveKeyName      string
	AutoRegenerateKey  bool
	RegenerationPeriod string
	Enabled            bool
	Created            time.Time
	Updated            time.Time
}

func (r *StoredRegistration) export(vaultURI string) keyvalet.StorageBundle {
	return keyvalet.StorageBundle{
		ID:                 utility.ToStringPtr(strings.TrimSuffix(vaultURI, "/") + "/storage/" + r.AccountName),
		ResourceID:         utility.ToStringPtr(r.ResourceID),
		ActiveKeyName:      utility.ToStringPtr(r.ActiveKeyName),
		AutoRegenerateKey:  utility.ToBoolPtr(r.AutoRegenerateKey),
		RegenerationPeriod: utility.ToStringPtr(r.RegenerationPeriod),
		Attributes: &keyvalet.StorageAccountAttributes{
			Enabled: utility.ToBoolPtr(r.Enabled),
			Created: utility.ToInt64Ptr(r.Created.Unix()),
			Updated: utility.ToInt64Ptr(r.Updated.Unix()),
		},
	}
}

// StoredSasDefinition represents a mock SAS definition in a mock key vault.
type StoredSasDefinition struct {
	AccountName    string
	Name           string
	TemplateURI    string
	SasType        keyvalet.SasType
	ValidityPeriod string
	Enabled        bool
	Created        time.Time
	Updated        time.Time
}

func (d *StoredSasDefinition) export(vaultURI string) keyvalet.SasDefinitionBundle {
	base := strings.TrimSuffix(vaultURI, "/")
	return keyvalet.SasDefinitionBundle{
		ID:             utility.ToStringPtr(base + "/storage/" + d.AccountName + "/sas/" + d.Name),
		SecretID:       utility.ToStringPtr(base + "/secrets/" + d.secretName()),
		TemplateURI:    utility.ToStringPtr(d.TemplateURI),
		SasType:        &d.SasType,
		ValidityPeriod: utility.ToStringPtr(d.ValidityPeriod),
		Attributes: &keyvalet.StorageAccountAttributes{
			Enabled: utility.ToBoolPtr(d.Enabled),
			Created: utility.ToInt64Ptr(d.Created.Unix()),
			Updated: utility.ToInt64Ptr(d.Updated.Unix()),
		},
	}
}

// secretName is the name of the managed secret that serves the definition's
// tokens, which the real service derives from the account and definition
// names.
func (d *StoredSasDefinition) secretName() string {
	return d.AccountName + "-" + d.Name
}

// StoredVaultSecret represents a mock secret in a mock key vault, including
// the managed secrets that serve SAS definition tokens.
type StoredVaultSecret struct {
	Name    string
	Value   string
	Managed bool
	Created time.Time
}

// StoredVaultKey represents one version of a mock key in a mock key vault.
type StoredVaultKey struct {
	Name    string
	Version string
	Kty     string
	Created time.Time
}

// VaultRegistrations holds the mock storage account registrations of a single
// vault, keyed by account name.
type VaultRegistrations map[string]StoredRegistration

// VaultSasDefinitions holds the mock SAS definitions of a single vault, keyed
// by account name and then definition name.
type VaultSasDefinitions map[string]map[string]StoredSasDefinition

// VaultSecrets holds the mock secrets of a single vault, keyed by secret
// name.
type VaultSecrets map[string]StoredVaultSecret

// VaultKeys holds the versions of the mock keys of a single vault, keyed by
// key name and ordered oldest first.
type VaultKeys map[string][]StoredVaultKey

// KeyVaultService is a global implementation of the key vault management and
// data planes that provides a simplified in-memory implementation of the
// service. It stores vaults by name and their data-plane state by vault URI.
// This can be used indirectly through the mock clients, or used directly.
type KeyVaultService struct {
	Vaults        map[string]StoredVault
	Registrations map[string]VaultRegistrations
	Sas           map[string]VaultSasDefinitions
	Secrets       map[string]VaultSecrets
	Keys          map[string]VaultKeys
}

// GlobalKeyVaultService represents the global fake key vault service state.
var GlobalKeyVaultService KeyVaultService

func init() {
	ResetGlobalKeyVaultService()
}

// ResetGlobalKeyVaultService resets the global fake key vault service to an
// initialized but clean state.
func ResetGlobalKeyVaultService() {
	GlobalKeyVaultService = KeyVaultService{
		Vaults:        map[string]StoredVault{},
		Registrations: map[string]VaultRegistrations{},
		Sas:           map[string]VaultSasDefinitions{},
		Secrets:       map[string]VaultSecrets{},
		Keys:          map[string]VaultKeys{},
	}
}

// VaultURI returns the data-plane URI a mock vault gets for its name.
func VaultURI(vaultName string) string {
	return fmt.Sprintf("https://%s.vault.azure.net/", vaultName)
}

// mintSasToken builds a fake SAS token from a definition's template: it keeps
// the template's service, resource type, and permission parameters, and
// substitutes a fresh expiry and signature the way the real service does.
func mintSasToken(templateURI, validityPeriod string) string {
	query := templateURI
	if idx := strings.Index(templateURI, "?"); idx != -1 {
		query = templateURI[idx+1:]
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		params = url.Values{}
	}

	minted := url.Values{}
	for _, key := range []string{"sv", "ss", "srt", "sp", "spr"} {
		if v := params.Get(key); v != "" {
			minted.Set(key, v)
		}
	}
	minted.Set("se", time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	minted.Set("sig", "mock-signature")

	return minted.Encode()
}
