package workflow

import (
	"testing"

	"github.com/keyvalet/keyvalet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		SubscriptionID: "12345678-1234-1234-1234-123456789abc",
		TenantID:       "87654321-4321-4321-4321-cba987654321",
		ClientID:       "11111111-1111-1111-1111-111111111111",
		ClientSecret:   "hunter2",
		ClientObjectID: "00000000-0000-0000-0000-000000000001",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("SucceedsWithRequiredSettings", func(t *testing.T) {
		conf := validTestConfig()
		require.NoError(t, conf.Validate())
	})
	t.Run("ReportsEveryMissingRequiredSetting", func(t *testing.T) {
		conf := &Config{}
		err := conf.Validate()
		require.Error(t, err)
		for _, envVar := range []string{
			EnvSubscriptionID,
			EnvTenantID,
			EnvClientID,
			EnvClientSecret,
			EnvClientObjectID,
		} {
			assert.Contains(t, err.Error(), envVar, "a single validation pass should name every missing setting")
		}
	})
	t.Run("AppliesDefaults", func(t *testing.T) {
		conf := validTestConfig()
		require.NoError(t, conf.Validate())
		assert.Equal(t, DefaultRegion, conf.Region)
		assert.Equal(t, DefaultResourceGroup, conf.ResourceGroup)
		assert.Equal(t, DefaultSasPermissions, conf.SasPermissions)
		assert.Equal(t, keyvalet.KeyVaultServicePrincipal, conf.VaultServicePrincipal)
		assert.Equal(t, ModeManagedKeys, conf.Mode)
		assert.Zero(t, conf.VaultName, "no vault name should be defaulted, since an empty name means create one")
	})
	t.Run("KeepsConfiguredValues", func(t *testing.T) {
		conf := validTestConfig()
		conf.Region = "eastus2"
		conf.ResourceGroup = "my-group"
		conf.VaultName = "my-vault"
		conf.VaultServicePrincipal = "22222222-2222-2222-2222-222222222222"
		conf.SasPermissions = "rl"
		conf.Mode = ModeCustomerManagedKey
		require.NoError(t, conf.Validate())
		assert.Equal(t, "eastus2", conf.Region)
		assert.Equal(t, "my-group", conf.ResourceGroup)
		assert.Equal(t, "my-vault", conf.VaultName)
		assert.Equal(t, "22222222-2222-2222-2222-222222222222", conf.VaultServicePrincipal, "a sovereign cloud override should survive validation")
		assert.Equal(t, "rl", conf.SasPermissions)
		assert.Equal(t, ModeCustomerManagedKey, conf.Mode)
	})
	t.Run("InteractiveDropsTheClientSecretRequirement", func(t *testing.T) {
		conf := validTestConfig()
		conf.ClientSecret = ""
		assert.Error(t, conf.Validate())

		conf.Interactive = true
		assert.NoError(t, conf.Validate())
	})
	t.Run("FailsWithUnrecognizedMode", func(t *testing.T) {
		conf := validTestConfig()
		conf.Mode = "recycle-keys"
		assert.Error(t, conf.Validate())
	})
	t.Run("FailsWithInvalidSasPermissionLetters", func(t *testing.T) {
		conf := validTestConfig()
		conf.SasPermissions = "rwz"
		err := conf.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'z'")
	})
}

func TestNewConfigFromEnvironment(t *testing.T) {
	t.Setenv(EnvSubscriptionID, "sub")
	t.Setenv(EnvTenantID, "tenant")
	t.Setenv(EnvClientID, "client")
	t.Setenv(EnvClientSecret, "secret")
	t.Setenv(EnvClientObjectID, "object")
	t.Setenv(EnvRegion, "centralus")
	t.Setenv(EnvResourceGroup, "group")
	t.Setenv(EnvVaultName, "vault")
	t.Setenv(EnvVaultServicePrincipal, "22222222-2222-2222-2222-222222222222")

	conf := NewConfigFromEnvironment()
	assert.Equal(t, "sub", conf.SubscriptionID)
	assert.Equal(t, "tenant", conf.TenantID)
	assert.Equal(t, "client", conf.ClientID)
	assert.Equal(t, "secret", conf.ClientSecret)
	assert.Equal(t, "object", conf.ClientObjectID)
	assert.Equal(t, "centralus", conf.Region)
	assert.Equal(t, "group", conf.ResourceGroup)
	assert.Equal(t, "vault", conf.VaultName)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", conf.VaultServicePrincipal)
}
