package keyvalet

import (
	"testing"

	"github.com/evergreen-ci/utility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageAccountAttachment(t *testing.T) {
	t.Run("ValidateSucceedsWithRequiredFields", func(t *testing.T) {
		attachment := NewStorageAccountAttachment().
			SetResourceID("id").
			SetActiveKeyName("key1")
		assert.NoError(t, attachment.Validate())
	})
	t.Run("ValidateFailsWithNoFieldsSet", func(t *testing.T) {
		assert.Error(t, NewStorageAccountAttachment().Validate())
	})
	t.Run("ValidateFailsWithAutoRegenerationButNoPeriod", func(t *testing.T) {
		attachment := NewStorageAccountAttachment().
			SetResourceID("id").
			SetActiveKeyName("key1").
			SetAutoRegenerateKey(true)
		assert.Error(t, attachment.Validate())

		attachment.SetRegenerationPeriod("P30D")
		assert.NoError(t, attachment.Validate())
	})
}

func TestStorageAccountPatch(t *testing.T) {
	t.Run("ValidateFailsWithNoChanges", func(t *testing.T) {
		assert.Error(t, NewStorageAccountPatch().Validate())
	})
	t.Run("ValidateSucceedsWithOneChange", func(t *testing.T) {
		assert.NoError(t, NewStorageAccountPatch().SetActiveKeyName("key2").Validate())
		assert.NoError(t, NewStorageAccountPatch().SetAutoRegenerateKey(false).Validate())
		assert.NoError(t, NewStorageAccountPatch().SetRegenerationPeriod("P60D").Validate())
	})
	t.Run("ValidateFailsWithEmptyActiveKeyName", func(t *testing.T) {
		assert.Error(t, NewStorageAccountPatch().SetActiveKeyName("").Validate())
	})
}

func TestSasType(t *testing.T) {
	assert.NoError(t, SasTypeAccount.Validate())
	assert.NoError(t, SasTypeService.Validate())
	assert.Error(t, SasType("tenant").Validate())
	assert.Error(t, SasType("").Validate())
}

func TestSasDefinitionProperties(t *testing.T) {
	t.Run("ValidateSucceedsWithAllFields", func(t *testing.T) {
		props := NewSasDefinitionProperties().
			SetTemplateURI("sv=2021-08-06&sp=rl").
			SetSasType(SasTypeAccount).
			SetValidityPeriod("PT2H")
		assert.NoError(t, props.Validate())
	})
	t.Run("ValidateFailsWithNoFieldsSet", func(t *testing.T) {
		assert.Error(t, NewSasDefinitionProperties().Validate())
	})
	t.Run("ValidateFailsWithoutValidityPeriod", func(t *testing.T) {
		props := NewSasDefinitionProperties().
			SetTemplateURI("sv=2021-08-06&sp=rl").
			SetSasType(SasTypeAccount)
		assert.Error(t, props.Validate())
	})
}

func TestStorageBundleAccountName(t *testing.T) {
	t.Run("ExtractsTheTrailingSegment", func(t *testing.T) {
		bundle := StorageBundle{ID: utility.ToStringPtr("https://kv.vault.azure.net/storage/myaccount")}
		assert.Equal(t, "myaccount", bundle.AccountName())
	})
	t.Run("ToleratesATrailingSlash", func(t *testing.T) {
		bundle := StorageBundle{ID: utility.ToStringPtr("https://kv.vault.azure.net/storage/myaccount/")}
		assert.Equal(t, "myaccount", bundle.AccountName())
	})
	t.Run("EmptyWithoutID", func(t *testing.T) {
		assert.Zero(t, (&StorageBundle{}).AccountName())
	})
}

func TestSasDefinitionBundle(t *testing.T) {
	t.Run("DefinitionNameExtractsTheTrailingSegment", func(t *testing.T) {
		bundle := SasDefinitionBundle{ID: utility.ToStringPtr("https://kv.vault.azure.net/storage/myaccount/sas/mydef")}
		assert.Equal(t, "mydef", bundle.DefinitionName())
	})
	t.Run("SecretNameParsesTheSecretID", func(t *testing.T) {
		bundle := SasDefinitionBundle{SecretID: utility.ToStringPtr("https://kv.vault.azure.net/secrets/myaccount-mydef")}
		name, err := bundle.SecretName()
		require.NoError(t, err)
		assert.Equal(t, "myaccount-mydef", name)
	})
	t.Run("SecretNameFailsWithoutSecretID", func(t *testing.T) {
		_, err := (&SasDefinitionBundle{}).SecretName()
		assert.Error(t, err)
	})
	t.Run("SecretNameFailsWhenTheIDIsNotASecretURL", func(t *testing.T) {
		bundle := SasDefinitionBundle{SecretID: utility.ToStringPtr("https://kv.vault.azure.net/storage/myaccount")}
		_, err := bundle.SecretName()
		assert.Error(t, err)
	})
}
