package workflow

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratedNames(t *testing.T) {
	// The stricter of the two services' rules: 3-24 lowercase alphanumerics,
	// starting with a letter.
	validName := regexp.MustCompile(`^[a-z][a-z0-9]{2,23}$`)

	t.Run("VaultNamesSatisfyTheServiceConstraints", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			name := generateVaultName()
			assert.Regexp(t, validName, name)
			assert.True(t, strings.HasPrefix(name, "kv"), "generated name '%s' should carry the vault prefix", name)
		}
	})
	t.Run("StorageAccountNamesSatisfyTheServiceConstraints", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			name := generateStorageAccountName()
			assert.Regexp(t, validName, name)
			assert.True(t, strings.HasPrefix(name, "kvsa"), "generated name '%s' should carry the storage account prefix", name)
		}
	})
	t.Run("NamesDoNotRepeat", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			name := generateStorageAccountName()
			assert.False(t, seen[name], "generated name '%s' should be unique", name)
			seen[name] = true
		}
	})
}
