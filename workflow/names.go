package workflow

import "github.com/evergreen-ci/utility"

// Vault names allow 3-24 alphanumeric characters and hyphens; storage account
// names allow 3-24 lowercase alphanumeric characters. A short prefix plus a
// 20-character random hex suffix keeps both within the cap.

func generateVaultName() string {
	return "kv" + utility.MakeRandomString(10)
}

func generateStorageAccountName() string {
	return "kvsa" + utility.MakeRandomString(10)
}
