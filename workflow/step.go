package workflow

import "github.com/pkg/errors"

// Step is a named stage of the provisioning workflow.
type Step string

const (
	// StepEnsureResourceGroup creates the resource group when it does not
	// already exist.
	StepEnsureResourceGroup Step = "ensure-resource-group"
	// StepAcquireVault looks up the configured vault or creates one under a
	// generated name.
	StepAcquireVault Step = "acquire-vault"
	// StepCreateStorageAccount creates the storage account and waits for it
	// to finish provisioning.
	StepCreateStorageAccount Step = "create-storage-account"
	// StepGrantKeyOperatorRole assigns the key operator role on the storage
	// account to the vault's service principal.
	StepGrantKeyOperatorRole Step = "grant-key-operator-role"
	// StepGrantVaultAccess adds the operator's storage permissions to the
	// vault's access policies.
	StepGrantVaultAccess Step = "grant-vault-access"
	// StepRegisterAccount binds the storage account to the vault: in managed
	// keys mode the vault takes over the account keys, and in customer
	// managed key mode the account's encryption is pointed at a vault key.
	StepRegisterAccount Step = "register-account"
	// StepUpdateKeyPolicy changes the active key and the regeneration
	// settings on the registration.
	StepUpdateKeyPolicy Step = "update-key-policy"
	// StepRegenerateKey rotates a storage account key on demand.
	StepRegenerateKey Step = "regenerate-key"
	// StepAuditRegistrations lists what the vault currently manages for the
	// account.
	StepAuditRegistrations Step = "audit-registrations"
	// StepIssueSas creates a SAS definition, reads the minted token from the
	// vault, and proves it against the blob data plane.
	StepIssueSas Step = "issue-sas"
	// StepTeardown removes the registration and the storage account. The
	// vault is always left in place.
	StepTeardown Step = "teardown"
)

// Sequence returns the workflow steps in execution order.
func Sequence() []Step {
	return []Step{
		StepEnsureResourceGroup,
		StepAcquireVault,
		StepCreateStorageAccount,
		StepGrantKeyOperatorRole,
		StepGrantVaultAccess,
		StepRegisterAccount,
		StepUpdateKeyPolicy,
		StepRegenerateKey,
		StepAuditRegistrations,
		StepIssueSas,
		StepTeardown,
	}
}

// Validate checks that the step is a recognized workflow stage.
func (s Step) Validate() error {
	switch s {
	case StepEnsureResourceGroup, StepAcquireVault, StepCreateStorageAccount,
		StepGrantKeyOperatorRole, StepGrantVaultAccess, StepRegisterAccount,
		StepUpdateKeyPolicy, StepRegenerateKey, StepAuditRegistrations,
		StepIssueSas, StepTeardown:
		return nil
	default:
		return errors.Errorf("unrecognized workflow step '%s'", s)
	}
}
