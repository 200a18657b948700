package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepValidate(t *testing.T) {
	t.Run("SucceedsForEverySequencedStep", func(t *testing.T) {
		for _, step := range Sequence() {
			assert.NoError(t, step.Validate(), "step '%s'", step)
		}
	})
	t.Run("FailsForUnrecognizedStep", func(t *testing.T) {
		assert.Error(t, Step("make-coffee").Validate())
		assert.Error(t, Step("").Validate())
	})
}

func TestSequence(t *testing.T) {
	seq := Sequence()
	require.NotEmpty(t, seq)

	position := map[Step]int{}
	for i, step := range seq {
		_, seen := position[step]
		require.False(t, seen, "step '%s' should appear once", step)
		position[step] = i
	}

	t.Run("VaultAcquisitionPrecedesAccountCreation", func(t *testing.T) {
		assert.Less(t, position[StepAcquireVault], position[StepCreateStorageAccount])
	})
	t.Run("RoleGrantPrecedesRegistrationAndKeyManagement", func(t *testing.T) {
		assert.Less(t, position[StepCreateStorageAccount], position[StepGrantKeyOperatorRole])
		assert.Less(t, position[StepGrantKeyOperatorRole], position[StepRegisterAccount])
		assert.Less(t, position[StepRegisterAccount], position[StepUpdateKeyPolicy])
		assert.Less(t, position[StepUpdateKeyPolicy], position[StepRegenerateKey])
	})
	t.Run("SasIssuancePrecedesTeardown", func(t *testing.T) {
		assert.Less(t, position[StepAuditRegistrations], position[StepIssueSas])
		assert.Less(t, position[StepIssueSas], position[StepTeardown])
	})
	t.Run("TeardownIsLast", func(t *testing.T) {
		assert.Equal(t, StepTeardown, seq[len(seq)-1])
	})
}

func TestModeValidate(t *testing.T) {
	assert.NoError(t, ModeManagedKeys.Validate())
	assert.NoError(t, ModeCustomerManagedKey.Validate())
	assert.Error(t, Mode("vault-of-the-future").Validate())
	assert.Error(t, Mode("").Validate())
}
