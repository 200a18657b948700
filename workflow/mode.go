package workflow

import "github.com/pkg/errors"

// Mode selects how the workflow binds the storage account to the vault.
type Mode string

const (
	// ModeManagedKeys registers the storage account with the vault so the
	// vault holds the account keys and regenerates them on a schedule.
	ModeManagedKeys Mode = "managed-keys"
	// ModeCustomerManagedKey creates a key in the vault and points the
	// storage account's encryption at it. The account keys stay with the
	// storage service.
	ModeCustomerManagedKey Mode = "customer-managed-key"
)

// Validate checks that the mode is recognized.
func (m Mode) Validate() error {
	switch m {
	case ModeManagedKeys, ModeCustomerManagedKey:
		return nil
	default:
		return errors.Errorf("unrecognized workflow mode '%s'", m)
	}
}
