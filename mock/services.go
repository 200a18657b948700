package mock

// ResetGlobalServices resets all the global fake services to an initialized
// but clean state.
func ResetGlobalServices() {
	ResetGlobalKeyVaultService()
	ResetGlobalStorageService()
	ResetGlobalAuthorizationService()
	ResetGlobalResourceGroupService()
}
