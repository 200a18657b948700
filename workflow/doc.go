/*
Package workflow runs the managed storage account provisioning flow end to
end: it acquires a vault, creates a storage account, hands the account keys
to the vault, exercises the managed key lifecycle and SAS definitions, proves
a minted token against the blob data plane, and tears the registration back
down.

Steps run strictly in order and the first failure aborts the run. There is no
rollback: whatever a failed run leaves behind is left for the operator.
*/
package workflow
