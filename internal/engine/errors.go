package engine

import "errors"

var (
	// ErrDepositNotFound means the deposit id or index never existed.
	ErrDepositNotFound = errors.New("deposit not found")

	// ErrDepositNotPending means the record already reached COMPLETED or
	// CANCELLED; terminal-state protection, never retried.
	ErrDepositNotPending = errors.New("deposit is not pending")

	// ErrReleaseFailed wraps a ledger rejection or confirmation timeout.
	// The record is reverted to PENDING with approvals intact, so the next
	// approval attempt or an operator retry can re-attempt the release.
	ErrReleaseFailed = errors.New("release failed")

	// ErrCancelNotAllowed means the policy threshold was already met; the
	// deposit can only complete or fail the release from here.
	ErrCancelNotAllowed = errors.New("cancel not allowed after policy threshold met")

	// ErrRoleNotRequired rejects an approval by a role the deposit's
	// policy never consults.
	ErrRoleNotRequired = errors.New("approval role not required by policy")

	// ErrWrongApprover rejects an approval whose identity does not hold
	// the claimed role on the escrow.
	ErrWrongApprover = errors.New("approver does not hold this role on the escrow")

	// ErrUnknownParty means a wallet address has no party record.
	ErrUnknownParty = errors.New("unknown party")

	// ErrEscrowNotFound means no escrow mirror row exists for the address.
	ErrEscrowNotFound = errors.New("escrow not found")

	// ErrEscrowNotSettled rejects closing an escrow that still has
	// deposits in flight.
	ErrEscrowNotSettled = errors.New("escrow has deposits in flight")
)
