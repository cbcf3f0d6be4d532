// errors.go - Ledger failure taxonomy.
//
// Exactly one sentinel here is retriable from a client's point of view:
// ErrNoteNotFoundOnChain, which a poller may see simply because the note's
// block has not been produced yet. Everything else is a final verdict on a
// transaction or query.

package ledger

import "errors"

var (
	// ErrNoteNotFoundOnChain reports that a note id is unknown to the
	// ledger, or known but not yet visible at the current height. Retriable.
	ErrNoteNotFoundOnChain = errors.New("ledger: note not found on chain")

	// ErrNoteAlreadyConsumed reports a double-consumption attempt.
	ErrNoteAlreadyConsumed = errors.New("ledger: note already consumed")

	// ErrNoteDetailsUnavailable reports an authenticated consumption of a
	// note the chain only holds the header of. The consumer must supply
	// the full note as an unauthenticated input instead.
	ErrNoteDetailsUnavailable = errors.New("ledger: note details not available on chain")

	// ErrNoteNotConsumable reports a note whose execution hint defers
	// consumption past the current height.
	ErrNoteNotConsumable = errors.New("ledger: note not yet consumable")

	// ErrRejectedTransaction wraps any execution failure that kills a
	// submitted transaction.
	ErrRejectedTransaction = errors.New("ledger: transaction rejected")

	// ErrAssetConservation reports consumed assets that were neither
	// received into a vault nor burned.
	ErrAssetConservation = errors.New("ledger: asset conservation violated")

	// ErrInsufficientVault reports an output funded beyond the executing
	// account's balance.
	ErrInsufficientVault = errors.New("ledger: insufficient vault balance")

	// ErrMaxSupplyExceeded reports a mint past the faucet's supply cap.
	ErrMaxSupplyExceeded = errors.New("ledger: faucet max supply exceeded")

	// ErrUnboundDistribute reports a bound faucet distributing more than
	// the transaction burned.
	ErrUnboundDistribute = errors.New("ledger: distribute exceeds burned amount")

	// ErrUnauthorized reports a signature or nonce failure.
	ErrUnauthorized = errors.New("ledger: unauthorized transaction")

	// ErrUnknownAccount reports a transaction from an unregistered account.
	ErrUnknownAccount = errors.New("ledger: unknown account")

	// ErrAccountExists reports a second registration of the same id.
	ErrAccountExists = errors.New("ledger: account already registered")

	// ErrAccountPrivate reports a state query against a private account.
	ErrAccountPrivate = errors.New("ledger: account state is private")

	// ErrNoVerifyingKey reports a proven submission on a ledger that was
	// not configured with a verifying key.
	ErrNoVerifyingKey = errors.New("ledger: no verifying key configured")

	// ErrProofMismatch reports a proof whose public summary disagrees with
	// the executed transaction.
	ErrProofMismatch = errors.New("ledger: proof summary does not match execution")
)
