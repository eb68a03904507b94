package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountExists is returned by creation operations when the target
	// account is already on chain. Callers treat it as success after
	// re-checking existence.
	ErrAccountExists = errors.New("ledger account already exists")

	// ErrNotConfirmed is returned when a submitted transaction does not
	// reach finality within the caller's window.
	ErrNotConfirmed = errors.New("transaction not confirmed")

	// ErrRejected is returned when the ledger definitively rejects a
	// submitted transaction.
	ErrRejected = errors.New("transaction rejected")
)

// Signer signs transaction payload hashes with a custodial key. The
// fee-payer and per-party keys both satisfy it; signing is stateless so a
// single key may be used concurrently.
type Signer interface {
	Address() string
	Sign(payloadHash []byte) []byte
}

// Client is the engine's view of the on-chain escrow program. The program's
// instruction logic is opaque; the client only addresses it through
// deterministic accounts and awaits finality.
type Client interface {
	AccountExists(ctx context.Context, address string) (bool, error)

	// RecentCheckpoint returns the hash of a recent ledger checkpoint,
	// used as the disambiguating nonce in record address derivation.
	RecentCheckpoint(ctx context.Context) (string, error)

	InitializeEscrow(ctx context.Context, accounts InitializeEscrowAccounts, signers ...Signer) (signature string, err error)
	CreateVault(ctx context.Context, accounts CreateVaultAccounts, signers ...Signer) (signature string, err error)
	Deposit(ctx context.Context, accounts DepositAccounts, amount decimal.Decimal, signers ...Signer) (signature string, err error)
	Release(ctx context.Context, accounts ReleaseAccounts, amount decimal.Decimal, signers ...Signer) (signature string, err error)
	Cancel(ctx context.Context, accounts CancelAccounts, signers ...Signer) (signature string, err error)

	// AwaitConfirmation blocks until the transaction reaches finality or
	// the window elapses, returning ErrNotConfirmed on timeout and
	// ErrRejected on definitive failure.
	AwaitConfirmation(ctx context.Context, signature string, window time.Duration) error
}
