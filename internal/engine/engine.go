// Package engine coordinates escrow deposits between two parties: it
// provisions ledger accounts, records transfer intent with a signature
// policy, collects asynchronous approvals, and submits the on-chain release
// exactly once when the policy threshold is met. The relational mirror is
// reconciled against ledger truth on every mutating access.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/keyvault"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/ledger"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/notify"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
)

// Store is the engine's view of the relational mirror. All mutating
// operations are conditional so concurrent callers serialize per record.
type Store interface {
	GetPartyByEmail(ctx context.Context, email string) (*domain.Party, error)
	GetPartyByWallet(ctx context.Context, walletAddress string) (*domain.Party, error)

	GetEscrow(ctx context.Context, escrowAddress string) (*domain.Escrow, error)
	UpsertEscrow(ctx context.Context, e domain.Escrow) error
	CloseEscrow(ctx context.Context, escrowAddress string) (bool, error)
	AddReleasedTotal(ctx context.Context, escrowAddress string, asset domain.Asset, amount decimal.Decimal) error

	CreateDeposit(ctx context.Context, d domain.DepositRecord, checkpoint string) (domain.DepositRecord, error)
	GetDeposit(ctx context.Context, depositID string) (*domain.DepositRecord, error)
	GetDepositByIndex(ctx context.Context, escrowAddress string, depositIndex int64) (*domain.DepositRecord, error)
	DepositCheckpoint(ctx context.Context, depositID string) (string, error)
	ListDeposits(ctx context.Context, escrowAddress string) ([]domain.DepositRecord, error)

	RecordApproval(ctx context.Context, depositID string, role domain.ApprovalRole) (*domain.DepositRecord, error)
	ClaimRelease(ctx context.Context, depositID string) (claimed bool, err error)
	CompleteRelease(ctx context.Context, depositID, settlementSignature string) error
	RevertRelease(ctx context.Context, depositID string) error
	CancelDeposit(ctx context.Context, depositID string) (cancelled bool, err error)
	SetCancelSignature(ctx context.Context, depositID, signature string) error

	GetDepositIDForIdempotencyKey(ctx context.Context, partyID, key string) (string, error)
	SaveIdempotencyKey(ctx context.Context, partyID, key, depositID string) error
}

// KeyLoader decrypts a party's custodial signing key for the duration of
// one signing operation.
type KeyLoader interface {
	LoadSignerKey(ctx context.Context, partyID string) (keyvault.SignerKey, error)
}

// Provisioner ensures a party holds a custody account for an asset mint.
type Provisioner interface {
	EnsureCustodyAccount(ctx context.Context, ownerAddr, mint string) (string, error)
}

// Resolver maps an email to a party, creating a guest party when unknown.
type Resolver interface {
	ResolveOrCreateParty(ctx context.Context, email string) (domain.Party, error)
}

// ClaimLinker mints claim links for guest recipients. Optional.
type ClaimLinker interface {
	ClaimURL(depositID, recipientEmail string) (string, error)
}

type Engine struct {
	Store     Store
	Ledger    ledger.Client
	Keys      KeyLoader
	Provision Provisioner
	Identity  Resolver
	Notifier  notify.Dispatcher
	Claims    ClaimLinker

	FeePayer ledger.Signer

	// Mints maps supported assets to their ledger mint addresses. Escrow
	// initialization provisions custody accounts for every entry.
	Mints map[domain.Asset]string

	// ConfirmWindow bounds how long a submitted transaction may take to
	// reach finality before the attempt is treated as failed.
	ConfirmWindow time.Duration

	Log *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) mint(asset domain.Asset) (string, error) {
	m, ok := e.Mints[asset]
	if !ok {
		return "", domain.ErrUnsupportedAsset
	}
	return m, nil
}
