package engine

import (
	"context"
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/ledger"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/metrics"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/ledgeraddr"
)

type EnsureEscrowRequest struct {
	SenderWallet   string
	ReceiverWallet string
}

type EnsureEscrowResult struct {
	EscrowAddress string
	Initialized   bool
}

// EnsureEscrow makes sure the escrow account for the ordered (sender,
// receiver) pair exists on the ledger and in the mirror. Initialization is
// financially irreversible, so an existing ledger account short-circuits
// without submitting anything.
func (e *Engine) EnsureEscrow(ctx context.Context, req EnsureEscrowRequest) (EnsureEscrowResult, error) {
	escrowAddr, err := ledgeraddr.EscrowAddress(req.SenderWallet, req.ReceiverWallet)
	if err != nil {
		return EnsureEscrowResult{}, err
	}

	exists, err := e.Ledger.AccountExists(ctx, escrowAddr)
	if err != nil {
		return EnsureEscrowResult{}, pkgerrors.Wrap(err, "escrow existence check")
	}
	if exists {
		if err := e.mirrorEscrow(ctx, escrowAddr, req); err != nil {
			return EnsureEscrowResult{}, err
		}
		return EnsureEscrowResult{EscrowAddress: escrowAddr}, nil
	}

	// First use of this pair: both parties need custody accounts for every
	// supported asset before the escrow can settle any of them.
	for _, mint := range e.sortedMints() {
		if _, err := e.Provision.EnsureCustodyAccount(ctx, req.SenderWallet, mint); err != nil {
			return EnsureEscrowResult{}, err
		}
		if _, err := e.Provision.EnsureCustodyAccount(ctx, req.ReceiverWallet, mint); err != nil {
			return EnsureEscrowResult{}, err
		}
	}

	sender, err := e.Store.GetPartyByWallet(ctx, req.SenderWallet)
	if err != nil {
		return EnsureEscrowResult{}, err
	}
	if sender == nil {
		return EnsureEscrowResult{}, pkgerrors.Wrapf(ErrUnknownParty, "sender wallet %s", req.SenderWallet)
	}
	senderKey, err := e.Keys.LoadSignerKey(ctx, sender.PartyID)
	if err != nil {
		return EnsureEscrowResult{}, err
	}

	sig, err := e.Ledger.InitializeEscrow(ctx, ledger.InitializeEscrowAccounts{
		Escrow:   escrowAddr,
		Sender:   req.SenderWallet,
		Receiver: req.ReceiverWallet,
		FeePayer: e.FeePayer.Address(),
	}, senderKey, e.FeePayer)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			// A concurrent caller initialized it; converge on their work.
			if err := e.mirrorEscrow(ctx, escrowAddr, req); err != nil {
				return EnsureEscrowResult{}, err
			}
			return EnsureEscrowResult{EscrowAddress: escrowAddr}, nil
		}
		return EnsureEscrowResult{}, pkgerrors.Wrap(err, "escrow initialization")
	}
	if err := e.Ledger.AwaitConfirmation(ctx, sig, e.ConfirmWindow); err != nil {
		return EnsureEscrowResult{}, pkgerrors.Wrap(err, "escrow initialization confirmation")
	}

	if err := e.mirrorEscrow(ctx, escrowAddr, req); err != nil {
		return EnsureEscrowResult{}, err
	}
	metrics.EscrowsInitializedTotal.Inc()
	e.logger().Info("escrow initialized",
		"escrow", escrowAddr, "sender", req.SenderWallet, "receiver", req.ReceiverWallet)
	return EnsureEscrowResult{EscrowAddress: escrowAddr, Initialized: true}, nil
}

func (e *Engine) mirrorEscrow(ctx context.Context, escrowAddr string, req EnsureEscrowRequest) error {
	return e.Store.UpsertEscrow(ctx, domain.Escrow{
		EscrowAddress:   escrowAddr,
		SenderAddress:   req.SenderWallet,
		ReceiverAddress: req.ReceiverWallet,
		State:           domain.EscrowActive,
	})
}

func (e *Engine) sortedMints() []string {
	mints := make([]string, 0, len(e.Mints))
	for _, m := range e.Mints {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	return mints
}

// CloseEscrow marks an escrow CLOSED once every deposit has settled. The
// mirror row is retained; escrows are never deleted.
func (e *Engine) CloseEscrow(ctx context.Context, escrowAddress string) error {
	esc, err := e.Store.GetEscrow(ctx, escrowAddress)
	if err != nil {
		return err
	}
	if esc == nil {
		return ErrEscrowNotFound
	}
	closed, err := e.Store.CloseEscrow(ctx, escrowAddress)
	if err != nil {
		return err
	}
	if !closed {
		if esc.State == domain.EscrowClosed {
			return nil
		}
		return ErrEscrowNotSettled
	}
	return nil
}

// ListDeposits returns the escrow's full audit trail, oldest first.
func (e *Engine) ListDeposits(ctx context.Context, escrowAddress string) ([]domain.DepositRecord, error) {
	esc, err := e.Store.GetEscrow(ctx, escrowAddress)
	if err != nil {
		return nil, err
	}
	if esc == nil {
		return nil, ErrEscrowNotFound
	}
	return e.Store.ListDeposits(ctx, escrowAddress)
}
