package engine

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/ledger"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/metrics"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/ledgeraddr"
)

type CancelRequest struct {
	EscrowAddress      string
	DepositorWallet    string
	CounterpartyWallet string
	DepositIndex       int64
}

type CancelResult struct {
	SettlementSignature string
}

// Cancel abandons a PENDING deposit before its policy threshold was met and
// returns any escrowed funds to the depositor. Once enough approvals exist
// the deposit is committed to the release path and cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	derived, err := ledgeraddr.EscrowAddress(req.DepositorWallet, req.CounterpartyWallet)
	if err != nil {
		return CancelResult{}, err
	}
	if req.EscrowAddress != "" && req.EscrowAddress != derived {
		return CancelResult{}, fmt.Errorf("%w: escrow address does not match participant pair", ledgeraddr.ErrInvalidAddressInput)
	}

	rec, err := e.Store.GetDepositByIndex(ctx, derived, req.DepositIndex)
	if err != nil {
		return CancelResult{}, err
	}
	if rec == nil {
		return CancelResult{}, fmt.Errorf("%w: escrow %s index %d", ErrDepositNotFound, derived, req.DepositIndex)
	}

	// The conditional update carries both guards: still PENDING and
	// threshold not met. Losing it means an approval or release won.
	cancelled, err := e.Store.CancelDeposit(ctx, rec.DepositID)
	if err != nil {
		return CancelResult{}, err
	}
	if !cancelled {
		current, err := e.Store.GetDeposit(ctx, rec.DepositID)
		if err != nil {
			return CancelResult{}, err
		}
		if current == nil {
			return CancelResult{}, fmt.Errorf("%w: %s", ErrDepositNotFound, rec.DepositID)
		}
		if current.State == domain.DepositPending {
			return CancelResult{}, fmt.Errorf("%w: deposit %s", ErrCancelNotAllowed, rec.DepositID)
		}
		return CancelResult{}, fmt.Errorf("%w: %s is %s", ErrDepositNotPending, rec.DepositID, current.State)
	}
	metrics.DepositsCancelledTotal.Inc()

	// Funds only reach the escrow vault during settlement, so most
	// cancellations have nothing on chain to unwind.
	sig, err := e.refundIfFunded(ctx, rec, req.DepositorWallet)
	if err != nil {
		// Mirror already says CANCELLED, which blocks any release; the
		// refund itself stays an operator concern.
		e.logger().Error("cancel refund failed", "deposit", rec.DepositID, "err", err)
		return CancelResult{}, pkgerrors.Wrapf(ErrReleaseFailed, "cancel refund for %s: %v", rec.DepositID, err)
	}
	if sig != "" {
		if err := e.Store.SetCancelSignature(ctx, rec.DepositID, sig); err != nil {
			return CancelResult{}, err
		}
	}
	e.logger().Info("deposit cancelled", "deposit", rec.DepositID, "escrow", derived, "signature", sig)
	return CancelResult{SettlementSignature: sig}, nil
}

func (e *Engine) refundIfFunded(ctx context.Context, rec *domain.DepositRecord, depositorWallet string) (string, error) {
	mint, err := e.mint(rec.Asset)
	if err != nil {
		return "", err
	}
	checkpoint, err := e.Store.DepositCheckpoint(ctx, rec.DepositID)
	if err != nil {
		return "", err
	}
	recordAddr, err := ledgeraddr.RecordAddress(rec.EscrowAddress, rec.DepositIndex, checkpoint)
	if err != nil {
		return "", err
	}
	funded, err := e.Ledger.AccountExists(ctx, recordAddr)
	if err != nil {
		return "", err
	}
	if !funded {
		return "", nil
	}

	escrowVault, err := ledgeraddr.VaultAddress(rec.EscrowAddress, mint)
	if err != nil {
		return "", err
	}
	depositorVault, err := ledgeraddr.VaultAddress(depositorWallet, mint)
	if err != nil {
		return "", err
	}
	depositorKey, err := e.loadRoleKey(ctx, depositorWallet)
	if err != nil {
		return "", err
	}

	sig, err := e.Ledger.Cancel(ctx, ledger.CancelAccounts{
		Escrow:         rec.EscrowAddress,
		Record:         recordAddr,
		EscrowVault:    escrowVault,
		DepositorVault: depositorVault,
		Mint:           mint,
		FeePayer:       e.FeePayer.Address(),
	}, depositorKey, e.FeePayer)
	if err != nil {
		return "", err
	}
	if err := e.Ledger.AwaitConfirmation(ctx, sig, e.ConfirmWindow); err != nil {
		return "", err
	}
	return sig, nil
}
