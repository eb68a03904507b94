package engine

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/ledger"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/metrics"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/notify"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/ledgeraddr"
)

type ApprovalRequest struct {
	DepositID string
	Role      domain.ApprovalRole

	// ApproverWallet must hold the claimed role on the deposit's escrow.
	ApproverWallet string
}

type ApprovalResult struct {
	Executed            bool
	Message             string
	SettlementSignature string
}

// RecordApprovalAndMaybeRelease records one party's approval and, once the
// signature policy is satisfied, submits the on-chain release exactly once.
// The caller always gets a definite outcome: executed with a settlement
// signature, not executed with a reason, or a typed error.
func (e *Engine) RecordApprovalAndMaybeRelease(ctx context.Context, req ApprovalRequest) (ApprovalResult, error) {
	rec, err := e.Store.GetDeposit(ctx, req.DepositID)
	if err != nil {
		return ApprovalResult{}, err
	}
	if rec == nil {
		return ApprovalResult{}, fmt.Errorf("%w: %s", ErrDepositNotFound, req.DepositID)
	}
	if rec.Terminal() {
		return ApprovalResult{}, fmt.Errorf("%w: %s is %s", ErrDepositNotPending, req.DepositID, rec.State)
	}
	if rec.State == domain.DepositReleasing {
		return ApprovalResult{Executed: false, Message: "release already in flight"}, nil
	}

	// Reject approvals irrelevant to the policy before mutating anything;
	// an unknown policy fails closed here.
	required, err := domain.RequiresRole(rec.Policy, req.Role)
	if err != nil {
		return ApprovalResult{}, err
	}
	if !required {
		return ApprovalResult{}, fmt.Errorf("%w: %s under %s policy", ErrRoleNotRequired, req.Role, rec.Policy)
	}

	esc, err := e.Store.GetEscrow(ctx, rec.EscrowAddress)
	if err != nil {
		return ApprovalResult{}, err
	}
	if esc == nil {
		return ApprovalResult{}, fmt.Errorf("%w: %s", ErrEscrowNotFound, rec.EscrowAddress)
	}
	if err := verifyApprover(esc, req.Role, req.ApproverWallet); err != nil {
		return ApprovalResult{}, err
	}

	// Single atomic read-modify-write: flip the flag and observe the
	// resulting pair. A duplicate approval is a no-op that still returns
	// the recorded state.
	updated, err := e.Store.RecordApproval(ctx, req.DepositID, req.Role)
	if err != nil {
		return ApprovalResult{}, err
	}
	if updated == nil {
		// Lost a race with a release or cancel; re-read to report.
		return e.reportNonPending(ctx, req.DepositID)
	}
	metrics.ApprovalsRecordedTotal.WithLabelValues(string(req.Role)).Inc()

	executable, err := domain.Executable(updated.Policy, updated.SenderApproved, updated.ReceiverApproved)
	if err != nil {
		return ApprovalResult{}, err
	}
	if !executable {
		missing := domain.MissingRole(updated.Policy, updated.SenderApproved, updated.ReceiverApproved)
		return ApprovalResult{
			Executed: false,
			Message:  fmt.Sprintf("awaiting %s approval", missing),
		}, nil
	}

	// Threshold met: claim the release. Exactly one concurrent approver
	// wins the claim; the rest observe it in flight.
	claimed, err := e.Store.ClaimRelease(ctx, req.DepositID)
	if err != nil {
		return ApprovalResult{}, err
	}
	if !claimed {
		return e.reportNonPending(ctx, req.DepositID)
	}

	sig, err := e.release(ctx, updated, esc)
	if err != nil {
		metrics.ReleasesFailedTotal.Inc()
		if revertErr := e.Store.RevertRelease(ctx, req.DepositID); revertErr != nil {
			e.logger().Error("release revert failed", "deposit", req.DepositID, "err", revertErr)
		}
		return ApprovalResult{}, pkgerrors.Wrapf(ErrReleaseFailed, "deposit %s: %v", req.DepositID, err)
	}

	if err := e.Store.CompleteRelease(ctx, req.DepositID, sig); err != nil {
		return ApprovalResult{}, err
	}
	if err := e.Store.AddReleasedTotal(ctx, rec.EscrowAddress, rec.Asset, rec.Amount); err != nil {
		e.logger().Error("released total update failed", "deposit", req.DepositID, "err", err)
	}
	e.notifyReleased(ctx, updated, esc)
	e.logger().Info("deposit released",
		"deposit", req.DepositID, "escrow", rec.EscrowAddress, "signature", sig)

	return ApprovalResult{Executed: true, Message: "released", SettlementSignature: sig}, nil
}

func verifyApprover(esc *domain.Escrow, role domain.ApprovalRole, approverWallet string) error {
	var want string
	switch role {
	case domain.RoleSender:
		want = esc.SenderAddress
	case domain.RoleReceiver:
		want = esc.ReceiverAddress
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	if approverWallet != want {
		return fmt.Errorf("%w: wallet %s is not the escrow %s", ErrWrongApprover, approverWallet, role)
	}
	return nil
}

func (e *Engine) reportNonPending(ctx context.Context, depositID string) (ApprovalResult, error) {
	current, err := e.Store.GetDeposit(ctx, depositID)
	if err != nil {
		return ApprovalResult{}, err
	}
	if current == nil {
		return ApprovalResult{}, fmt.Errorf("%w: %s", ErrDepositNotFound, depositID)
	}
	switch current.State {
	case domain.DepositReleasing:
		return ApprovalResult{Executed: false, Message: "release already in flight"}, nil
	case domain.DepositCompleted:
		return ApprovalResult{
			Executed:            true,
			Message:             "already released",
			SettlementSignature: current.SettlementSignature,
		}, nil
	default:
		return ApprovalResult{}, fmt.Errorf("%w: %s is %s", ErrDepositNotPending, depositID, current.State)
	}
}

// release funds the escrow vault if needed, then submits and confirms the
// release transaction. Called with the RELEASING claim held.
func (e *Engine) release(ctx context.Context, rec *domain.DepositRecord, esc *domain.Escrow) (string, error) {
	started := time.Now()
	defer func() { metrics.ReleaseDuration.Observe(time.Since(started).Seconds()) }()

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
	escrowVault, err := ledgeraddr.VaultAddress(rec.EscrowAddress, mint)
	if err != nil {
		return "", err
	}
	senderVault, err := ledgeraddr.VaultAddress(esc.SenderAddress, mint)
	if err != nil {
		return "", err
	}
	receiverVault, err := ledgeraddr.VaultAddress(esc.ReceiverAddress, mint)
	if err != nil {
		return "", err
	}

	// Funding happens lazily at settlement time. If a previous release
	// attempt already materialized the on-chain record, skip straight to
	// the release.
	funded, err := e.Ledger.AccountExists(ctx, recordAddr)
	if err != nil {
		return "", err
	}
	if !funded {
		senderKey, err := e.loadRoleKey(ctx, esc.SenderAddress)
		if err != nil {
			return "", err
		}
		fundSig, err := e.Ledger.Deposit(ctx, ledger.DepositAccounts{
			Escrow:      rec.EscrowAddress,
			Record:      recordAddr,
			SenderVault: senderVault,
			EscrowVault: escrowVault,
			Mint:        mint,
			FeePayer:    e.FeePayer.Address(),
		}, rec.Amount, senderKey, e.FeePayer)
		if err != nil {
			return "", pkgerrors.Wrap(err, "escrow funding")
		}
		if err := e.Ledger.AwaitConfirmation(ctx, fundSig, e.ConfirmWindow); err != nil {
			return "", pkgerrors.Wrap(err, "escrow funding confirmation")
		}
	}

	roles, err := domain.SignerRoles(rec.Policy)
	if err != nil {
		return "", err
	}
	signers := make([]ledger.Signer, 0, len(roles)+1)
	for _, role := range roles {
		wallet := esc.SenderAddress
		if role == domain.RoleReceiver {
			wallet = esc.ReceiverAddress
		}
		key, err := e.loadRoleKey(ctx, wallet)
		if err != nil {
			return "", err
		}
		signers = append(signers, key)
	}
	signers = append(signers, e.FeePayer)

	metrics.ReleasesSubmittedTotal.Inc()
	sig, err := e.Ledger.Release(ctx, ledger.ReleaseAccounts{
		Escrow:        rec.EscrowAddress,
		Record:        recordAddr,
		EscrowVault:   escrowVault,
		ReceiverVault: receiverVault,
		Mint:          mint,
		FeePayer:      e.FeePayer.Address(),
	}, rec.Amount, signers...)
	if err != nil {
		return "", pkgerrors.Wrap(err, "release submission")
	}
	if err := e.Ledger.AwaitConfirmation(ctx, sig, e.ConfirmWindow); err != nil {
		return "", pkgerrors.Wrap(err, "release confirmation")
	}
	return sig, nil
}

// loadRoleKey resolves a wallet to its party and unseals the custodial key
// for one signing operation.
func (e *Engine) loadRoleKey(ctx context.Context, wallet string) (ledger.Signer, error) {
	party, err := e.Store.GetPartyByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if party == nil {
		return nil, fmt.Errorf("%w: wallet %s", ErrUnknownParty, wallet)
	}
	return e.Keys.LoadSignerKey(ctx, party.PartyID)
}

func (e *Engine) notifyReleased(ctx context.Context, rec *domain.DepositRecord, esc *domain.Escrow) {
	if e.Notifier == nil {
		return
	}
	receiver, err := e.Store.GetPartyByWallet(ctx, esc.ReceiverAddress)
	if err != nil || receiver == nil {
		return
	}
	sender, err := e.Store.GetPartyByWallet(ctx, esc.SenderAddress)
	senderName := esc.SenderAddress
	if err == nil && sender != nil {
		senderName = sender.Email
	}
	if err := e.Notifier.Notify(ctx, notify.Notification{
		RecipientEmail:    receiver.Email,
		Amount:            rec.Amount.String(),
		Asset:             string(rec.Asset),
		SenderDisplayName: senderName,
	}); err != nil {
		e.logger().Error("release notification failed", "deposit", rec.DepositID, "err", err)
	}
}
