package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/metrics"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/notify"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
)

type CreateDepositRequest struct {
	DepositorWallet string
	RecipientEmail  string
	Asset           domain.Asset
	Policy          domain.SignaturePolicy
	Amount          decimal.Decimal

	// IdempotencyKey, when set, makes a retried creation return the
	// original deposit instead of creating a second one.
	IdempotencyKey string
}

type CreateDepositResult struct {
	DepositID     string
	EscrowAddress string
	DepositIndex  int64
}

// CreateDeposit records transfer intent: it resolves the recipient,
// guarantees the escrow exists, and persists a PENDING record carrying the
// signature policy. No funds move here; settlement is triggered by
// approvals.
func (e *Engine) CreateDeposit(ctx context.Context, req CreateDepositRequest) (CreateDepositResult, error) {
	if _, err := domain.ParsePolicy(string(req.Policy)); err != nil {
		return CreateDepositResult{}, err
	}
	if _, err := e.mint(req.Asset); err != nil {
		return CreateDepositResult{}, err
	}
	if !req.Amount.IsPositive() {
		return CreateDepositResult{}, fmt.Errorf("amount must be positive, got %s", req.Amount)
	}

	depositor, err := e.Store.GetPartyByWallet(ctx, req.DepositorWallet)
	if err != nil {
		return CreateDepositResult{}, err
	}
	if depositor == nil {
		return CreateDepositResult{}, fmt.Errorf("%w: wallet %s", ErrUnknownParty, req.DepositorWallet)
	}

	if req.IdempotencyKey != "" {
		depositID, err := e.Store.GetDepositIDForIdempotencyKey(ctx, depositor.PartyID, req.IdempotencyKey)
		if err != nil {
			return CreateDepositResult{}, err
		}
		if depositID != "" {
			prior, err := e.Store.GetDeposit(ctx, depositID)
			if err != nil {
				return CreateDepositResult{}, err
			}
			if prior != nil {
				return CreateDepositResult{
					DepositID:     prior.DepositID,
					EscrowAddress: prior.EscrowAddress,
					DepositIndex:  prior.DepositIndex,
				}, nil
			}
		}
	}

	recipient, err := e.Identity.ResolveOrCreateParty(ctx, req.RecipientEmail)
	if err != nil {
		return CreateDepositResult{}, err
	}

	escrow, err := e.EnsureEscrow(ctx, EnsureEscrowRequest{
		SenderWallet:   depositor.WalletAddress,
		ReceiverWallet: recipient.WalletAddress,
	})
	if err != nil {
		return CreateDepositResult{}, err
	}

	// The checkpoint hash pins the record's deterministic ledger address;
	// it is captured once at creation and reused for settlement.
	checkpoint, err := e.Ledger.RecentCheckpoint(ctx)
	if err != nil {
		return CreateDepositResult{}, err
	}

	rec, err := e.Store.CreateDeposit(ctx, domain.DepositRecord{
		DepositID:     "dep_" + uuid.NewString(),
		EscrowAddress: escrow.EscrowAddress,
		Asset:         req.Asset,
		Amount:        req.Amount,
		Policy:        req.Policy,
	}, checkpoint)
	if err != nil {
		return CreateDepositResult{}, err
	}

	if req.IdempotencyKey != "" {
		if err := e.Store.SaveIdempotencyKey(ctx, depositor.PartyID, req.IdempotencyKey, rec.DepositID); err != nil {
			return CreateDepositResult{}, err
		}
	}

	e.notifyRecipient(ctx, rec, depositor, recipient)
	metrics.DepositsCreatedTotal.Inc()
	e.logger().Info("deposit created",
		"deposit", rec.DepositID, "escrow", rec.EscrowAddress, "index", rec.DepositIndex,
		"asset", rec.Asset, "amount", rec.Amount.String(), "policy", rec.Policy)

	return CreateDepositResult{
		DepositID:     rec.DepositID,
		EscrowAddress: rec.EscrowAddress,
		DepositIndex:  rec.DepositIndex,
	}, nil
}

// notifyRecipient is best effort: a notifier outage must not fail the
// deposit, the record is already durable.
func (e *Engine) notifyRecipient(ctx context.Context, rec domain.DepositRecord, depositor *domain.Party, recipient domain.Party) {
	if e.Notifier == nil {
		return
	}
	n := notify.Notification{
		RecipientEmail:    recipient.Email,
		Amount:            rec.Amount.String(),
		Asset:             string(rec.Asset),
		SenderDisplayName: depositor.Email,
	}
	if recipient.Role == domain.RoleGuest && e.Claims != nil {
		claimURL, err := e.Claims.ClaimURL(rec.DepositID, recipient.Email)
		if err != nil {
			e.logger().Error("claim url mint failed", "deposit", rec.DepositID, "err", err)
		} else {
			n.ClaimURL = claimURL
		}
	}
	if err := e.Notifier.Notify(ctx, n); err != nil {
		e.logger().Error("recipient notification failed", "deposit", rec.DepositID, "err", err)
	}
}
