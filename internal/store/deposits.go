package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
)

const depositColumns = `deposit_id, escrow_address, deposit_index, asset, amount, policy,
sender_approved, receiver_approved, state, settlement_signature, created_at, updated_at`

func scanDeposit(row pgx.Row) (domain.DepositRecord, error) {
	var d domain.DepositRecord
	err := row.Scan(&d.DepositID, &d.EscrowAddress, &d.DepositIndex, &d.Asset, &d.Amount, &d.Policy,
		&d.SenderApproved, &d.ReceiverApproved, &d.State, &d.SettlementSignature, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateDeposit allocates the next deposit index for the escrow and persists
// a PENDING record in one transaction. The index allocation is the escrow
// row's deposit_count, bumped under row lock, so concurrent creations get
// distinct indexes.
func (s *Store) CreateDeposit(ctx context.Context, d domain.DepositRecord, checkpoint string) (domain.DepositRecord, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return domain.DepositRecord{}, err
	}
	defer tx.Rollback(ctx)

	var index int64
	if err := tx.QueryRow(ctx, `
UPDATE escrows SET deposit_count = deposit_count + 1, updated_at=now()
WHERE escrow_address=$1
RETURNING deposit_count - 1
`, d.EscrowAddress).Scan(&index); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DepositRecord{}, errors.New("escrow mirror row missing")
		}
		return domain.DepositRecord{}, err
	}

	rec, err := scanDeposit(tx.QueryRow(ctx, `
INSERT INTO deposit_records(deposit_id, escrow_address, deposit_index, asset, amount, policy, state, checkpoint)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+depositColumns+`
`, d.DepositID, d.EscrowAddress, index, d.Asset, d.Amount, d.Policy, domain.DepositPending, checkpoint))
	if err != nil {
		return domain.DepositRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.DepositRecord{}, err
	}
	return rec, nil
}

// GetDeposit returns nil when the deposit id is unknown.
func (s *Store) GetDeposit(ctx context.Context, depositID string) (*domain.DepositRecord, error) {
	d, err := scanDeposit(s.DB.QueryRow(ctx, `
SELECT `+depositColumns+` FROM deposit_records WHERE deposit_id=$1
`, depositID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetDepositByIndex(ctx context.Context, escrowAddress string, depositIndex int64) (*domain.DepositRecord, error) {
	d, err := scanDeposit(s.DB.QueryRow(ctx, `
SELECT `+depositColumns+` FROM deposit_records WHERE escrow_address=$1 AND deposit_index=$2
`, escrowAddress, depositIndex))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// DepositCheckpoint returns the ledger checkpoint hash captured when the
// record was created, needed to re-derive its on-chain record address.
func (s *Store) DepositCheckpoint(ctx context.Context, depositID string) (string, error) {
	var cp string
	err := s.DB.QueryRow(ctx, `
SELECT checkpoint FROM deposit_records WHERE deposit_id=$1
`, depositID).Scan(&cp)
	return cp, err
}

func (s *Store) ListDeposits(ctx context.Context, escrowAddress string) ([]domain.DepositRecord, error) {
	rows, err := s.DB.Query(ctx, `
SELECT `+depositColumns+` FROM deposit_records WHERE escrow_address=$1 ORDER BY deposit_index ASC
`, escrowAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DepositRecord
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecordApproval flips one approval flag in a single conditional
// read-modify-write and returns the resulting record. Only PENDING records
// are touched; a duplicate approval for an already-set flag is a no-op that
// still returns the current flags. Returns nil when the record is not
// PENDING or does not exist; callers disambiguate with GetDeposit.
func (s *Store) RecordApproval(ctx context.Context, depositID string, role domain.ApprovalRole) (*domain.DepositRecord, error) {
	d, err := scanDeposit(s.DB.QueryRow(ctx, `
UPDATE deposit_records SET
  sender_approved   = sender_approved   OR $2 = 'sender',
  receiver_approved = receiver_approved OR $2 = 'receiver',
  updated_at = now()
WHERE deposit_id=$1 AND state=$3
RETURNING `+depositColumns+`
`, depositID, string(role), domain.DepositPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// ClaimRelease moves PENDING to RELEASING. Exactly one of any number of
// concurrent claimants wins; the rest observe claimed=false and must not
// submit a release.
func (s *Store) ClaimRelease(ctx context.Context, depositID string) (claimed bool, err error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE deposit_records SET state=$2, updated_at=now()
WHERE deposit_id=$1 AND state=$3
`, depositID, domain.DepositReleasing, domain.DepositPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteRelease finalizes a confirmed release: RELEASING to COMPLETED
// with the settlement signature.
func (s *Store) CompleteRelease(ctx context.Context, depositID, settlementSignature string) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE deposit_records SET state=$2, settlement_signature=$3, updated_at=now()
WHERE deposit_id=$1 AND state=$4
`, depositID, domain.DepositCompleted, settlementSignature, domain.DepositReleasing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return errors.New("deposit was not in RELEASING state")
	}
	return nil
}

// RevertRelease returns a failed release claim to PENDING with approval
// flags intact so a later approval or operator retry can re-attempt.
func (s *Store) RevertRelease(ctx context.Context, depositID string) error {
	_, err := s.DB.Exec(ctx, `
UPDATE deposit_records SET state=$2, updated_at=now()
WHERE deposit_id=$1 AND state=$3
`, depositID, domain.DepositPending, domain.DepositReleasing)
	return err
}

// CancelDeposit moves PENDING to CANCELLED, but only if the signature
// policy threshold has not been met; once enough approvals exist the
// deposit can only complete or fail the release. The threshold check lives
// inside the conditional update to close the race with concurrent
// approvals.
func (s *Store) CancelDeposit(ctx context.Context, depositID string) (cancelled bool, err error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE deposit_records SET state=$2, updated_at=now()
WHERE deposit_id=$1 AND state=$3
  AND NOT (CASE policy
    WHEN 'SENDER'   THEN sender_approved
    WHEN 'RECEIVER' THEN receiver_approved
    ELSE sender_approved AND receiver_approved
  END)
`, depositID, domain.DepositCancelled, domain.DepositPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetCancelSignature stores the refund transaction signature on a cancelled
// record.
func (s *Store) SetCancelSignature(ctx context.Context, depositID, signature string) error {
	_, err := s.DB.Exec(ctx, `
UPDATE deposit_records SET settlement_signature=$2, updated_at=now()
WHERE deposit_id=$1 AND state=$3
`, depositID, signature, domain.DepositCancelled)
	return err
}

// GetDepositIDForIdempotencyKey returns the deposit created by an earlier
// request carrying the same key, or "" when the key is new.
func (s *Store) GetDepositIDForIdempotencyKey(ctx context.Context, partyID, key string) (string, error) {
	var depositID string
	err := s.DB.QueryRow(ctx, `
SELECT deposit_id FROM deposit_idempotency_records
WHERE party_id=$1 AND idempotency_key=$2
`, partyID, key).Scan(&depositID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return depositID, nil
}

func (s *Store) SaveIdempotencyKey(ctx context.Context, partyID, key, depositID string) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO deposit_idempotency_records(party_id, idempotency_key, deposit_id)
VALUES($1, $2, $3)
ON CONFLICT (party_id, idempotency_key) DO NOTHING
`, partyID, key, depositID)
	return err
}
