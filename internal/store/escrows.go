package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
)

const escrowColumns = `escrow_address, sender_address, receiver_address, deposit_count, state, created_at`

func scanEscrow(row pgx.Row) (domain.Escrow, error) {
	var e domain.Escrow
	err := row.Scan(&e.EscrowAddress, &e.SenderAddress, &e.ReceiverAddress, &e.DepositCount, &e.State, &e.CreatedAt)
	return e, err
}

func (s *Store) GetEscrow(ctx context.Context, escrowAddress string) (*domain.Escrow, error) {
	e, err := scanEscrow(s.DB.QueryRow(ctx, `
SELECT `+escrowColumns+` FROM escrows WHERE escrow_address=$1
`, escrowAddress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// UpsertEscrow reconciles the mirror row for an escrow address: created if
// absent, left untouched if already present. The ledger account is the
// source of truth for existence, so this is called on every mutating access.
func (s *Store) UpsertEscrow(ctx context.Context, e domain.Escrow) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO escrows(escrow_address, sender_address, receiver_address, state)
VALUES($1, $2, $3, $4)
ON CONFLICT (escrow_address) DO NOTHING
`, e.EscrowAddress, e.SenderAddress, e.ReceiverAddress, domain.EscrowActive)
	return err
}

// CloseEscrow marks an ACTIVE escrow CLOSED once no deposit is still in
// flight. Returns false when the escrow is unknown, already closed, or has
// open deposits.
func (s *Store) CloseEscrow(ctx context.Context, escrowAddress string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE escrows SET state=$2, updated_at=now()
WHERE escrow_address=$1 AND state=$3
  AND NOT EXISTS (
    SELECT 1 FROM deposit_records
    WHERE escrow_address=$1 AND state IN ($4, $5)
  )
`, escrowAddress, domain.EscrowClosed, domain.EscrowActive, domain.DepositPending, domain.DepositReleasing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AddReleasedTotal accumulates the per-asset amount released through an
// escrow.
func (s *Store) AddReleasedTotal(ctx context.Context, escrowAddress string, asset domain.Asset, amount decimal.Decimal) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO escrow_totals(escrow_address, asset, total_released)
VALUES($1, $2, $3)
ON CONFLICT (escrow_address, asset) DO UPDATE SET total_released = escrow_totals.total_released + EXCLUDED.total_released
`, escrowAddress, asset, amount)
	return err
}

func (s *Store) ReleasedTotals(ctx context.Context, escrowAddress string) (map[domain.Asset]decimal.Decimal, error) {
	rows, err := s.DB.Query(ctx, `
SELECT asset, total_released FROM escrow_totals WHERE escrow_address=$1
`, escrowAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[domain.Asset]decimal.Decimal{}
	for rows.Next() {
		var asset domain.Asset
		var total decimal.Decimal
		if err := rows.Scan(&asset, &total); err != nil {
			return nil, err
		}
		out[asset] = total
	}
	return out, rows.Err()
}
