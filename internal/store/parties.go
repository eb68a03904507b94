package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
)

const partyColumns = `party_id, email, wallet_address, role, created_at`

func scanParty(row pgx.Row) (domain.Party, error) {
	var p domain.Party
	err := row.Scan(&p.PartyID, &p.Email, &p.WalletAddress, &p.Role, &p.CreatedAt)
	return p, err
}

// GetPartyByEmail returns nil when no party holds the email.
func (s *Store) GetPartyByEmail(ctx context.Context, email string) (*domain.Party, error) {
	p, err := scanParty(s.DB.QueryRow(ctx, `
SELECT `+partyColumns+` FROM parties WHERE email=lower($1)
`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPartyByWallet(ctx context.Context, walletAddress string) (*domain.Party, error) {
	p, err := scanParty(s.DB.QueryRow(ctx, `
SELECT `+partyColumns+` FROM parties WHERE wallet_address=$1
`, walletAddress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// InsertParty persists a new party. The unique constraint on email makes
// concurrent first-references race-safe: the loser gets inserted=false and
// must re-fetch the winner's row.
func (s *Store) InsertParty(ctx context.Context, p domain.Party) (inserted bool, err error) {
	tag, err := s.DB.Exec(ctx, `
INSERT INTO parties(party_id, email, wallet_address, role)
VALUES($1, lower($2), $3, $4)
ON CONFLICT (email) DO NOTHING
`, p.PartyID, p.Email, p.WalletAddress, p.Role)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveKeyBlob and LoadKeyBlob implement keyvault.BlobStore.

func (s *Store) SaveKeyBlob(ctx context.Context, partyID string, blob []byte) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO party_keys(party_id, sealed_key)
VALUES($1, $2)
ON CONFLICT (party_id) DO NOTHING
`, partyID, blob)
	return err
}

func (s *Store) LoadKeyBlob(ctx context.Context, partyID string) ([]byte, error) {
	var blob []byte
	err := s.DB.QueryRow(ctx, `
SELECT sealed_key FROM party_keys WHERE party_id=$1
`, partyID).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return blob, nil
}
