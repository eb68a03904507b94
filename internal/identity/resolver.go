// Package identity maps emails to parties, creating custodial guest
// accounts on first reference.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
)

var ErrInvalidEmail = errors.New("invalid email")

type PartyStore interface {
	GetPartyByEmail(ctx context.Context, email string) (*domain.Party, error)
	InsertParty(ctx context.Context, p domain.Party) (inserted bool, err error)
}

type Keygen interface {
	GenerateKeypair(ctx context.Context, partyID string) (walletAddress string, err error)
}

type Resolver struct {
	Store PartyStore
	Keys  Keygen
}

func NewResolver(store PartyStore, keys Keygen) *Resolver {
	return &Resolver{Store: store, Keys: keys}
}

// ResolveOrCreateParty returns the party holding email, creating a GUEST
// party with a fresh custodial keypair when the email is unknown. The
// unique constraint on email makes concurrent first references safe: the
// insert loser re-fetches the winner's row instead of erroring.
func (r *Resolver) ResolveOrCreateParty(ctx context.Context, email string) (domain.Party, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		return domain.Party{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	existing, err := r.Store.GetPartyByEmail(ctx, email)
	if err != nil {
		return domain.Party{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	partyID := "pty_" + uuid.NewString()
	walletAddress, err := r.Keys.GenerateKeypair(ctx, partyID)
	if err != nil {
		return domain.Party{}, err
	}

	inserted, err := r.Store.InsertParty(ctx, domain.Party{
		PartyID:       partyID,
		Email:         email,
		WalletAddress: walletAddress,
		Role:          domain.RoleGuest,
	})
	if err != nil {
		return domain.Party{}, err
	}
	if !inserted {
		// Lost the race; the generated keypair stays unreferenced.
		winner, err := r.Store.GetPartyByEmail(ctx, email)
		if err != nil {
			return domain.Party{}, err
		}
		if winner == nil {
			return domain.Party{}, fmt.Errorf("party for %s vanished after insert conflict", email)
		}
		return *winner, nil
	}

	created, err := r.Store.GetPartyByEmail(ctx, email)
	if err != nil {
		return domain.Party{}, err
	}
	if created == nil {
		return domain.Party{}, fmt.Errorf("party for %s missing after insert", email)
	}
	return *created, nil
}
