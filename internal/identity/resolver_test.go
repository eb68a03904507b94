package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
)

type fakePartyStore struct {
	mu       sync.Mutex
	byEmail  map[string]domain.Party
	inserted int
}

func newFakePartyStore() *fakePartyStore {
	return &fakePartyStore{byEmail: map[string]domain.Party{}}
}

func (f *fakePartyStore) GetPartyByEmail(ctx context.Context, email string) (*domain.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byEmail[email]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakePartyStore) InsertParty(ctx context.Context, p domain.Party) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[p.Email]; ok {
		return false, nil
	}
	p.CreatedAt = time.Now()
	f.byEmail[p.Email] = p
	f.inserted++
	return true, nil
}

type fakeKeygen struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeKeygen) GenerateKeypair(ctx context.Context, partyID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "wallet_" + partyID, nil
}

func TestResolveExistingParty(t *testing.T) {
	store := newFakePartyStore()
	store.byEmail["alice@example.com"] = domain.Party{
		PartyID: "pty_alice", Email: "alice@example.com",
		WalletAddress: "walletA", Role: domain.RoleVerified,
	}
	keys := &fakeKeygen{}
	r := NewResolver(store, keys)

	p, err := r.ResolveOrCreateParty(context.Background(), " Alice@Example.com ")
	if err != nil {
		t.Fatalf("ResolveOrCreateParty: %v", err)
	}
	if p.PartyID != "pty_alice" {
		t.Fatalf("expected existing party, got %+v", p)
	}
	if keys.calls != 0 {
		t.Fatal("must not generate a keypair for an existing party")
	}
}

func TestResolveCreatesGuest(t *testing.T) {
	store := newFakePartyStore()
	keys := &fakeKeygen{}
	r := NewResolver(store, keys)

	p, err := r.ResolveOrCreateParty(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("ResolveOrCreateParty: %v", err)
	}
	if p.Role != domain.RoleGuest {
		t.Fatalf("expected GUEST party, got %s", p.Role)
	}
	if p.WalletAddress == "" {
		t.Fatal("expected custodial wallet address")
	}
	if keys.calls != 1 {
		t.Fatalf("expected one keypair, got %d", keys.calls)
	}
}

func TestResolveRejectsInvalidEmail(t *testing.T) {
	r := NewResolver(newFakePartyStore(), &fakeKeygen{})
	if _, err := r.ResolveOrCreateParty(context.Background(), "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestConcurrentFirstReferenceCreatesOneParty(t *testing.T) {
	store := newFakePartyStore()
	keys := &fakeKeygen{}
	r := NewResolver(store, keys)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]domain.Party, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.ResolveOrCreateParty(context.Background(), "carol@example.com")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].PartyID != results[0].PartyID {
			t.Fatalf("callers resolved different parties: %s vs %s", results[i].PartyID, results[0].PartyID)
		}
	}
	if store.inserted != 1 {
		t.Fatalf("expected exactly one inserted party, got %d", store.inserted)
	}
}
