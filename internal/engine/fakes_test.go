package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/keyvault"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/ledger"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/notify"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/ledgeraddr"
)

const (
	senderWallet   = "4Nd1mYvH6LpyXyZbU3sHeFJ6gYqNvW2mPka1bSCEfAUJ"
	receiverWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	usdcMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	senderEmail    = "alice@example.com"
	receiverEmail  = "bob@example.com"
)

// fakeStore is the in-memory double of the relational mirror. Its
// conditional updates hold the same guarantees the SQL store provides:
// linearizable per deposit id under the mutex.
type fakeStore struct {
	mu       sync.Mutex
	parties  map[string]domain.Party // by email
	escrows  map[string]domain.Escrow
	deposits map[string]domain.DepositRecord
	chk      map[string]string
	idem     map[string]string
	totals   map[string]decimal.Decimal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		parties:  map[string]domain.Party{},
		escrows:  map[string]domain.Escrow{},
		deposits: map[string]domain.DepositRecord{},
		chk:      map[string]string{},
		idem:     map[string]string{},
		totals:   map[string]decimal.Decimal{},
	}
}

func (f *fakeStore) addParty(p domain.Party) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parties[p.Email] = p
}

func (f *fakeStore) GetPartyByEmail(ctx context.Context, email string) (*domain.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.parties[email]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetPartyByWallet(ctx context.Context, wallet string) (*domain.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.parties {
		if p.WalletAddress == wallet {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetEscrow(ctx context.Context, addr string) (*domain.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.escrows[addr]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) UpsertEscrow(ctx context.Context, e domain.Escrow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.escrows[e.EscrowAddress]; !ok {
		e.CreatedAt = time.Now()
		f.escrows[e.EscrowAddress] = e
	}
	return nil
}

func (f *fakeStore) CloseEscrow(ctx context.Context, addr string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[addr]
	if !ok || e.State != domain.EscrowActive {
		return false, nil
	}
	for _, d := range f.deposits {
		if d.EscrowAddress == addr && (d.State == domain.DepositPending || d.State == domain.DepositReleasing) {
			return false, nil
		}
	}
	e.State = domain.EscrowClosed
	f.escrows[addr] = e
	return true, nil
}

func (f *fakeStore) AddReleasedTotal(ctx context.Context, addr string, asset domain.Asset, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := addr + "/" + string(asset)
	f.totals[key] = f.totals[key].Add(amount)
	return nil
}

func (f *fakeStore) CreateDeposit(ctx context.Context, d domain.DepositRecord, checkpoint string) (domain.DepositRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[d.EscrowAddress]
	if !ok {
		return domain.DepositRecord{}, errors.New("escrow mirror row missing")
	}
	d.DepositIndex = e.DepositCount
	e.DepositCount++
	f.escrows[d.EscrowAddress] = e
	d.State = domain.DepositPending
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	f.deposits[d.DepositID] = d
	f.chk[d.DepositID] = checkpoint
	return d, nil
}

func (f *fakeStore) GetDeposit(ctx context.Context, id string) (*domain.DepositRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.deposits[id]; ok {
		cp := d
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetDepositByIndex(ctx context.Context, addr string, index int64) (*domain.DepositRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deposits {
		if d.EscrowAddress == addr && d.DepositIndex == index {
			cp := d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) DepositCheckpoint(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.chk[id]
	if !ok {
		return "", errors.New("no checkpoint")
	}
	return cp, nil
}

func (f *fakeStore) ListDeposits(ctx context.Context, addr string) ([]domain.DepositRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DepositRecord
	for _, d := range f.deposits {
		if d.EscrowAddress == addr {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordApproval(ctx context.Context, id string, role domain.ApprovalRole) (*domain.DepositRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[id]
	if !ok || d.State != domain.DepositPending {
		return nil, nil
	}
	switch role {
	case domain.RoleSender:
		d.SenderApproved = true
	case domain.RoleReceiver:
		d.ReceiverApproved = true
	}
	d.UpdatedAt = time.Now()
	f.deposits[id] = d
	cp := d
	return &cp, nil
}

func (f *fakeStore) ClaimRelease(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[id]
	if !ok || d.State != domain.DepositPending {
		return false, nil
	}
	d.State = domain.DepositReleasing
	f.deposits[id] = d
	return true, nil
}

func (f *fakeStore) CompleteRelease(ctx context.Context, id, sig string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[id]
	if !ok || d.State != domain.DepositReleasing {
		return errors.New("deposit was not in RELEASING state")
	}
	d.State = domain.DepositCompleted
	d.SettlementSignature = sig
	f.deposits[id] = d
	return nil
}

func (f *fakeStore) RevertRelease(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[id]
	if ok && d.State == domain.DepositReleasing {
		d.State = domain.DepositPending
		f.deposits[id] = d
	}
	return nil
}

func (f *fakeStore) CancelDeposit(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[id]
	if !ok || d.State != domain.DepositPending {
		return false, nil
	}
	met, err := domain.Executable(d.Policy, d.SenderApproved, d.ReceiverApproved)
	if err != nil || met {
		return false, nil
	}
	d.State = domain.DepositCancelled
	f.deposits[id] = d
	return true, nil
}

func (f *fakeStore) SetCancelSignature(ctx context.Context, id, sig string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[id]
	if ok && d.State == domain.DepositCancelled {
		d.SettlementSignature = sig
		f.deposits[id] = d
	}
	return nil
}

func (f *fakeStore) GetDepositIDForIdempotencyKey(ctx context.Context, partyID, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idem[partyID+"/"+key], nil
}

func (f *fakeStore) SaveIdempotencyKey(ctx context.Context, partyID, key, depositID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.idem[partyID+"/"+key]; !ok {
		f.idem[partyID+"/"+key] = depositID
	}
	return nil
}

// fakeEngineLedger counts submissions per operation and can inject release
// failures.
type fakeEngineLedger struct {
	mu           sync.Mutex
	accounts     map[string]bool
	initCalls    int
	depositCalls int
	releaseCalls int
	cancelCalls  int
	releaseErr   error
	nextSig      int
}

func newFakeEngineLedger() *fakeEngineLedger {
	return &fakeEngineLedger{accounts: map[string]bool{}}
}

func (f *fakeEngineLedger) sig() string {
	f.nextSig++
	return fmt.Sprintf("tx_%d", f.nextSig)
}

func (f *fakeEngineLedger) AccountExists(ctx context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[address], nil
}

func (f *fakeEngineLedger) RecentCheckpoint(ctx context.Context) (string, error) {
	return "checkpointhash", nil
}

func (f *fakeEngineLedger) InitializeEscrow(ctx context.Context, a ledger.InitializeEscrowAccounts, s ...ledger.Signer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.accounts[a.Escrow] {
		return "", ledger.ErrAccountExists
	}
	f.accounts[a.Escrow] = true
	return f.sig(), nil
}

func (f *fakeEngineLedger) CreateVault(ctx context.Context, a ledger.CreateVaultAccounts, s ...ledger.Signer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[a.Vault] = true
	return f.sig(), nil
}

func (f *fakeEngineLedger) Deposit(ctx context.Context, a ledger.DepositAccounts, amt decimal.Decimal, s ...ledger.Signer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depositCalls++
	f.accounts[a.Record] = true
	return f.sig(), nil
}

func (f *fakeEngineLedger) Release(ctx context.Context, a ledger.ReleaseAccounts, amt decimal.Decimal, s ...ledger.Signer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	if f.releaseErr != nil {
		return "", f.releaseErr
	}
	f.accounts[a.Record] = false
	return f.sig(), nil
}

func (f *fakeEngineLedger) Cancel(ctx context.Context, a ledger.CancelAccounts, s ...ledger.Signer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	f.accounts[a.Record] = false
	return f.sig(), nil
}

func (f *fakeEngineLedger) AwaitConfirmation(ctx context.Context, sig string, w time.Duration) error {
	return nil
}

// fakeKeys hands out real ed25519 keys derived from the party id, so the
// signing path stays exercised end to end.
type fakeKeys struct{}

func (fakeKeys) LoadSignerKey(ctx context.Context, partyID string) (keyvault.SignerKey, error) {
	seed := make([]byte, 32)
	copy(seed, partyID)
	return keyvault.SignerFromSeed(seed)
}

type fakeProvisioner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeProvisioner) EnsureCustodyAccount(ctx context.Context, owner, mint string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return ledgeraddr.VaultAddress(owner, mint)
}

type fakeResolver struct {
	store *fakeStore
}

func (f *fakeResolver) ResolveOrCreateParty(ctx context.Context, email string) (domain.Party, error) {
	if p, _ := f.store.GetPartyByEmail(ctx, email); p != nil {
		return *p, nil
	}
	p := domain.Party{
		PartyID:       "pty_" + email,
		Email:         email,
		WalletAddress: receiverWallet,
		Role:          domain.RoleGuest,
	}
	f.store.addParty(p)
	return p, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	fail bool
}

func (f *fakeNotifier) Notify(ctx context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("notifier down")
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeClaims struct{}

func (fakeClaims) ClaimURL(depositID, email string) (string, error) {
	return "https://app.senda.finance/claim?token=" + depositID, nil
}

func newTestEngine() (*Engine, *fakeStore, *fakeEngineLedger, *fakeNotifier) {
	st := newFakeStore()
	st.addParty(domain.Party{
		PartyID: "pty_sender", Email: senderEmail,
		WalletAddress: senderWallet, Role: domain.RoleVerified,
	})
	fl := newFakeEngineLedger()
	fn := &fakeNotifier{}
	feePayer, _ := keyvault.SignerFromSeed(make([]byte, 32))
	e := &Engine{
		Store:         st,
		Ledger:        fl,
		Keys:          fakeKeys{},
		Provision:     &fakeProvisioner{},
		Identity:      &fakeResolver{store: st},
		Notifier:      fn,
		Claims:        fakeClaims{},
		FeePayer:      feePayer,
		Mints:         map[domain.Asset]string{domain.AssetUSDC: usdcMint},
		ConfirmWindow: time.Second,
	}
	return e, st, fl, fn
}
