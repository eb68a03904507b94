// Package custody provisions per-(party, asset) token custody accounts on
// the ledger, idempotently and tolerant of finality lag.
package custody

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/ledger"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/metrics"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/retry"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/ledgeraddr"
)

var ErrCustodyProvisioningFailed = stderrors.New("custody account provisioning failed")

type Provisioner struct {
	Ledger   ledger.Client
	FeePayer ledger.Signer

	// VerifyAttempts polls at VerifyInterval after a creation submission;
	// the ledger does not guarantee the account is queryable right after
	// the submission is acknowledged.
	VerifyAttempts int
	VerifyInterval time.Duration

	// CreateAttempts bounds end-to-end create-then-verify cycles, with
	// exponential backoff starting at CreateBackoff.
	CreateAttempts int
	CreateBackoff  time.Duration
}

func NewProvisioner(lc ledger.Client, feePayer ledger.Signer) *Provisioner {
	return &Provisioner{
		Ledger:         lc,
		FeePayer:       feePayer,
		VerifyAttempts: 5,
		VerifyInterval: 5 * time.Second,
		CreateAttempts: 3,
		CreateBackoff:  2 * time.Second,
	}
}

// EnsureCustodyAccount makes sure owner holds a custody account for the
// asset mint and returns its deterministic address. Creation is idempotent:
// a concurrent creator's "already exists" is success, not a conflict.
func (p *Provisioner) EnsureCustodyAccount(ctx context.Context, ownerAddr, mint string) (string, error) {
	vaultAddr, err := ledgeraddr.VaultAddress(ownerAddr, mint)
	if err != nil {
		return "", err
	}

	exists, err := p.Ledger.AccountExists(ctx, vaultAddr)
	if err != nil {
		return "", errors.Wrap(err, "custody account lookup")
	}
	if exists {
		return vaultAddr, nil
	}

	err = retry.Do(ctx, p.CreateAttempts, p.CreateBackoff, func(ctx context.Context) error {
		return p.createAndVerify(ctx, vaultAddr, ownerAddr, mint)
	})
	if err != nil {
		return "", errors.Wrapf(ErrCustodyProvisioningFailed, "vault %s for owner %s: %v", vaultAddr, ownerAddr, err)
	}
	metrics.CustodyAccountsCreatedTotal.Inc()
	return vaultAddr, nil
}

func (p *Provisioner) createAndVerify(ctx context.Context, vaultAddr, ownerAddr, mint string) error {
	_, err := p.Ledger.CreateVault(ctx, ledger.CreateVaultAccounts{
		Vault:    vaultAddr,
		Owner:    ownerAddr,
		Mint:     mint,
		FeePayer: p.FeePayer.Address(),
	}, p.FeePayer)
	if err != nil && !stderrors.Is(err, ledger.ErrAccountExists) {
		return err
	}

	// The acknowledgment (or the concurrent creator's) does not mean the
	// account is queryable yet; poll until it is.
	return retry.Poll(ctx, p.VerifyAttempts, p.VerifyInterval, func(ctx context.Context) (bool, error) {
		return p.Ledger.AccountExists(ctx, vaultAddr)
	})
}
