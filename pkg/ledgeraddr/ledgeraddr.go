// Package ledgeraddr derives deterministic ledger addresses from semantic
// seed tuples. Multiple components re-derive the same address independently
// to locate on-chain state, so derivation must be stable across processes:
// fixed domain tags, fixed field order, no ambient input.
package ledgeraddr

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcutil/base58"
)

var ErrInvalidAddressInput = errors.New("invalid address input")

const (
	tagEscrow = "escrow"
	tagVault  = "vault"
	tagRecord = "record"
)

// EscrowAddress is the deterministic address of the escrow account for an
// ordered (sender, receiver) pair.
func EscrowAddress(senderAddr, receiverAddr string) (string, error) {
	if err := validateAddr(senderAddr); err != nil {
		return "", fmt.Errorf("sender: %w", err)
	}
	if err := validateAddr(receiverAddr); err != nil {
		return "", fmt.Errorf("receiver: %w", err)
	}
	if senderAddr == receiverAddr {
		return "", fmt.Errorf("%w: sender and receiver must differ", ErrInvalidAddressInput)
	}
	return derive(tagEscrow, senderAddr, receiverAddr), nil
}

// VaultAddress is the deterministic address of a party's per-asset custody
// account. mint is the ledger address of the asset's token mint.
func VaultAddress(ownerAddr, mint string) (string, error) {
	if err := validateAddr(ownerAddr); err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	if err := validateAddr(mint); err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	return derive(tagVault, ownerAddr, mint), nil
}

// RecordAddress is the deterministic address of a deposit record account,
// disambiguated by its per-escrow index and the ledger checkpoint hash
// current when the deposit was created.
func RecordAddress(escrowAddr string, depositIndex int64, checkpoint string) (string, error) {
	if err := validateAddr(escrowAddr); err != nil {
		return "", fmt.Errorf("escrow: %w", err)
	}
	if depositIndex < 0 {
		return "", fmt.Errorf("%w: negative deposit index %d", ErrInvalidAddressInput, depositIndex)
	}
	if checkpoint == "" {
		return "", fmt.Errorf("%w: empty checkpoint", ErrInvalidAddressInput)
	}
	return derive(tagRecord, escrowAddr, strconv.FormatInt(depositIndex, 10), checkpoint), nil
}

func derive(tag string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte("senda:" + tag))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return base58.Encode(h.Sum(nil))
}

func validateAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidAddressInput)
	}
	if len(base58.Decode(addr)) == 0 {
		return fmt.Errorf("%w: %q is not base58", ErrInvalidAddressInput, addr)
	}
	return nil
}
