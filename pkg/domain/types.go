package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PartyRole distinguishes custodial guest accounts, created on first
// reference by email, from parties that completed onboarding.
type PartyRole string

const (
	RoleGuest    PartyRole = "GUEST"
	RoleVerified PartyRole = "VERIFIED"
)

type Party struct {
	PartyID       string    `json:"party_id"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"wallet_address"`
	Role          PartyRole `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

// Asset is a supported stable-value token, identified by its symbol. The
// ledger-side mint address lives in configuration, not here.
type Asset string

const (
	AssetUSDC Asset = "USDC"
	AssetUSDT Asset = "USDT"
)

var ErrUnsupportedAsset = errors.New("unsupported asset")

func ParseAsset(s string) (Asset, error) {
	switch Asset(strings.ToUpper(strings.TrimSpace(s))) {
	case AssetUSDC:
		return AssetUSDC, nil
	case AssetUSDT:
		return AssetUSDT, nil
	}
	return "", ErrUnsupportedAsset
}

type EscrowState string

const (
	EscrowActive EscrowState = "ACTIVE"
	EscrowClosed EscrowState = "CLOSED"
)

// Escrow is the relational mirror of one ledger escrow account. The ledger
// account is the source of truth; DepositCount and the per-asset totals are
// reconciled on every mutating access.
type Escrow struct {
	EscrowAddress   string      `json:"escrow_address"`
	SenderAddress   string      `json:"sender_address"`
	ReceiverAddress string      `json:"receiver_address"`
	DepositCount    int64       `json:"deposit_count"`
	State           EscrowState `json:"state"`
	CreatedAt       time.Time   `json:"created_at"`
}

type DepositState string

const (
	DepositPending   DepositState = "PENDING"
	DepositReleasing DepositState = "RELEASING"
	DepositCompleted DepositState = "COMPLETED"
	DepositCancelled DepositState = "CANCELLED"
)

// DepositRecord is one transfer attempt within an escrow. Records are an
// audit trail: they reach COMPLETED or CANCELLED and are never deleted.
type DepositRecord struct {
	DepositID           string          `json:"deposit_id"`
	EscrowAddress       string          `json:"escrow_address"`
	DepositIndex        int64           `json:"deposit_index"`
	Asset               Asset           `json:"asset"`
	Amount              decimal.Decimal `json:"amount"`
	Policy              SignaturePolicy `json:"policy"`
	SenderApproved      bool            `json:"sender_approved"`
	ReceiverApproved    bool            `json:"receiver_approved"`
	State               DepositState    `json:"state"`
	SettlementSignature string          `json:"settlement_signature,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Terminal reports whether no further approval or release may mutate the
// record.
func (d DepositRecord) Terminal() bool {
	return d.State == DepositCompleted || d.State == DepositCancelled
}
