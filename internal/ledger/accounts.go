package ledger

// Each ledger program operation enumerates exactly the accounts it touches.
// The gateway rejects submissions with missing fields, so malformed
// transactions fail before signing rather than on-chain.

type Operation string

const (
	OpInitializeEscrow Operation = "initializeEscrow"
	OpDeposit          Operation = "deposit"
	OpRelease          Operation = "release"
	OpCancel           Operation = "cancel"
	OpCreateVault      Operation = "createVault"
)

// InitializeEscrowAccounts funds nothing; it creates the escrow account for
// an ordered (sender, receiver) pair.
type InitializeEscrowAccounts struct {
	Escrow   string `json:"escrow"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	FeePayer string `json:"fee_payer"`
}

// CreateVaultAccounts creates a party's per-asset custody account.
type CreateVaultAccounts struct {
	Vault    string `json:"vault"`
	Owner    string `json:"owner"`
	Mint     string `json:"mint"`
	FeePayer string `json:"fee_payer"`
}

// DepositAccounts moves funds from the sender's vault into the escrow vault
// and materializes the on-chain deposit record.
type DepositAccounts struct {
	Escrow      string `json:"escrow"`
	Record      string `json:"record"`
	SenderVault string `json:"sender_vault"`
	EscrowVault string `json:"escrow_vault"`
	Mint        string `json:"mint"`
	FeePayer    string `json:"fee_payer"`
}

// ReleaseAccounts moves escrowed funds to the receiver's vault and closes
// the on-chain deposit record.
type ReleaseAccounts struct {
	Escrow        string `json:"escrow"`
	Record        string `json:"record"`
	EscrowVault   string `json:"escrow_vault"`
	ReceiverVault string `json:"receiver_vault"`
	Mint          string `json:"mint"`
	FeePayer      string `json:"fee_payer"`
}

// CancelAccounts returns any escrowed funds for a record to the original
// depositor's vault.
type CancelAccounts struct {
	Escrow         string `json:"escrow"`
	Record         string `json:"record"`
	EscrowVault    string `json:"escrow_vault"`
	DepositorVault string `json:"depositor_vault"`
	Mint           string `json:"mint"`
	FeePayer       string `json:"fee_payer"`
}
