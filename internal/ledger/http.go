package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/retry"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/canonhash"
)

// HTTPClient talks to the ledger gateway over JSON. Transactions are signed
// by hashing a canonical payload and attaching one detached ed25519
// signature per required signer; the gateway assembles and submits the
// on-chain transaction.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client

	// ConfirmPollInterval is how often AwaitConfirmation re-checks a
	// pending transaction.
	ConfirmPollInterval time.Duration
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL:             strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:                &http.Client{Timeout: 30 * time.Second},
		ConfirmPollInterval: 2 * time.Second,
	}
}

func (c *HTTPClient) AccountExists(ctx context.Context, address string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/accounts/"+address, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("ledger gateway returned %d for account lookup", resp.StatusCode)
}

func (c *HTTPClient) RecentCheckpoint(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/checkpoint", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ledger gateway returned %d for checkpoint", resp.StatusCode)
	}
	var out struct {
		Checkpoint string `json:"checkpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Checkpoint == "" {
		return "", fmt.Errorf("ledger gateway returned empty checkpoint")
	}
	return out.Checkpoint, nil
}

func (c *HTTPClient) InitializeEscrow(ctx context.Context, accounts InitializeEscrowAccounts, signers ...Signer) (string, error) {
	return c.submit(ctx, OpInitializeEscrow, accounts, nil, signers)
}

func (c *HTTPClient) CreateVault(ctx context.Context, accounts CreateVaultAccounts, signers ...Signer) (string, error) {
	return c.submit(ctx, OpCreateVault, accounts, nil, signers)
}

func (c *HTTPClient) Deposit(ctx context.Context, accounts DepositAccounts, amount decimal.Decimal, signers ...Signer) (string, error) {
	return c.submit(ctx, OpDeposit, accounts, &amount, signers)
}

func (c *HTTPClient) Release(ctx context.Context, accounts ReleaseAccounts, amount decimal.Decimal, signers ...Signer) (string, error) {
	return c.submit(ctx, OpRelease, accounts, &amount, signers)
}

func (c *HTTPClient) Cancel(ctx context.Context, accounts CancelAccounts, signers ...Signer) (string, error) {
	return c.submit(ctx, OpCancel, accounts, nil, signers)
}

type txSignature struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

type txEnvelope struct {
	Operation  Operation       `json:"operation"`
	Accounts   json.RawMessage `json:"accounts"`
	Amount     *string         `json:"amount,omitempty"`
	Signatures []txSignature   `json:"signatures"`
}

func (c *HTTPClient) submit(ctx context.Context, op Operation, accounts any, amount *decimal.Decimal, signers []Signer) (string, error) {
	accountsJSON, err := json.Marshal(accounts)
	if err != nil {
		return "", err
	}
	env := txEnvelope{Operation: op, Accounts: accountsJSON}
	if amount != nil {
		s := amount.String()
		env.Amount = &s
	}
	hash, err := payloadHash(op, accountsJSON, env.Amount)
	if err != nil {
		return "", err
	}
	for _, s := range signers {
		env.Signatures = append(env.Signatures, txSignature{
			Signer:    s.Address(),
			Signature: hex.EncodeToString(s.Sign(hash)),
		})
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusConflict:
		return "", ErrAccountExists
	case http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s rejected by program", ErrRejected, op)
	default:
		return "", fmt.Errorf("ledger gateway returned %d for %s", resp.StatusCode, op)
	}
	var out struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Signature == "" {
		return "", fmt.Errorf("ledger gateway returned empty signature for %s", op)
	}
	return out.Signature, nil
}

// payloadHash is the message every signer signs. The payload shape is
// fixed, so independent signers hash identical bytes.
func payloadHash(op Operation, accountsJSON json.RawMessage, amount *string) ([]byte, error) {
	return canonhash.Sum(struct {
		Operation Operation       `json:"operation"`
		Accounts  json.RawMessage `json:"accounts"`
		Amount    *string         `json:"amount,omitempty"`
	}{op, accountsJSON, amount})
}

func (c *HTTPClient) AwaitConfirmation(ctx context.Context, signature string, window time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	attempts := int(window/c.ConfirmPollInterval) + 1
	err := retry.Poll(ctx, attempts, c.ConfirmPollInterval, func(ctx context.Context) (bool, error) {
		status, err := c.transactionStatus(ctx, signature)
		if err != nil {
			return false, err
		}
		switch status {
		case "confirmed", "finalized":
			return true, nil
		case "failed":
			return false, fmt.Errorf("%w: %s", ErrRejected, signature)
		}
		return false, nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, retry.ErrBudgetExhausted) {
		return fmt.Errorf("%w: %s after %s", ErrNotConfirmed, signature, window)
	}
	return err
}

func (c *HTTPClient) transactionStatus(ctx context.Context, signature string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/transactions/"+signature, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// Not yet visible; indistinguishable from pending.
		return "pending", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ledger gateway returned %d for transaction status", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Status, nil
}
