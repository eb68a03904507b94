package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type staticSigner struct {
	addr string
}

func (s staticSigner) Address() string         { return s.addr }
func (s staticSigner) Sign(hash []byte) []byte { return append([]byte("sig:"), hash...) }

func TestAccountExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/accounts/known":
			w.WriteHeader(200)
		default:
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	ok, err := c.AccountExists(context.Background(), "known")
	if err != nil || !ok {
		t.Fatalf("expected known account, got ok=%v err=%v", ok, err)
	}
	ok, err = c.AccountExists(context.Background(), "missing")
	if err != nil || ok {
		t.Fatalf("expected missing account, got ok=%v err=%v", ok, err)
	}
}

func TestSubmitCarriesSignatures(t *testing.T) {
	var got txEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transactions" {
			w.WriteHeader(404)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"signature": "tx_abc"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	sig, err := c.Release(context.Background(), ReleaseAccounts{
		Escrow:        "esc",
		Record:        "rec",
		EscrowVault:   "ev",
		ReceiverVault: "rv",
		Mint:          "mint",
		FeePayer:      "fp",
	}, decimal.NewFromInt(100), staticSigner{addr: "signer1"}, staticSigner{addr: "fp"})
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if sig != "tx_abc" {
		t.Fatalf("expected tx_abc, got %s", sig)
	}
	if got.Operation != OpRelease {
		t.Fatalf("expected release operation, got %s", got.Operation)
	}
	if len(got.Signatures) != 2 || got.Signatures[0].Signer != "signer1" || got.Signatures[1].Signer != "fp" {
		t.Fatalf("expected two signatures in order, got %+v", got.Signatures)
	}
	if got.Amount == nil || *got.Amount != "100" {
		t.Fatalf("expected amount 100, got %v", got.Amount)
	}
}

func TestSubmitConflictIsAccountExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.CreateVault(context.Background(), CreateVaultAccounts{Vault: "v", Owner: "o", Mint: "m", FeePayer: "fp"}, staticSigner{addr: "fp"})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestAwaitConfirmation(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "pending"
		if calls >= 2 {
			status = "confirmed"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.ConfirmPollInterval = time.Millisecond
	if err := c.AwaitConfirmation(context.Background(), "tx_abc", time.Second); err != nil {
		t.Fatalf("AwaitConfirmation: %v", err)
	}
	if calls < 2 {
		t.Fatalf("expected polling, got %d calls", calls)
	}
}

func TestAwaitConfirmationRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.ConfirmPollInterval = time.Millisecond
	err := c.AwaitConfirmation(context.Background(), "tx_abc", time.Second)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestAwaitConfirmationTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.ConfirmPollInterval = 5 * time.Millisecond
	err := c.AwaitConfirmation(context.Background(), "tx_abc", 20*time.Millisecond)
	if !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
}
