package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/keyvault"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
)

type Config struct {
	ServicePort      string        `env:"SERVICE_PORT" envDefault:"8084"`
	DatabaseURL      string        `env:"DATABASE_URL,required"`
	LedgerGatewayURL string        `env:"LEDGER_GATEWAY_URL,required"`
	NotifierURL      string        `env:"NOTIFIER_URL"`
	NotifierSecret   string        `env:"NOTIFIER_SECRET"`
	ClaimBaseURL     string        `env:"CLAIM_BASE_URL" envDefault:"https://app.senda.finance/claim"`
	ClaimTokenSecret string        `env:"CLAIM_TOKEN_SECRET,required"`
	ConfirmWindow    time.Duration `env:"CONFIRM_WINDOW" envDefault:"60s"`

	// RequireAuth gates the /escrow API behind api_credentials bearer
	// tokens. Off by default for local development.
	RequireAuth bool `env:"API_AUTH_REQUIRED" envDefault:"false"`

	// FeePayerSeed is the hex-encoded 32-byte ed25519 seed of the service
	// fee-payer key.
	FeePayerSeed string `env:"FEE_PAYER_SEED,required"`

	// VaultSealingKey is the hex-encoded 32-byte secretbox key protecting
	// custodial private keys at rest.
	VaultSealingKey string `env:"VAULT_SEALING_KEY,required"`

	// AssetMints maps supported asset symbols to their ledger mint
	// addresses, e.g. "USDC:EPjF...,USDT:Es9v...".
	AssetMints map[string]string `env:"ASSET_MINTS" envKeyValSeparator:":" envSeparator:"," envDefault:"USDC:EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v,USDT:Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.FeePayer(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.SealingKey(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Mints(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) FeePayer() (keyvault.SignerKey, error) {
	seed, err := hex.DecodeString(c.FeePayerSeed)
	if err != nil {
		return keyvault.SignerKey{}, fmt.Errorf("FEE_PAYER_SEED: %w", err)
	}
	return keyvault.SignerFromSeed(seed)
}

func (c Config) SealingKey() ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(c.VaultSealingKey)
	if err != nil {
		return key, fmt.Errorf("VAULT_SEALING_KEY: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("VAULT_SEALING_KEY must be 32 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// Mints validates the configured asset table and types its keys.
func (c Config) Mints() (map[domain.Asset]string, error) {
	if len(c.AssetMints) == 0 {
		return nil, fmt.Errorf("ASSET_MINTS must list at least one asset")
	}
	out := make(map[domain.Asset]string, len(c.AssetMints))
	for sym, mint := range c.AssetMints {
		asset, err := domain.ParseAsset(sym)
		if err != nil {
			return nil, fmt.Errorf("ASSET_MINTS: %w: %q", err, sym)
		}
		if mint == "" {
			return nil, fmt.Errorf("ASSET_MINTS: empty mint for %s", asset)
		}
		out[asset] = mint
	}
	return out, nil
}
