// Package keyvault holds custodial signing keys on parties' behalf. Private
// keys are sealed with a service-wide secretbox key before they reach the
// store and are decrypted only for the duration of a signing operation.
package keyvault

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrKeyNotFound = errors.New("custodial key not found")
	ErrSealedBlob  = errors.New("sealed key blob is corrupt")
)

// BlobStore persists sealed private-key material per party.
type BlobStore interface {
	SaveKeyBlob(ctx context.Context, partyID string, blob []byte) error
	LoadKeyBlob(ctx context.Context, partyID string) ([]byte, error)
}

// SignerKey is a decrypted custodial key, alive only for the signing call
// that loaded it.
type SignerKey struct {
	addr string
	priv ed25519.PrivateKey
}

func (k SignerKey) Address() string { return k.addr }

func (k SignerKey) Sign(payloadHash []byte) []byte {
	return ed25519.Sign(k.priv, payloadHash)
}

// SignerFromSeed builds a signer from a raw 32-byte ed25519 seed. Used for
// the service fee-payer key, which is configured rather than stored.
func SignerFromSeed(seed []byte) (SignerKey, error) {
	if len(seed) != ed25519.SeedSize {
		return SignerKey{}, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return SignerKey{
		addr: base58.Encode(priv.Public().(ed25519.PublicKey)),
		priv: priv,
	}, nil
}

// Vault seals and unseals custodial keys against a BlobStore.
type Vault struct {
	store      BlobStore
	sealingKey [32]byte
}

func New(store BlobStore, sealingKey [32]byte) *Vault {
	return &Vault{store: store, sealingKey: sealingKey}
}

// GenerateKeypair creates a custodial keypair for a party, persists the
// sealed private key, and returns the wallet address.
func (v *Vault) GenerateKeypair(ctx context.Context, partyID string) (string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	blob, err := v.seal(priv.Seed())
	if err != nil {
		return "", err
	}
	if err := v.store.SaveKeyBlob(ctx, partyID, blob); err != nil {
		return "", err
	}
	return base58.Encode(pub), nil
}

// LoadSignerKey unseals a party's custodial key for one signing operation.
func (v *Vault) LoadSignerKey(ctx context.Context, partyID string) (SignerKey, error) {
	blob, err := v.store.LoadKeyBlob(ctx, partyID)
	if err != nil {
		return SignerKey{}, err
	}
	if blob == nil {
		return SignerKey{}, fmt.Errorf("%w: party %s", ErrKeyNotFound, partyID)
	}
	seed, err := v.unseal(blob)
	if err != nil {
		return SignerKey{}, err
	}
	return SignerFromSeed(seed)
}

func (v *Vault) seal(seed []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], seed, &nonce, &v.sealingKey), nil
}

func (v *Vault) unseal(blob []byte) ([]byte, error) {
	if len(blob) < 24 {
		return nil, ErrSealedBlob
	}
	var nonce [24]byte
	copy(nonce[:], blob[:24])
	seed, ok := secretbox.Open(nil, blob[24:], &nonce, &v.sealingKey)
	if !ok {
		return nil, ErrSealedBlob
	}
	return seed, nil
}
