package keyvault

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/btcsuite/btcutil/base58"
)

type memBlobStore struct {
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore { return &memBlobStore{blobs: map[string][]byte{}} }

func (m *memBlobStore) SaveKeyBlob(ctx context.Context, partyID string, blob []byte) error {
	m.blobs[partyID] = blob
	return nil
}

func (m *memBlobStore) LoadKeyBlob(ctx context.Context, partyID string) ([]byte, error) {
	return m.blobs[partyID], nil
}

func sealingKey() [32]byte {
	var k [32]byte
	copy(k[:], "0123456789abcdef0123456789abcdef")
	return k
}

func TestGenerateAndLoadRoundtrip(t *testing.T) {
	v := New(newMemBlobStore(), sealingKey())
	addr, err := v.GenerateKeypair(context.Background(), "pty_1")
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	key, err := v.LoadSignerKey(context.Background(), "pty_1")
	if err != nil {
		t.Fatalf("LoadSignerKey: %v", err)
	}
	if key.Address() != addr {
		t.Fatalf("loaded key address %s does not match generated %s", key.Address(), addr)
	}

	hash := sha256.Sum256([]byte("payload"))
	sig := key.Sign(hash[:])
	pub := ed25519.PublicKey(base58.Decode(addr))
	if !ed25519.Verify(pub, hash[:], sig) {
		t.Fatal("signature does not verify against wallet address")
	}
}

func TestLoadMissingKey(t *testing.T) {
	v := New(newMemBlobStore(), sealingKey())
	_, err := v.LoadSignerKey(context.Background(), "pty_unknown")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestBlobsAreSealed(t *testing.T) {
	store := newMemBlobStore()
	v := New(store, sealingKey())
	if _, err := v.GenerateKeypair(context.Background(), "pty_1"); err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	blob := store.blobs["pty_1"]
	if len(blob) <= 24+32 {
		t.Fatalf("blob too short to be sealed: %d bytes", len(blob))
	}
	// A vault with a different sealing key must not open the blob.
	other := New(store, [32]byte{1})
	if _, err := other.LoadSignerKey(context.Background(), "pty_1"); !errors.Is(err, ErrSealedBlob) {
		t.Fatalf("expected ErrSealedBlob with wrong sealing key, got %v", err)
	}
}

func TestSignerFromSeed(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	a, err := SignerFromSeed(seed)
	if err != nil {
		t.Fatalf("SignerFromSeed: %v", err)
	}
	b, _ := SignerFromSeed(seed)
	if a.Address() != b.Address() {
		t.Fatal("same seed must derive same address")
	}
	if _, err := SignerFromSeed(seed[:16]); err == nil {
		t.Fatal("expected error for short seed")
	}
}
