// Package canonhash computes the digest that every signer of a ledger
// transaction signs. The encoding has to be identical on each signer and on
// the gateway: compact JSON of a fixed-shape payload, hashed with SHA-256.
package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Sum returns the SHA-256 digest of v's compact JSON encoding.
func Sum(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

// SumHex is Sum rendered as "sha256:<hex>", for digests that travel inside
// JSON documents.
func SumHex(v any) (string, error) {
	sum, err := Sum(v)
	if err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(sum), nil
}
