// Package authn authenticates API callers. Credentials are opaque bearer
// tokens; only their SHA-256 hash is stored, next to the party the token
// acts for.
package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnauthorized = errors.New("unauthorized")

// Caller is the authenticated identity behind an API request.
type Caller struct {
	CredentialID string
	PartyID      string
	Label        string
}

// AuthenticateBearer resolves an Authorization header to a live credential.
// Revoked credentials fail exactly like unknown ones.
func AuthenticateBearer(ctx context.Context, db *pgxpool.Pool, authorization string) (*Caller, error) {
	token, ok := ParseBearerToken(authorization)
	if !ok {
		return nil, ErrUnauthorized
	}
	var out Caller
	err := db.QueryRow(ctx, `
SELECT credential_id, party_id, label
FROM api_credentials
WHERE token_hash=$1
  AND revoked_at IS NULL
`, HashToken(token)).Scan(&out.CredentialID, &out.PartyID, &out.Label)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return &out, nil
}

func ParseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
