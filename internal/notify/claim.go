package notify

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimIssuer mints signed claim links for guest recipients. The onboarding
// flow (out of scope here) verifies the token before attaching the deposit
// to a verified account.
type ClaimIssuer struct {
	Secret  []byte
	BaseURL string
	TTL     time.Duration
}

func NewClaimIssuer(secret []byte, baseURL string) *ClaimIssuer {
	return &ClaimIssuer{Secret: secret, BaseURL: baseURL, TTL: 14 * 24 * time.Hour}
}

type claimClaims struct {
	DepositID string `json:"deposit_id"`
	jwt.RegisteredClaims
}

func (c *ClaimIssuer) ClaimURL(depositID, recipientEmail string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claimClaims{
		DepositID: depositID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   recipientEmail,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL)),
		},
	})
	signed, err := token.SignedString(c.Secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?token=%s", c.BaseURL, url.QueryEscape(signed)), nil
}

// VerifyClaim parses a claim token and returns the deposit id and recipient
// email it was minted for.
func (c *ClaimIssuer) VerifyClaim(tokenString string) (depositID, recipientEmail string, err error) {
	var claims claimClaims
	_, err = jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.Secret, nil
	})
	if err != nil {
		return "", "", err
	}
	return claims.DepositID, claims.Subject, nil
}
