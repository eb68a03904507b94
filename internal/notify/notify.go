// Package notify informs counterparties about pending or claimable funds.
// Delivery mechanics live in an external service; this is only its client.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body, keyed
// with the shared notifier secret, so the receiving service can reject
// forged notifications.
const SignatureHeader = "X-Senda-Signature"

type Notification struct {
	RecipientEmail    string `json:"recipient_email"`
	Amount            string `json:"amount"`
	Asset             string `json:"asset"`
	SenderDisplayName string `json:"sender_display_name"`
	ClaimURL          string `json:"claim_url,omitempty"`
}

type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

type HTTPDispatcher struct {
	BaseURL string
	HTTP    *http.Client

	// Secret, when set, enables request signing.
	Secret []byte
}

func NewHTTPDispatcher(baseURL string, secret []byte) *HTTPDispatcher {
	return &HTTPDispatcher{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Secret:  secret,
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sigHex is a valid signature of body. Used
// by services receiving these notifications.
func VerifySignature(secret, body []byte, sigHex string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(sigHex))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}

func (d *HTTPDispatcher) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if len(d.Secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(d.Secret, body))
	}
	resp, err := d.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier returned %d", resp.StatusCode)
	}
	return nil
}

// Noop is used when no notifier is configured; deposits still work, the
// counterparty just is not emailed.
type Noop struct{}

func (Noop) Notify(ctx context.Context, n Notification) error { return nil }
