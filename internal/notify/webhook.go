package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Header names set on every webhook delivery.
const (
	HeaderSignature = "X-Primechain-Signature"
	HeaderEvent     = "X-Primechain-Event"
	HeaderDelivery  = "X-Primechain-Delivery"
)

// Webhook POSTs events as JSON to a URL, signed with an HMAC-SHA256 secret.
type Webhook struct {
	URL        string
	secret     string
	httpClient *http.Client
}

// NewWebhook creates a Webhook with a 10-second request timeout.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		URL:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Deliver performs a single HTTP POST delivery. Any non-2xx response is an
// error.
func (w *Webhook) Deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, SignPayload(body, w.secret))
	req.Header.Set(HeaderEvent, ev.Type)
	req.Header.Set(HeaderDelivery, ev.ID.String())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// SignPayload computes the signature header value for body.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the valid header value for
// body. Receivers use it to authenticate deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignPayload(body, secret)), []byte(signature))
}
