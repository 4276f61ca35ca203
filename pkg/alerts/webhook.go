package alerts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	userAgent      = "opsalert/1.0"
	defaultTimeout = 10 * time.Second
)

// Sender posts a JSON payload to a webhook URL.
type Sender interface {
	Send(ctx context.Context, url string, payload any) error
}

// StatusError is returned when the receiver answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// WebhookSender delivers payloads over HTTP. Each call is a single attempt;
// retries are left to the next dispatch of the alert.
type WebhookSender struct {
	client *resty.Client
	secret string
}

// NewWebhookSender creates a webhook sender. If secret is non-empty, request
// bodies are signed with HMAC-SHA256. A zero timeout means 10s.
func NewWebhookSender(secret string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", userAgent)

	return &WebhookSender{client: client, secret: secret}
}

func (w *WebhookSender) Send(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req := w.client.R().
		SetContext(ctx).
		SetBody(body)
	if w.secret != "" {
		req.SetHeader("X-Signature-256", "sha256="+computeHMAC(body, []byte(w.secret)))
	}

	resp, err := req.Post(url)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	if !resp.IsSuccess() {
		return &StatusError{StatusCode: resp.StatusCode()}
	}
	return nil
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
