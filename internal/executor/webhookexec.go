package executor

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

	"github.com/rezkam/jobcore/internal/domain"
)

// Webhook POSTs payload.body (an empty object when absent) as JSON to
// payload.url, signing the body with
// HMAC-SHA256 under X-Webhook-Signature when payload.secret is set.
type Webhook struct {
	Client *http.Client
}

func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{Client: client}
}

func (w *Webhook) Execute(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
	url, _ := payload["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("%w: webhook executor requires payload.url", domain.ErrConfigurationError)
	}

	body := payload["body"]
	if body == nil {
		body = domain.Bag{}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %s", domain.ErrConfigurationError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigurationError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if secret, ok := payload["secret"].(string); ok && secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(raw)
		req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook executor: unexpected status %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	return domain.Bag{"status_code": resp.StatusCode}, nil
}
