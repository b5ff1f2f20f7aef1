package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rezkam/jobcore/internal/domain"
)

// HTTP executes a job by issuing a single HTTP request built from its
// payload: {method, url, headers, body}. A 2xx response is success; the
// response body is parsed as JSON into the output bag when possible, or
// carried as a raw string under "body" otherwise.
type HTTP struct {
	Client *http.Client
}

func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Client: client}
}

func (h *HTTP) Execute(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
	method, _ := payload["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	url, _ := payload["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("%w: http executor requires payload.url", domain.ErrConfigurationError)
	}

	var body io.Reader
	if b, ok := payload["body"]; ok && b != nil {
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %s", domain.ErrConfigurationError, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigurationError, err)
	}
	if headers, ok := payload["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http executor: unexpected status %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	out := domain.Bag{"status_code": resp.StatusCode}
	var parsed any
	if len(respBody) > 0 && json.Unmarshal(respBody, &parsed) == nil {
		out["body"] = parsed
	} else if len(respBody) > 0 {
		out["body"] = string(respBody)
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
