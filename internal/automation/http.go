package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// SecretHeader carries the shared secret on automation webhooks.
	SecretHeader       = "X-Automation-Secret"
	defaultHTTPTimeout = 10 * time.Second
	responseReadLimit  = 2048
)

// HTTPTrigger POSTs the payload as JSON to the automation endpoint.
type HTTPTrigger struct {
	endpoint string
	secret   string
	client   *http.Client
}

type HTTPOption func(*HTTPTrigger)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTPTrigger) {
		if client != nil {
			t.client = client
		}
	}
}

func NewHTTPTrigger(endpoint, secret string, timeout time.Duration, opts ...HTTPOption) (*HTTPTrigger, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("automation endpoint is required")
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	t := &HTTPTrigger{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *HTTPTrigger) Fire(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal automation payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build automation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.secret != "" {
		req.Header.Set(SecretHeader, t.secret)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post automation webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return fmt.Errorf("automation webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
