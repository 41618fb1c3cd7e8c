// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// DefaultBrevoEndpoint is the Brevo transactional email API.
const DefaultBrevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoTransport sends mail through the Brevo HTTP API.
type BrevoTransport struct {
	apiKey   string
	endpoint string
	from     Sender
	client   *http.Client
}

// BrevoOption configures a BrevoTransport.
type BrevoOption func(*BrevoTransport)

// WithBrevoEndpoint overrides the API endpoint.
func WithBrevoEndpoint(endpoint string) BrevoOption {
	return func(t *BrevoTransport) { t.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) BrevoOption {
	return func(t *BrevoTransport) { t.client = client }
}

// NewBrevoTransport creates a BrevoTransport.
func NewBrevoTransport(apiKey string, from Sender, opts ...BrevoOption) (*BrevoTransport, error) {
	if apiKey == "" {
		return nil, oops.Code("NOTIFY_BREVO_INVALID").Errorf("brevo api key is required")
	}
	if from.Email == "" {
		return nil, oops.Code("NOTIFY_BREVO_INVALID").Errorf("sender email is required")
	}
	t := &BrevoTransport{
		apiKey:   apiKey,
		endpoint: DefaultBrevoEndpoint,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent,omitempty"`
}

// Send delivers msg. 4xx responses other than 429 are permanent and wrap
// ErrRejected.
func (t *BrevoTransport) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(brevoRequest{
		Sender:      brevoAddress{Email: t.from.Email, Name: t.from.Name},
		To:          []brevoAddress{{Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		TextContent: msg.Text,
	})
	if err != nil {
		return oops.Code("NOTIFY_BREVO_FAILED").With("operation", "encode request").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return oops.Code("NOTIFY_BREVO_FAILED").With("operation", "build request").Wrap(err)
	}
	req.Header.Set("api-key", t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return oops.Code("NOTIFY_BREVO_FAILED").With("operation", "send request").Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	// Provider error bodies are short JSON documents; cap what we keep.
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := fmt.Errorf("brevo returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		statusErr = errRejected(statusErr)
	}
	return oops.Code("NOTIFY_BREVO_FAILED").
		With("status", resp.StatusCode).
		Wrap(statusErr)
}
