// Package resend is a client for the Resend email delivery API: sending
// campaign mail and listing the provider-side template catalog.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/velora/crm-server/internal/config"
	"github.com/velora/crm-server/internal/pkg/httpretry"
)

// Client is a Resend API client
type Client struct {
	baseURL string
	apiKey  string

	// sendClient has no retry wrapper: a timed-out send may still have
	// been accepted upstream, and the dispatch loop treats each message
	// as try-once.
	sendClient httpretry.HTTPDoer
	readClient httpretry.HTTPDoer
}

// NewClient creates a new Resend API client
func NewClient(cfg config.ResendConfig) *Client {
	base := &http.Client{Timeout: cfg.Timeout()}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		sendClient: base,
		readClient: httpretry.NewRetryClient(base, 3),
	}
}

// SendRequest is the payload for a single email send.
type SendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    []Tag             `json:"tags,omitempty"`
}

// Tag labels a send for provider-side reporting.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SendResponse is the provider's acknowledgement of an accepted send.
type SendResponse struct {
	ID string `json:"id"`
}

// Template is a provider-side email template.
type Template struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	CreatedAt string `json:"created_at"`
}

type templateListResponse struct {
	Data []Template `json:"data"`
}

// Send submits one email and returns the provider message id.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	body, err := c.doRequest(ctx, c.sendClient, http.MethodPost, "/emails", req)
	if err != nil {
		return nil, fmt.Errorf("sending email: %w", err)
	}
	var resp SendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing send response: %w", err)
	}
	return &resp, nil
}

// ListTemplates fetches the provider's template catalog. Reads are
// idempotent so this path retries on transient failures.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	body, err := c.doRequest(ctx, c.readClient, http.MethodGet, "/templates", nil)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	var resp templateListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing template list: %w", err)
	}
	return resp.Data, nil
}

// doRequest makes an HTTP request to the Resend API
func (c *Client) doRequest(ctx context.Context, client httpretry.HTTPDoer, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
