// Package desk is a thin client for the Zoho Desk ticket API. It owns the
// single process-wide OAuth credential and refreshes it lazily under a mutex
// so concurrent requests share one refresh instead of racing their own.
package desk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/smsdesk/bridge/pkg/logging"
)

// APIError is a non-2xx answer from the ticket backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("desk: API error (status %d): %s", e.StatusCode, e.Body)
}

// Config holds configuration for the Desk client.
type Config struct {
	BaseURL      string // e.g. "https://desk.zoho.com"
	AccountsURL  string // e.g. "https://accounts.zoho.com"
	ClientID     string
	ClientSecret string
	RefreshToken string
	OrgID        string
	Department   string // default departmentId for created tickets
	Timeout      time.Duration
}

// Client talks to the Zoho Desk REST API.
type Client struct {
	baseURL      string
	accountsURL  string
	clientID     string
	clientSecret string
	refreshToken string
	orgID        string
	department   string
	httpClient   *http.Client
	logger       *logging.Logger

	// OAuth credential, guarded so a crossed expiry triggers exactly one
	// refresh however many requests are in flight.
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New creates a new Desk client.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("desk: BaseURL is required")
	}
	if cfg.AccountsURL == "" {
		return nil, fmt.Errorf("desk: AccountsURL is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("desk: OAuth credentials are required")
	}
	if cfg.OrgID == "" {
		return nil, fmt.Errorf("desk: OrgID is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		accountsURL:  strings.TrimSuffix(cfg.AccountsURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		orgID:        cfg.OrgID,
		department:   cfg.Department,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}, nil
}

// SearchRecent lists the most recently modified tickets with their contacts
// attached. The backend has no reliable phone filter, so callers filter the
// window client-side.
func (c *Client) SearchRecent(ctx context.Context, limit int, sortBy string) ([]Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	if sortBy == "" {
		sortBy = "modifiedTime"
	}
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("sortBy", sortBy)
	params.Set("include", "contacts")

	var result struct {
		Data []Ticket `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/tickets?"+params.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// GetTicket fetches one ticket by id.
func (c *Client) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	var ticket Ticket
	if err := c.call(ctx, http.MethodGet, "/api/v1/tickets/"+id+"?include=contacts", nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// PatchTicket applies a partial update to a ticket.
func (c *Client) PatchTicket(ctx context.Context, id string, fields map[string]any) error {
	return c.call(ctx, http.MethodPatch, "/api/v1/tickets/"+id, fields, nil)
}

// ListComments returns a ticket's comments.
func (c *Client) ListComments(ctx context.Context, id string) ([]Comment, error) {
	var result struct {
		Data []Comment `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/tickets/"+id+"/comments?limit=100", nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// AddComment appends a plain-text comment to a ticket and returns its id.
func (c *Client) AddComment(ctx context.Context, id, content string, isPublic bool) (string, error) {
	body := map[string]any{
		"content":     content,
		"contentType": "plainText",
		"isPublic":    isPublic,
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/tickets/"+id+"/comments", body, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("desk: comment response missing id")
	}
	return result.ID, nil
}

// CreateTicket opens a new ticket, defaulting the department from config.
func (c *Client) CreateTicket(ctx context.Context, req CreateTicketRequest) (*CreatedTicket, error) {
	if req.Department == "" {
		req.Department = c.department
	}
	var created CreatedTicket
	if err := c.call(ctx, http.MethodPost, "/api/v1/tickets", req, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("desk: create response missing id")
	}
	return &created, nil
}

// call performs one authenticated API round trip. The response body is
// decoded into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return fmt.Errorf("desk: authentication failed: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("desk: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("desk: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("orgId", c.orgID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("desk: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("desk: failed to decode response: %w", err)
	}
	return nil
}

// ensureToken returns a valid access token, refreshing it when absent or
// expired. A single mutex serializes the check-and-refresh so one refresh
// serves every concurrent caller.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	data := url.Values{}
	data.Set("refresh_token", c.refreshToken)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/oauth/v2/token", strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token refresh failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	c.logger.Info("refreshed desk access token", "expires_in", expiresIn)

	return c.accessToken, nil
}
