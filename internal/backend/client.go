// Package backend handles HTTP communication with the remote backend that
// queued mutations are replayed against.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tildaslashalef/driftq/internal/config"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/mutation"
)

// Backend is the surface the syncer replays mutations through. The HTTP
// client implements it; tests substitute fakes.
type Backend interface {
	// Submit replays one mutation and returns the server's authoritative
	// record for the affected entity
	Submit(ctx context.Context, m *mutation.Mutation) (*mutation.ServerRecord, error)

	// Ping checks whether the backend is reachable
	Ping(ctx context.Context) error
}

// Client handles HTTP communication with the driftq backend
type Client struct {
	baseURL      string
	token        string
	clientID     string
	timeout      time.Duration
	httpClient   *http.Client
	logger       *loggy.Logger
	settingsRepo config.SettingsRepository
}

// NewClient creates a new HTTP client for backend communication
func NewClient(baseURL, token string, timeout time.Duration, logger *loggy.Logger) *Client {
	// Create HTTP client with custom transport for connection pooling
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SetToken updates the authentication token
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetBaseURL updates the backend base URL
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// SetClientID sets the client identity sent with every request
func (c *Client) SetClientID(id string) {
	c.clientID = id
}

// SetSettingsRepository sets the settings repository for the client
func (c *Client) SetSettingsRepository(repo config.SettingsRepository) {
	c.settingsRepo = repo
}

// GetToken returns the current token, checking the settings repository if available
func (c *Client) GetToken() string {
	// If we have a settings repo, try to get the latest token from it
	if c.settingsRepo != nil && c.token == "" {
		// Use context with short timeout for DB lookup
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		token, err := c.settingsRepo.GetSetting(ctx, "remote.token")
		if err != nil {
			c.logger.Warn("Failed to get token from settings, using cached token", "error", err)
		} else if token != "" {
			// Update local cache
			c.token = token
		}
	}

	return c.token
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.ErrorCode, e.Message)
}

// Submit replays one mutation against the backend:
//
//	create -> POST   /api/resources/{resource}
//	update -> PUT    /api/resources/{resource}/{entityKey}
//	delete -> DELETE /api/resources/{resource}/{entityKey}
func (c *Client) Submit(ctx context.Context, m *mutation.Mutation) (*mutation.ServerRecord, error) {
	resource := url.PathEscape(m.Resource)
	entity := url.PathEscape(m.EntityKey)

	switch m.Op {
	case mutation.OpCreate:
		target := fmt.Sprintf("%s/api/resources/%s", c.baseURL, resource)
		return c.sendRequest(ctx, http.MethodPost, target, m.Payload)

	case mutation.OpUpdate:
		target := fmt.Sprintf("%s/api/resources/%s/%s", c.baseURL, resource, entity)
		return c.sendRequest(ctx, http.MethodPut, target, m.Payload)

	case mutation.OpDelete:
		target := fmt.Sprintf("%s/api/resources/%s/%s", c.baseURL, resource, entity)
		record, err := c.sendRequest(ctx, http.MethodDelete, target, nil)
		if err != nil {
			return nil, err
		}
		// Deletes often answer with an empty body, synthesize the record
		if record.ID == "" {
			record.ID = m.EntityKey
			record.Resource = m.Resource
		}
		return record, nil
	}

	return nil, fmt.Errorf("unknown mutation operation: %q", m.Op)
}

// Ping checks backend reachability via the health endpoint
func (c *Client) Ping(ctx context.Context) error {
	target := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	return nil
}

// VerifyToken verifies if a token is valid
func (c *Client) VerifyToken(ctx context.Context) (bool, error) {
	target := fmt.Sprintf("%s/api/auth/verify", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	c.setHeaders(req)

	// Execute request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode == http.StatusOK {
		return true, nil
	}

	// If status is unauthorized, token is invalid
	if resp.StatusCode == http.StatusUnauthorized {
		return false, nil
	}

	// For other errors, parse the error response
	return false, decodeAPIError(resp)
}

// sendRequest sends one request and decodes the server record response
func (c *Client) sendRequest(ctx context.Context, method, target string, body json.RawMessage) (*mutation.ServerRecord, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	// Create request
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	c.setHeaders(req)

	// Execute request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	// Parse response, tolerating empty bodies (204 on deletes)
	var record mutation.ServerRecord
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&record); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}

	return &record, nil
}

// setHeaders adds auth and identity headers to a request
func (c *Client) setHeaders(req *http.Request) {
	token := c.GetToken()
	if token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	if c.clientID != "" {
		req.Header.Add("X-Driftq-Client", c.clientID)
	}
	req.Header.Add("Content-Type", "application/json")
}

// decodeAPIError turns a non-2xx response into an APIError, preserving the
// status code even when the body is not parseable
func decodeAPIError(resp *http.Response) error {
	var apiErr APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		return APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}

// Classify maps a Submit error to the failure taxonomy: connection and
// server-side trouble is worth retrying, a rejected payload is not.
func Classify(err error) mutation.FailureKind {
	if err == nil {
		return ""
	}

	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusConflict:
			return mutation.FailureConflict
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests:
			return mutation.FailureTransient
		case apiErr.StatusCode >= 500:
			return mutation.FailureTransient
		case apiErr.StatusCode >= 400:
			return mutation.FailureValidation
		}
		return mutation.FailureTransient
	}

	// Transport-level failures: refused connections, DNS errors, timeouts
	return mutation.FailureTransient
}
