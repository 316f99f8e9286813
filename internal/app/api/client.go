/*
Package api is the HTTP side of the chat server contract.

It verifies the admin password, fetches the persisted message history, and derives
the WebSocket endpoint from the backend base URL.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatline/internal/app/chat"
	"chatline/internal/pkg/errs"
	"chatline/internal/pkg/logx"
)

const (
	verifyAdminPath = "/api/verify-admin"
	messagesPath    = "/api/messages"
	webSocketPath   = "/ws"

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 8 << 20
)

// Client calls the chat server's HTTP endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient returns a client for the http(s) base URL. Each request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logx.Component("APIClient").With().Str("base_url", baseURL).Logger(),
	}
}

type verifyAdminRequest struct {
	Password string `json:"password"`
}

type verifyAdminResponse struct {
	Success bool `json:"success"`
}

// VerifyAdmin asks the server whether password is the admin password.
// A rejected password is (false, nil); transport failures and unexpected
// replies are ErrServerUnavailable, throttling is ErrRateLimitExceeded.
func (c *Client) VerifyAdmin(ctx context.Context, password string) (bool, error) {
	body, err := json.Marshal(verifyAdminRequest{Password: password})
	if err != nil {
		return false, fmt.Errorf("failed to encode verify-admin request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+verifyAdminPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build verify-admin request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	var reply verifyAdminResponse
	if err := c.do(request, &reply); err != nil {
		return false, err
	}

	c.logger.Debug().Bool("success", reply.Success).Msg("Admin verification answered.")
	return reply.Success, nil
}

// FetchMessages returns the server's message history in server order.
func (c *Client) FetchMessages(ctx context.Context) ([]chat.Message, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+messagesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build messages request: %w", err)
	}

	var messages []chat.Message
	if err := c.do(request, &messages); err != nil {
		return nil, err
	}

	c.logger.Debug().Int("count", len(messages)).Msg("Fetched message history.")
	return messages, nil
}

func (c *Client) do(request *http.Request, dst any) error {
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", request.URL.Path).Msg("Request failed.")
		return fmt.Errorf("%w: %v", errs.NewError(errs.ErrServerUnavailable), err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusTooManyRequests:
		return errs.NewError(errs.ErrRateLimitExceeded)
	case response.StatusCode < 200 || response.StatusCode > 299:
		c.logger.Warn().Int("status", response.StatusCode).Str("path", request.URL.Path).Msg("Unexpected response status.")
		return fmt.Errorf("%w: unexpected status %d", errs.NewError(errs.ErrServerUnavailable), response.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.NewError(errs.ErrServerUnavailable), err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn().Err(err).Str("path", request.URL.Path).Msg("Undecodable response body.")
		return fmt.Errorf("%w: %v", errs.NewError(errs.ErrServerUnavailable), err)
	}
	return nil
}

// WebSocketURL derives the channel endpoint from the http(s) base URL:
// http becomes ws, https becomes wss, and the path gains /ws.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid backend url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("backend url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("backend url must include a host")
	}

	u.Path = strings.TrimRight(u.Path, "/") + webSocketPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
