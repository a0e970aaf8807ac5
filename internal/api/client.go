package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"agentvoice/native/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionPath is the session issuance endpoint, relative to the API base.
const SessionPath = "/v1/session"

// DefaultBaseURL points at the dev session server's default address.
const DefaultBaseURL = "http://localhost:8080"

type errorResponse struct {
	Detail string `json:"detail"`
}

// SessionError is returned when the session endpoint answers with a non-2xx status.
type SessionError struct {
	StatusCode int
	Detail     string
}

func (e *SessionError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("session request failed with status %d", e.StatusCode)
}

// Client issues voice sessions from the agent API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates an API client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newDefaultHTTPClient(),
		logger:     log.With().Str("module", "api").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newDefaultHTTPClient bounds connection setup but leaves the request
// lifetime to the caller's context.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// CreateSession posts the agent credential and returns the issued session.
func (c *Client) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SessionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	c.logger.Debug().Str("request_id", requestID).Str("url", httpReq.URL.String()).Msg("requesting session")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		// Bodies that are not JSON fall back to the status-only message.
		_ = json.Unmarshal(respBody, &errResp)
		c.logger.Warn().Str("request_id", requestID).Int("status", resp.StatusCode).Str("detail", errResp.Detail).Msg("session request rejected")
		return nil, &SessionError{StatusCode: resp.StatusCode, Detail: errResp.Detail}
	}

	var session domain.Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	c.logger.Info().Str("request_id", requestID).Str("session_id", session.ID).Msg("session issued")
	return &session, nil
}
