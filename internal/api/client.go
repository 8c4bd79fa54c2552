// Package api implements the HTTP client for the SmartChat backend.
//
// Responses to authenticated operations pass through the auth.ResponseGuard
// before the body is considered, so a 401 latches the session exactly once no
// matter which operation tripped it. Login and Register skip the guard: a 401
// there means wrong credentials, not an expired session, and is reported like
// any other failure.
package api

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

	"github.com/smartchat-ai/smartchat/internal/auth"
)

// ErrUnauthorized is returned for a 401 response to an authenticated
// operation. By the time the caller sees it the guard has already latched the
// session.
var ErrUnauthorized = errors.New("api: unauthorized")

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to the SmartChat backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      *auth.CredentialStore
	guard      *auth.ResponseGuard
}

// NewClient creates a backend client. baseURL must be non-empty (e.g.,
// "https://api.smartchat.example"); trailing slashes are trimmed.
func NewClient(baseURL string, creds *auth.CredentialStore, guard *auth.ResponseGuard, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		creds:      creds,
		guard:      guard,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- payload types ----

// Session is the token triple returned by login.
type Session struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
	Username string `json:"username"`
}

// HistoryEntry is one stored exchange: the user's message, the assistant's
// reply, and an optional grammar correction.
type HistoryEntry struct {
	MessageID        json.Number `json:"message_id"`
	UserMessage      string      `json:"user_message"`
	AIResponse       string      `json:"ai_response"`
	CorrectedMessage string      `json:"corrected_message"`
}

// SendResult is the backend's answer to a sent message: the server-assigned
// id for the user message and the assistant's reply text.
type SendResult struct {
	MessageID json.Number `json:"message_id"`
	Reply     string      `json:"reply"`
}

// Correction is the grammar-check result for one user message.
type Correction struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

// Order describes a payment order created by the backend. ProviderKey is the
// publishable key the checkout collaborator needs to confirm the order.
type Order struct {
	OrderID     string `json:"order_id"`
	ProviderKey string `json:"provider_key"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// ---- operations ----

// Login exchanges credentials for a token pair. On success the credential
// store is updated and persisted.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var out Session
	err := c.doUnauth(ctx, http.MethodPost, "/login/", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return Session{}, err
	}
	if err := c.creds.SetSession(out.Access, out.Refresh, out.Username); err != nil {
		return Session{}, fmt.Errorf("api: persist session: %w", err)
	}
	return out, nil
}

// Register creates a new account. The caller logs in separately afterwards.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.doUnauth(ctx, http.MethodPost, "/register/", map[string]string{
		"username": username,
		"password": password,
	}, nil)
}

// Logout asks the server to blacklist the refresh token. Best-effort: local
// teardown proceeds regardless of the result, so callers typically log the
// error and move on.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/logout/", map[string]string{
		"refresh": c.creds.RefreshToken(),
	}, nil)
}

// History fetches the stored conversation in server order.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var out []HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/chat/history/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send submits a user message and returns the server-assigned message id
// together with the assistant's reply.
func (c *Client) Send(ctx context.Context, text string) (SendResult, error) {
	var out SendResult
	err := c.do(ctx, http.MethodPost, "/chat/send/", map[string]string{
		"text": text,
	}, &out)
	return out, err
}

// GrammarCheck requests a grammar correction for a previously confirmed user
// message.
func (c *Client) GrammarCheck(ctx context.Context, messageID string) (Correction, error) {
	var out Correction
	err := c.do(ctx, http.MethodPost, "/chat/grammar-check/", map[string]string{
		"message_id": messageID,
	}, &out)
	return out, err
}

// CreateSubscription asks the backend to create a payment order for the given
// amount in minor units. The returned order descriptor is handed to the
// checkout collaborator untouched.
func (c *Client) CreateSubscription(ctx context.Context, amount int64) (Order, error) {
	var out Order
	err := c.do(ctx, http.MethodPost, "/create-subscription/", map[string]int64{
		"amount": amount,
	}, &out)
	return out, err
}

// ---- transport ----

// errorBody is the backend's JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do performs one JSON round trip for an authenticated operation: the
// response status is run through the guard, so a 401 latches the session.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.roundTrip(ctx, method, path, in, out, true)
}

// doUnauth performs one JSON round trip for the operations that exist to
// establish a session. A 401 here is an ordinary failure (wrong credentials)
// and must not touch the guard or the credential store.
func (c *Client) doUnauth(ctx context.Context, method, path string, in, out any) error {
	return c.roundTrip(ctx, method, path, in, out, false)
}

// roundTrip builds the request, attaches the current auth header when one is
// present, and decodes the JSON response or error envelope.
func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any, guarded bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if h := c.creds.AuthHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if guarded && c.guard.Inspect(resp.StatusCode) {
		return fmt.Errorf("api: %s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if data, readErr := io.ReadAll(resp.Body); readErr == nil {
			_ = json.Unmarshal(data, &eb)
		}
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		if msg != "" {
			return fmt.Errorf("api: %s %s: HTTP %d: %s", method, path, resp.StatusCode, msg)
		}
		return fmt.Errorf("api: %s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s response: %w", path, err)
	}
	return nil
}
