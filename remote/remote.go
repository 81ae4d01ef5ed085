// ABOUTME: Remote persistence adapter talking to the cloud server over HTTP
// ABOUTME: Implements the Store contract; non-2xx responses become *HTTPError
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/store"
)

// HTTPError is a non-2xx response from the cloud server.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: HTTP %d", e.Status)
	}
	return fmt.Sprintf("remote: HTTP %d: %s", e.Status, e.Message)
}

// Unwrap maps statuses back onto the store sentinels so callers can use errors.Is.
func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusConflict:
		return db.ErrConstraint
	case http.StatusBadRequest:
		return db.ErrInvalidValue
	case http.StatusForbidden:
		if strings.Contains(e.Message, store.ErrDeleteSelf.Error()) {
			return store.ErrDeleteSelf
		}
	}
	return nil
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

var _ store.Store = (*Client)(nil)

// New creates a client for the server at baseURL, e.g. "https://crm.example.com".
// token may be empty until Login succeeds.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// TokenExpiry reads the exp claim of the current token without verifying it.
func (c *Client) TokenExpiry() (time.Time, bool) {
	token := c.Token()
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return &HTTPError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func tablePath(table db.Table, id int64) string {
	if id == 0 {
		return "/api/" + string(table)
	}
	return "/api/" + string(table) + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) GetAll(ctx context.Context, table db.Table) ([]db.Row, error) {
	def, err := table.Def()
	if err != nil {
		return nil, err
	}

	var rows []db.Row
	if err := c.do(ctx, http.MethodGet, tablePath(table, 0), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]db.Row, len(rows))
	for i, r := range rows {
		out[i] = def.Normalize(r)
	}
	return out, nil
}

func (c *Client) Insert(ctx context.Context, table db.Table, row db.Row) (int64, error) {
	def, err := table.Def()
	if err != nil {
		return 0, err
	}
	coerced, err := def.Coerce(row)
	if err != nil {
		return 0, err
	}

	var resp struct {
		ID json.Number `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, tablePath(table, 0), coerced, &resp); err != nil {
		return 0, err
	}
	id, err := resp.ID.Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, nil
}

func (c *Client) Update(ctx context.Context, table db.Table, id int64, patch db.Row) (int64, error) {
	def, err := table.Def()
	if err != nil {
		return 0, err
	}
	coerced, err := def.Coerce(patch)
	if err != nil {
		return 0, err
	}
	delete(coerced, "id")
	return c.changes(ctx, http.MethodPut, tablePath(table, id), coerced)
}

func (c *Client) Delete(ctx context.Context, table db.Table, id int64) (int64, error) {
	if _, err := table.Def(); err != nil {
		return 0, err
	}
	return c.changes(ctx, http.MethodDelete, tablePath(table, id), nil)
}

func (c *Client) changes(ctx context.Context, method, path string, body interface{}) (int64, error) {
	var resp struct {
		Changes json.Number `json:"changes"`
	}
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return 0, err
	}
	n, err := resp.Changes.Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to read change count: %w", err)
	}
	return n, nil
}

// Login authenticates and keeps the issued token for later requests.
// Invalid credentials return a nil user and no error.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	var resp struct {
		Success bool         `json:"success"`
		User    *models.User `json:"user"`
		Token   string       `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if herr, ok := err.(*HTTPError); ok && herr.Status == http.StatusUnauthorized {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if !resp.Success || resp.User == nil {
		return nil, "", nil
	}
	c.SetToken(resp.Token)
	return resp.User, resp.Token, nil
}

func (c *Client) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, _, err := c.Login(ctx, email, password)
	return user, err
}

// SyncStatus returns the server's last successful write time.
func (c *Client) SyncStatus(ctx context.Context) (time.Time, error) {
	var resp struct {
		LastChange string `json:"lastChange"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sync/status", nil, &resp); err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, resp.LastChange)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse lastChange %q: %w", resp.LastChange, err)
	}
	return ts, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Register creates an account on the server. The first account becomes the
// admin; later ones need an admin token on this client.
func (c *Client) Register(ctx context.Context, u db.NewUser) (*models.User, error) {
	var resp struct {
		Success bool         `json:"success"`
		User    *models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", u, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}
