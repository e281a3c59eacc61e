// Package client talks to the exception forms API. It keeps the login
// session, attaches it as a bearer token and implements the review
// workflows on top of the REST calls: fetch-after-write saves, the
// pure/mapped detail fallback, single-file uploads and mode-aware
// dashboards.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"exceptionforms/models"
)

var (
	ErrNotAuthenticated = errors.New("not logged in")
	ErrNoFile           = errors.New("no file selected")
	ErrUploadInProgress = errors.New("an upload is already in progress")
	ErrUploadRejected   = errors.New("the server accepted none of the uploaded files")
)

// APIError is a non-2xx response. Message is the server's error text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// Session is the token and user returned by a login.
type Session struct {
	Token string          `json:"token"`
	User  models.UserInfo `json:"user"`
}

type Client struct {
	baseURL string
	http    *http.Client
	store   *SessionStore

	mu      sync.RWMutex
	session *Session
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSessionStore persists the session across processes.
func WithSessionStore(store *SessionStore) Option {
	return func(c *Client) { c.store = store }
}

// New returns a client for the API at baseURL. When a session store is
// configured, a previously saved session is restored.
func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store != nil {
		session, err := c.store.Load()
		if err != nil {
			return nil, err
		}
		c.session = session
	}
	return c, nil
}

func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) LoggedIn() bool {
	return c.Session() != nil
}

func (c *Client) setSession(s *Session) error {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if s == nil {
		return c.store.Clear()
	}
	return c.store.Save(s)
}

func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		Token string          `json:"token"`
		User  models.UserInfo `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", nil, body, &resp, false); err != nil {
		return nil, err
	}

	session := &Session{Token: resp.Token, User: resp.User}
	if err := c.setSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Register creates a reviewer account. It does not log in.
func (c *Client) Register(ctx context.Context, username, password, fullName string) error {
	body := map[string]string{"username": username, "password": password, "full_name": fullName}
	return c.doJSON(ctx, http.MethodPost, "/api/register", nil, body, nil, false)
}

// Logout tells the server and forgets the session. The local session is
// cleared even when the server cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	var remoteErr error
	if c.LoggedIn() {
		remoteErr = c.doJSON(ctx, http.MethodPost, "/api/logout", nil, nil, nil, true)
	}
	if err := c.setSession(nil); err != nil {
		return err
	}
	return remoteErr
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"current_password": current, "new_password": next}
	var resp Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/change-password", nil, body, &resp, true); err != nil {
		return err
	}
	return c.setSession(&resp)
}

func modeQuery(formType models.FormType, mode models.ExtractionMode) url.Values {
	q := url.Values{}
	if formType != "" {
		q.Set("form_type", string(formType))
	}
	if mode != models.ModeNone {
		q.Set("extraction_mode", string(mode))
	}
	return q
}

func (c *Client) Dashboard(ctx context.Context, formType models.FormType, mode models.ExtractionMode) (*models.Dashboard, error) {
	var out models.Dashboard
	if err := c.doJSON(ctx, http.MethodGet, "/api/dashboard", modeQuery(formType, mode), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteForm(ctx context.Context, id uint) error {
	return c.doJSON(ctx, http.MethodDelete, formPath(id), nil, nil, nil, true)
}

func (c *Client) AuditTrail(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Logs []models.AuditEntry `json:"logs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/audit-trail", q, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

func (c *Client) ExtractionMode(ctx context.Context) (models.ExtractionMode, error) {
	var out struct {
		Mode models.ExtractionMode `json:"mode"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/extraction-mode", nil, nil, &out, true); err != nil {
		return "", err
	}
	return out.Mode, nil
}

func (c *Client) SetExtractionMode(ctx context.Context, mode models.ExtractionMode) error {
	body := map[string]string{"mode": string(mode)}
	return c.doJSON(ctx, http.MethodPost, "/api/extraction-mode", nil, body, nil, true)
}

// Export streams the CSV export into w and returns the server's file name.
func (c *Client) Export(ctx context.Context, formType models.FormType, mode models.ExtractionMode, w io.Writer) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/forms/export", modeQuery(formType, mode), nil, "", true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("failed to read export: %w", err)
	}
	name := "exception_forms.csv"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, nil
}

func formPath(id uint) string {
	return "/api/form/" + strconv.FormatUint(uint64(id), 10)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any, auth bool) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, path, query, body, contentType, auth)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", resp.Request.Method, resp.Request.URL.Path, err)
	}
	return nil
}

// send performs one request. Non-2xx responses are returned as *APIError
// with the body already consumed.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, auth bool) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		session := c.Session()
		if session == nil {
			return nil, ErrNotAuthenticated
		}
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if resp.StatusCode == http.StatusUnauthorized && auth {
		// The token is no longer accepted.
		_ = c.setSession(nil)
	}
	return nil, apiErr
}
