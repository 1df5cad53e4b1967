// Package api is the REST client for the analyzer backend. It implements
// analysis.Backend and analysis.LogStreamer so the session state machine can
// drive a live server, and carries the account surface (auth, settings,
// server-side history) the CLI exposes directly.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

// TokenSource supplies the bearer token attached to authenticated requests.
// A source returning "" leaves the request anonymous.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource holding a fixed token.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

// TokenFunc adapts a function to the TokenSource interface.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Error is returned whenever the backend answers with a non-2xx status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to one analyzer backend.
type Client struct {
	baseURL string
	logURL  string
	httpc   *http.Client
	tokens  TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTokenSource attaches bearer tokens from src to every request.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) { c.tokens = src }
}

// WithLogEndpoint overrides the websocket URL used for real-time logs.
// By default it is derived from the base URL.
func WithLogEndpoint(rawURL string) Option {
	return func(c *Client) { c.logURL = rawURL }
}

// New returns a client for the backend at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logURL == "" {
		c.logURL = deriveLogURL(c.baseURL)
	}
	return c
}

// deriveLogURL maps the REST base URL onto the backend's websocket endpoint.
func deriveLogURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/logs/websocket"
}

// --- Analysis ---

// StartAnalysis submits a repository URL for asynchronous analysis and
// returns the session id assigned by the backend. The id arrives as a bare
// JSON scalar; a {"sessionId": ...} wrapper is also accepted.
func (c *Client) StartAnalysis(ctx context.Context, repoURL string) (string, error) {
	in := struct {
		RepoURL string `json:"repoUrl"`
	}{RepoURL: repoURL}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/analyze", in, &out); err != nil {
		return "", err
	}
	id, err := parseSessionID(unwrapSessionID(out))
	if err != nil {
		return "", fmt.Errorf("reading session id: %w", err)
	}
	return id, nil
}

// unwrapSessionID peels a {"sessionId": ...} object down to the id value.
// Anything that is not a JSON object passes through untouched.
func unwrapSessionID(raw json.RawMessage) json.RawMessage {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 || body[0] != '{' {
		return raw
	}
	var envelope struct {
		SessionID json.RawMessage `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return raw
	}
	return envelope.SessionID
}

// Status reports the current state of an analysis session.
func (c *Client) Status(ctx context.Context, sessionID string) (analysis.StatusReport, error) {
	var out struct {
		ID           json.RawMessage `json:"id"`
		Status       string          `json:"status"`
		ErrorMessage string          `json:"errorMessage"`
		CreatedAt    Timestamp       `json:"createdAt"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/status/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return analysis.StatusReport{}, err
	}
	status, ok := analysis.ParseStatus(out.Status)
	if !ok {
		return analysis.StatusReport{}, fmt.Errorf("backend reported unknown status %q", out.Status)
	}
	id := sessionID
	if parsed, err := parseSessionID(out.ID); err == nil {
		id = parsed
	}
	return analysis.StatusReport{
		ID:           id,
		Status:       status,
		ErrorMessage: out.ErrorMessage,
		CreatedAt:    out.CreatedAt.Time,
	}, nil
}

// Violations fetches the violation list for a completed session.
func (c *Client) Violations(ctx context.Context, sessionID string) ([]analysis.Violation, error) {
	var out []analysis.Violation
	if err := c.do(ctx, http.MethodGet, "/api/results/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckSource runs the synchronous inline check on a single source file.
func (c *Client) CheckSource(ctx context.Context, code, fileName string, checkCompilation bool) (analysis.CheckResult, error) {
	in := struct {
		Code             string `json:"code"`
		FileName         string `json:"fileName"`
		CheckCompilation bool   `json:"checkCompilation"`
	}{Code: code, FileName: fileName, CheckCompilation: checkCompilation}
	var out struct {
		Violations        []analysis.Violation        `json:"violations"`
		CompilationErrors []analysis.CompilationError `json:"compilationErrors"`
		Score             float64                     `json:"score"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/check", in, &out); err != nil {
		return analysis.CheckResult{}, err
	}
	return analysis.CheckResult{
		Violations:        out.Violations,
		CompilationErrors: out.CompilationErrors,
		Score:             out.Score,
	}, nil
}

// --- Auth ---

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	in := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: username, Password: password}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("login response carries no token")
	}
	return out.Token, nil
}

// Register creates an account. The backend does not log the new user in;
// call Login afterwards.
func (c *Client) Register(ctx context.Context, username, password, email string) error {
	in := struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email,omitempty"`
	}{Username: username, Password: password, Email: email}
	return c.do(ctx, http.MethodPost, "/api/auth/register", in, nil)
}

// --- Settings ---

// Settings are the per-account analyzer preferences stored server-side.
type Settings struct {
	DefaultRuleset   string `json:"defaultRuleset"`
	MaxLineLength    int    `json:"maxLineLength"`
	CheckCompilation bool   `json:"checkCompilation"`
}

// GetSettings fetches the account's analyzer settings.
func (c *Client) GetSettings(ctx context.Context) (Settings, error) {
	var out Settings
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out); err != nil {
		return Settings{}, err
	}
	return out, nil
}

// UpdateSettings replaces the account's analyzer settings.
func (c *Client) UpdateSettings(ctx context.Context, s Settings) error {
	return c.do(ctx, http.MethodPut, "/api/settings", s, nil)
}

// --- History ---

// HistoryEntry is one past analysis as the backend records it.
type HistoryEntry struct {
	ID         string
	RepoURL    string
	Status     analysis.Status
	Violations int
	CreatedAt  time.Time
}

// History lists the account's past analyses, newest first. limit <= 0 asks
// for the backend default.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []struct {
		ID         json.RawMessage `json:"id"`
		RepoURL    string          `json:"repoUrl"`
		Status     string          `json:"status"`
		Violations int             `json:"violationCount"`
		CreatedAt  Timestamp       `json:"createdAt"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(out))
	for _, e := range out {
		id, err := parseSessionID(e.ID)
		if err != nil {
			id = string(e.ID)
		}
		status, ok := analysis.ParseStatus(e.Status)
		if !ok {
			status = analysis.Status(strings.ToLower(e.Status))
		}
		entries = append(entries, HistoryEntry{
			ID:         id,
			RepoURL:    e.RepoURL,
			Status:     status,
			Violations: e.Violations,
			CreatedAt:  e.CreatedAt.Time,
		})
	}
	return entries, nil
}

// Statistics aggregates the account's analysis history server-side.
type Statistics struct {
	TotalAnalyses   int     `json:"totalAnalyses"`
	Completed       int     `json:"completedCount"`
	Failed          int     `json:"failedCount"`
	TotalViolations int     `json:"totalViolations"`
	AverageScore    float64 `json:"averageScore"`
}

// Statistics fetches the server-side aggregate counters.
func (c *Client) Statistics(ctx context.Context) (Statistics, error) {
	var out Statistics
	if err := c.do(ctx, http.MethodGet, "/api/statistics", nil, &out); err != nil {
		return Statistics{}, err
	}
	return out, nil
}

// --- Plumbing ---

// do runs one JSON round trip. in and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an *Error, preferring the
// backend's own error message when the body carries one.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(data))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}

// parseSessionID accepts both representations the backend has shipped:
// a JSON string and a bare number.
func parseSessionID(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", errors.New("missing session id")
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		if s == "" {
			return "", errors.New("empty session id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("unexpected session id %s", trimmed)
}

// Timestamp decodes the backend's timestamps, which arrive both with and
// without a zone suffix depending on the serializer in use server-side.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
