package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPError carries status and body for non-2xx PostgREST responses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s %s status=%d body=%s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 500))
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// PostgRESTConfig configures the HTTP store client.
type PostgRESTConfig struct {
	BaseURL    string // project URL, e.g. https://xyz.supabase.co
	APIKey     string // service-role key
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger // retry attempts are logged at debug when set
}

// PostgREST is a Store that talks to a PostgREST endpoint such as Supabase's
// /rest/v1 API.
type PostgREST struct {
	base   *url.URL
	apiKey string
	client *retryablehttp.Client
}

// retryStatuses are responses where the server rejected the request before
// doing any work, so replaying a write cannot duplicate it.
var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
}

// NewPostgREST creates an HTTP store client.
func NewPostgREST(cfg PostgRESTConfig) (*PostgREST, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("postgrest: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("postgrest: API key is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("postgrest: parse base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/rest/v1") {
		u.Path += "/rest/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = cfg.RetryDelay
	client.RetryWaitMax = max(30*time.Second, cfg.RetryDelay)
	client.CheckRetry = checkRetry
	client.Backoff = retryablehttp.DefaultBackoff
	// Hand back the last response so callers see its status and body.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	if cfg.Logger != nil {
		client.Logger = retryLogger{cfg.Logger}
	}

	return &PostgREST{base: u, apiKey: cfg.APIKey, client: client}, nil
}

// checkRetry replays only rejected-before-work statuses. Transport errors are
// returned as-is since a write may already have been applied.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, err
	}
	return retryStatuses[resp.StatusCode], nil
}

// retryLogger adapts slog to retryablehttp.LeveledLogger, demoting its
// per-attempt chatter to debug.
type retryLogger struct{ l *slog.Logger }

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Warn(msg, kv...) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.l.Debug(msg, kv...) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Debug(msg, kv...) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.l.Debug(msg, kv...) }

// Select issues GET /<table>?select=...&col=eq.value.
func (p *PostgREST) Select(ctx context.Context, table string, columns []string, filters ...Filter) ([]Record, error) {
	q := filterQuery(filters)
	if len(columns) > 0 {
		q.Set("select", strings.Join(columns, ","))
	} else {
		q.Set("select", "*")
	}
	rows, err := p.do(ctx, http.MethodGet, table, q, nil, "")
	return rows, wrap("select", table, err)
}

// Insert issues POST /<table> and returns the representation.
func (p *PostgREST) Insert(ctx context.Context, table string, record Record) ([]Record, error) {
	rows, err := p.do(ctx, http.MethodPost, table, url.Values{}, record, "return=representation")
	return rows, wrap("insert", table, err)
}

// Update issues PATCH /<table>?col=eq.value and returns the representation.
func (p *PostgREST) Update(ctx context.Context, table string, record Record, filters ...Filter) ([]Record, error) {
	if len(filters) == 0 {
		return nil, wrap("update", table, ErrUnfilteredUpdate)
	}
	rows, err := p.do(ctx, http.MethodPatch, table, filterQuery(filters), record, "return=representation")
	return rows, wrap("update", table, err)
}

func filterQuery(filters []Filter) url.Values {
	q := url.Values{}
	for _, f := range filters {
		if f.Value == nil {
			q.Add(f.Column, "is.null")
			continue
		}
		q.Add(f.Column, "eq."+fmt.Sprint(f.Value))
	}
	return q
}

func (p *PostgREST) do(ctx context.Context, method, table string, q url.Values, body Record, prefer string) ([]Record, error) {
	u := *p.base
	u.Path += "/" + url.PathEscape(table)
	u.RawQuery = q.Encode()

	var raw interface{}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		raw = payload
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), raw)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return decodeRows(data)
	}
	herr := &HTTPError{Method: method, URL: u.String(), StatusCode: resp.StatusCode, Body: data}
	if resp.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%w: %v", ErrDuplicate, herr)
	}
	return nil, herr
}

func decodeRows(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var rows []Record
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w body=%s", err, snippet(data, 200))
	}
	return rows, nil
}
