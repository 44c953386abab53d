// Package backend is the REST client for the appeals/constructor backend.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// TokenSource supplies the bearer token attached to every request.
// An empty token sends the request unauthenticated.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Options configures a Client
type Options struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	Logger  *slog.Logger
}

// Client talks to the backend REST API. Requests are never retried.
type Client struct {
	http    *resty.Client
	baseURL string
	tokens  TokenSource
	logger  *slog.Logger
}

// New creates a backend client
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(opts.BaseURL, "/")

	c := &Client{
		baseURL: base,
		tokens:  opts.Tokens,
		logger:  logger.With("component", "backend"),
	}

	c.http = resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	c.http.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if c.tokens == nil {
			return nil
		}
		if tok := c.tokens.Token(); tok != "" {
			r.SetAuthToken(tok)
		}
		return nil
	})

	return c
}

// BaseURL returns the configured backend root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTokens replaces the token source
func (c *Client) SetTokens(ts TokenSource) {
	c.tokens = ts
}

// request starts a request bound to ctx
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// do executes a JSON request and decodes a 2xx body into result
func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	req := c.request(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	return c.check(op, resp, err)
}

// check maps a resty outcome onto the error taxonomy
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if resp != nil && resp.RawResponse != nil {
			return fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
		c.logger.Warn("Backend unreachable", "op", op, "error", err)
		return &NetworkError{Op: op, Err: err}
	}
	if resp.IsError() {
		he := &HTTPError{Op: op, Status: resp.StatusCode(), Detail: parseDetail(resp.Body())}
		c.logger.Warn("Backend returned error", "op", op, "status", he.Status, "detail", he.Detail)
		return he
	}
	c.logger.Debug("Backend request completed", "op", op, "status", resp.StatusCode(), "duration", resp.Time())
	return nil
}

// UploadsURL returns the static URL of an uploaded file
func (c *Client) UploadsURL(filename string) string {
	return c.baseURL + "/uploads/" + filename
}

// WebSocketURL converts the base URL to ws(s) and appends path
func (c *Client) WebSocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// AuthHeader returns the Authorization header value for out-of-band
// connections, or an empty header when no token is set
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			h.Set("Authorization", "Bearer "+tok)
		}
	}
	return h
}
