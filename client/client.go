/*
Package client is the HTTP adapter between the cache engine and the
upstream welfare API.

PURPOSE:
  Everything network-shaped lives here: URL construction, the response
  envelope, bearer credentials with a silent refresh-and-retry on 401, and
  the one place where upstream failure shapes are normalized into
  *state.Error. Nothing above this package ever inspects an HTTP status or
  sniffs an error body.

401 POLICY:
  First 401 -> ask the TokenProvider for a fresh credential, retry once.
  Second 401 -> KindAuth error, surfaced like any other failure.
  No other status is retried; user-visible retry is a manual re-trigger.

SEE ALSO:
  - envelope.go: the response wrapper and paginated decoding
  - state/errors.go: the normalized error shape produced here
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warp/portal-sync/state"
)

// TokenProvider supplies and refreshes the bearer credential. A nil provider
// means unauthenticated calls (the dev upstream accepts those).
type TokenProvider interface {
	// Token returns the current access token.
	Token(ctx context.Context) (string, error)

	// Refresh obtains a new access token after a 401 and returns it.
	Refresh(ctx context.Context) (string, error)
}

// Options carries the per-request pieces of a call.
type Options struct {
	Query   *state.Query
	Body    any
	Headers http.Header
}

// Client is the adapter. Construct once and share; it is safe for
// concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenProvider
	log    *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying *http.Client (tests, custom transports).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokens installs the credential source.
func WithTokens(tp TokenProvider) Option {
	return func(c *Client) { c.tokens = tp }
}

// WithLogger installs a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log.With("component", "client") }
}

// New creates an adapter for the given upstream base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, state.NewError(state.KindTransport, "invalid upstream address")
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  slog.Default().With("component", "client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get issues a GET with an optional query string.
func (c *Client) Get(ctx context.Context, path string, q *state.Query) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, path, Options{Query: q})
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, path, Options{Body: body})
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, path, Options{Body: body})
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Envelope, error) {
	return c.Do(ctx, http.MethodDelete, path, Options{})
}

// Do performs one call and returns the decoded envelope. Failures of any
// shape come back as *state.Error; the envelope is non-nil only on success.
func (c *Client) Do(ctx context.Context, method, path string, opt Options) (*Envelope, error) {
	env, status, err := c.send(ctx, method, path, opt, "")
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && c.tokens != nil {
		token, rerr := c.tokens.Refresh(ctx)
		if rerr != nil {
			return nil, state.NewError(state.KindAuth, "")
		}
		env, status, err = c.send(ctx, method, path, opt, token)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, state.NewError(state.KindAuth, env.failureMessage())
		}
	}

	if status >= 400 {
		e := state.NewError(state.KindAPI, env.failureMessage())
		e.Status = status
		return nil, e
	}
	if env.IsSuccess != nil && !*env.IsSuccess {
		return nil, state.NewError(state.KindAPI, env.failureMessage())
	}
	return env, nil
}

// send performs a single HTTP round trip. forceToken overrides the provider
// token on the post-refresh retry.
func (c *Client) send(ctx context.Context, method, path string, opt Options, forceToken string) (*Envelope, int, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if opt.Query != nil {
		u.RawQuery = opt.Query.Encode()
	}

	var body io.Reader
	if opt.Body != nil {
		buf, err := json.Marshal(opt.Body)
		if err != nil {
			return nil, 0, state.NewError(state.KindTransport, "")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, 0, state.NewError(state.KindTransport, "")
	}
	req.Header.Set("Accept", "application/json")
	if opt.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range opt.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	token := forceToken
	if token == "" && c.tokens != nil {
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return nil, 0, state.NewError(state.KindAuth, "")
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", "method", method, "path", path, "error", err)
		return nil, 0, state.NewError(state.KindTransport, "")
	}
	defer resp.Body.Close()

	env := &Envelope{}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, state.NewError(state.KindTransport, "")
	}
	if len(raw) > 0 {
		// A malformed body on an error status still reaches the caller as
		// a normalized API error with the fallback message.
		_ = json.Unmarshal(raw, env)
	}
	return env, resp.StatusCode, nil
}
