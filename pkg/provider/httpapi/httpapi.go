// Package httpapi is the small HTTP transport shared by the hosted-inference
// providers: authenticated POST requests whose raw reply body is handed back
// to the caller, with non-2xx statuses and network faults reported as
// transport errors.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request when no custom client is supplied.
// Transcription of a few seconds of audio on a cold hosted model can take a
// while, so the default is generous.
const DefaultTimeout = 60 * time.Second

// maxErrorBody caps how much of a failed reply is kept in a [StatusError].
const maxErrorBody = 512

// ErrTransport is matched (via errors.Is) by every error describing a failed
// remote call: network faults and non-2xx statuses alike.
var ErrTransport = errors.New("httpapi: transport failure")

// StatusError reports a reply with a non-2xx status code.
type StatusError struct {
	Method string
	URL    string
	Code   int
	// Reason is the reason phrase the server sent, e.g. "Service Unavailable".
	// The standard text for Code is used when the server sent none.
	Reason string
	// Body holds the start of the reply body, if any.
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("httpapi: %s %s returned %d %s", e.Method, e.URL, e.Code, e.Reason)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is makes errors.Is(err, ErrTransport) true for status errors.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithBearerToken authenticates every request with "Authorization: Bearer <token>".
func WithBearerToken(token string) Option {
	return WithAuthorization("Bearer", token)
}

// WithAuthorization authenticates every request with
// "Authorization: <scheme> <token>". An empty token disables the header.
func WithAuthorization(scheme, token string) Option {
	return func(c *Client) {
		if token == "" {
			c.auth = ""
			return
		}
		c.auth = scheme + " " + token
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// Client sends authenticated requests to a remote inference API.
// It is safe for concurrent use.
type Client struct {
	http    *http.Client
	auth    string
	headers http.Header
}

// New returns a Client configured by opts.
func New(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		headers: make(http.Header),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Post sends body to url with the given content type and returns the raw
// reply body of a 2xx reply. accept may be empty.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte, accept string) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, url, contentType, body, accept)
}

// Do sends a request and returns the raw reply body of a 2xx reply. A
// non-2xx reply yields a *[StatusError]; a network fault yields an error
// wrapping both [ErrTransport] and the underlying cause (including ctx
// errors, so errors.Is(err, context.Canceled) works).
func (c *Client) Do(ctx context.Context, method, url, contentType string, body []byte, accept string) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, fmt.Errorf("httpapi: create request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s reply: %w", ErrTransport, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody] + "…"
		}
		return nil, &StatusError{
			Method: method,
			URL:    url,
			Code:   resp.StatusCode,
			Reason: statusReason(resp),
			Body:   snippet,
		}
	}
	return data, nil
}

// statusReason returns the reason phrase of resp's status line.
func statusReason(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		return http.StatusText(resp.StatusCode)
	}
	return reason
}
