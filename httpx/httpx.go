package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/byte4ever/chcommon"
)

// DefaultMaxBody bounds how much of an error response body is kept in a
// [StatusError].
const DefaultMaxBody = 64 << 10

// errNoReplay is returned when a retry needs a request body that cannot be
// produced again.
var errNoReplay = errors.New("httpx: request body cannot be replayed, set Request.GetBody")

// Classifier maps an HTTP status code to an error kind. The empty kind
// means success.
//
// Pattern: Strategy — caller injects classification logic
// without modifying the adapter.
type Classifier func(statusCode int) chcommon.ErrorKind

// DefaultClassifier treats 1xx-3xx as success, 408 as a timeout, 429 as
// throttling, 5xx as server errors and every other code as a client error.
func DefaultClassifier(code int) chcommon.ErrorKind {
	switch {
	case code < http.StatusBadRequest:
		return ""
	case code == http.StatusRequestTimeout:
		return chcommon.KindTimeout
	case code == http.StatusTooManyRequests:
		return chcommon.KindThrottled
	case code >= http.StatusInternalServerError:
		return chcommon.KindServer
	default:
		return chcommon.KindClient
	}
}

// StatusError is returned when the Classifier marks a status code as a
// failure. The response body has been read into Body, truncated to the
// client's limit, and closed; Response keeps the status line and headers.
type StatusError struct {
	Response   *http.Response
	Kind       chcommon.ErrorKind
	Body       []byte
	StatusCode int
}

// Error returns a human-readable description of the status
// error.
func (e *StatusError) Error() string {
	msg := "http status " + strconv.Itoa(e.StatusCode)
	if len(e.Body) > 0 {
		msg += ": " + string(bytes.TrimSpace(e.Body))
	}

	return msg
}

// ErrorKind reports the classified kind to the retry table.
func (e *StatusError) ErrorKind() string { return string(e.Kind) }

// Option configures a [Client].
type Option func(*Client)

// WithClassifier replaces [DefaultClassifier].
func WithClassifier(cl Classifier) Option {
	return func(c *Client) { c.cl = cl }
}

// WithExecuteOptions passes hooks, clock or timeout to every call.
func WithExecuteOptions(opts ...chcommon.ExecuteOption) Option {
	return func(c *Client) { c.exec = append(c.exec, opts...) }
}

// WithMaxBody changes how many bytes of an error body are kept.
func WithMaxBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// Client wraps an http.Client with a retry policy and HTTP status code
// classification.
//
// Pattern: Adapter — bridges net/http and the retry engine by
// translating HTTP status codes into error kinds.
type Client struct {
	hc      *http.Client
	policy  *chcommon.RetryPolicy
	cl      Classifier
	exec    []chcommon.ExecuteOption
	maxBody int64
}

// NewClient creates a Client that executes HTTP requests under policy. A
// nil hc uses a pooled client from go-cleanhttp; a nil policy attempts each
// request once.
func NewClient(
	hc *http.Client,
	policy *chcommon.RetryPolicy,
	opts ...Option,
) *Client {
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
	}

	c := &Client{
		hc:      hc,
		policy:  policy,
		cl:      DefaultClassifier,
		maxBody: DefaultMaxBody,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do sends req, retrying per the policy. On success the caller owns the
// response body. Failures are a [*StatusError], a transport error, or the
// engine's exhaustion or cancellation error wrapping them.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.Execute(ctx, req).Get()
}

// Execute is like Do but returns the full call result.
func (c *Client) Execute(ctx context.Context, req *http.Request) chcommon.CallResult[*http.Response] {
	attempt := 0

	return chcommon.Execute[*http.Response](ctx, c.policy, func(ctx context.Context) (*http.Response, error) {
		attempt++

		r := req.Clone(ctx)

		if attempt > 1 && req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, chcommon.Permanent(errNoReplay)
			}

			body, err := req.GetBody()
			if err != nil {
				return nil, chcommon.Permanent(fmt.Errorf("httpx: rewind body: %w", err))
			}

			r.Body = body
		}

		resp, err := c.hc.Do(r)
		if err != nil {
			return nil, err
		}

		kind := c.cl(resp.StatusCode)
		if kind == "" {
			return resp, nil
		}

		return nil, c.statusError(resp, kind)
	}, append([]chcommon.ExecuteOption{chcommon.WithRelease(releaseResponse)}, c.exec...)...)
}

// releaseResponse closes the body of a response that arrived after its call
// was abandoned.
func releaseResponse(v any) {
	if resp, ok := v.(*http.Response); ok && resp != nil {
		_ = resp.Body.Close()
	}
}

func (c *Client) statusError(resp *http.Response, kind chcommon.ErrorKind) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	_ = resp.Body.Close()
	resp.Body = http.NoBody

	return &StatusError{
		Response:   resp,
		Kind:       kind,
		Body:       body,
		StatusCode: resp.StatusCode,
	}
}
