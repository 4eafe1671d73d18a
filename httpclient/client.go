// Package httpclient is the generic JSON API client. It centralizes error
// mapping and error notifications so that flows which present their own
// failure messages (login, token refresh) can opt out per request.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tmsfleet/go-auth-client/notify"
)

type Client struct {
	baseURL  string
	http     *http.Client
	notifier notify.Notifier
	log      zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

func New(baseURL string, notifier notify.Notifier, options ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		notifier: notifier,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// BaseURL returns the API origin requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTransport installs a RoundTripper on the underlying client. The
// outbound request authenticator hooks in here.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.Transport = rt
}

type requestOptions struct {
	headers       http.Header
	params        url.Values
	silenceErrors bool
}

type RequestOption func(*requestOptions)

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Set(key, value)
	}
}

// WithBearer sets the Authorization header for a single request.
func WithBearer(token string) RequestOption {
	return WithHeader("Authorization", "Bearer "+token)
}

func WithParams(params url.Values) RequestOption {
	return func(o *requestOptions) {
		o.params = params
	}
}

// WithoutErrorNotification suppresses the automatic error toast; the caller
// presents its own message.
func WithoutErrorNotification() RequestOption {
	return func(o *requestOptions) {
		o.silenceErrors = true
	}
}

func (c *Client) Get(ctx context.Context, path string, out any, options ...RequestOption) error {
	return c.do(ctx, http.MethodGet, path, nil, out, options)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, options ...RequestOption) error {
	return c.do(ctx, http.MethodPost, path, body, out, options)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, options ...RequestOption) error {
	return c.do(ctx, http.MethodPut, path, body, out, options)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, options ...RequestOption) error {
	return c.do(ctx, http.MethodPatch, path, body, out, options)
}

func (c *Client) Delete(ctx context.Context, path string, out any, options ...RequestOption) error {
	return c.do(ctx, http.MethodDelete, path, nil, out, options)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, options []RequestOption) error {
	opts := requestOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	fullURL := c.baseURL + path
	if len(opts.params) > 0 {
		fullURL += "?" + opts.params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Client.do] marshal request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return errors.Wrap(err, "[Client.do] build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range opts.headers {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("url", fullURL).Msg("request failed")
		return c.fail(&StatusError{Status: 0, Message: MsgConnection}, opts)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		var errBody ErrorBody
		_ = json.Unmarshal(raw, &errBody)
		statusErr := &StatusError{
			Status:  resp.StatusCode,
			Message: messageForStatus(resp.StatusCode, errBody.Message),
			Body:    raw,
		}
		c.log.Warn().Int("status", resp.StatusCode).Str("method", method).Str("url", fullURL).Msg("request rejected")
		return c.fail(statusErr, opts)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return errors.Wrap(err, "[Client.do] decode response body")
		}
	}
	return nil
}

// fail notifies the mapped message unless suppressed and forwards the error
// to the caller.
func (c *Client) fail(statusErr *StatusError, opts requestOptions) error {
	if !opts.silenceErrors && c.notifier != nil {
		c.notifier.Error(statusErr.Message)
	}
	return statusErr
}

// BuildParams flattens a map into url.Values, dropping nils and expanding
// slices into repeated keys.
func BuildParams(params map[string]any) url.Values {
	values := url.Values{}
	for key, value := range params {
		if value == nil {
			continue
		}
		switch v := value.(type) {
		case []string:
			for _, item := range v {
				values.Add(key, item)
			}
		case []any:
			for _, item := range v {
				values.Add(key, fmt.Sprint(item))
			}
		default:
			values.Add(key, fmt.Sprint(v))
		}
	}
	return values
}
