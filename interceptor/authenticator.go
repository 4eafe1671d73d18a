// Package interceptor attaches the bearer token to outgoing API requests
// and coordinates the response to a 401: one token renewal, then a replay
// of the rejected request with the fresh token.
package interceptor

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tmsfleet/go-auth-client/internal/config"
)

// TokenSource supplies the current access token and renews it on demand.
// Concurrent Renew calls must coalesce into one network request, which the
// token manager guarantees.
type TokenSource interface {
	AccessToken() (string, bool)
	Refresh(ctx context.Context) (string, error)
}

// Authenticator is an http.RoundTripper. Requests outside the API host,
// requests on the public auth paths, and requests that already carry an
// Authorization header pass through untouched.
type Authenticator struct {
	next      http.RoundTripper
	tokens    TokenSource
	apiHost   string
	skipPaths []string
	log       zerolog.Logger
}

var _ http.RoundTripper = (*Authenticator)(nil)

type AuthenticatorOption func(*Authenticator)

// WithNext sets the underlying transport; defaults to
// http.DefaultTransport.
func WithNext(next http.RoundTripper) AuthenticatorOption {
	return func(a *Authenticator) {
		a.next = next
	}
}

func WithLogger(log zerolog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.log = log
	}
}

func New(tokens TokenSource, apiBaseURL string, cfg config.EnvConfig, options ...AuthenticatorOption) (*Authenticator, error) {
	if tokens == nil {
		return nil, errors.New("[NewAuthenticator] token source is required")
	}
	parsed, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewAuthenticator] parse api base url")
	}

	a := &Authenticator{
		next:    http.DefaultTransport,
		tokens:  tokens,
		apiHost: parsed.Host,
		skipPaths: []string{
			cfg.GetLoginPath(),
			cfg.GetRegisterPath(),
			cfg.GetExchangePath(),
			cfg.GetRefreshPath(),
		},
		log: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

func (a *Authenticator) RoundTrip(req *http.Request) (*http.Response, error) {
	if !a.intercepts(req) {
		return a.next.RoundTrip(req)
	}

	accessToken, ok := a.tokens.AccessToken()
	if !ok {
		return a.next.RoundTrip(req)
	}

	resp, err := a.next.RoundTrip(withBearer(req, accessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Body != nil && req.GetBody == nil {
		// The body is gone and cannot be rebuilt, so the 401 stands.
		return resp, nil
	}
	drain(resp)

	a.log.Debug().Str("path", req.URL.Path).Msg("401 received, renewing token")
	newToken, err := a.tokens.Refresh(req.Context())
	if err != nil {
		return nil, errors.Wrap(err, "[Authenticator.RoundTrip] token renewal")
	}
	return a.next.RoundTrip(withBearer(req, newToken))
}

// intercepts decides whether this request gets a token at all.
func (a *Authenticator) intercepts(req *http.Request) bool {
	if req.URL.Host != a.apiHost {
		return false
	}
	if req.Header.Get("Authorization") != "" {
		return false
	}
	for _, path := range a.skipPaths {
		if strings.HasPrefix(req.URL.Path, path) {
			return false
		}
	}
	return true
}

// withBearer clones the request with the token attached, rebuilding the
// body so the original stays replayable.
func withBearer(req *http.Request, accessToken string) *http.Request {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	clone.Header.Set("Authorization", "Bearer "+accessToken)
	return clone
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
