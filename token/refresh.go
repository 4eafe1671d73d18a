package token

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/tmsfleet/go-auth-client/httpclient"
	"github.com/tmsfleet/go-auth-client/notify"
	"github.com/tmsfleet/go-auth-client/storage"
)

// RefreshResponse is the renewal payload. The refresh token is only
// present when the server rotates it.
type RefreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Refresh renews the access token. Concurrent callers (the check loop and
// any number of 401-handling requests) are coalesced into a single network
// call; every waiter observes the same token or the same terminal failure.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	result, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	// The refresh token is the preferred credential; deployments that do
	// not issue one renew on the access token itself.
	bearer, ok := m.store.Read(storage.KeyRefreshToken)
	if !ok || bearer == "" {
		bearer, ok = m.store.Read(storage.KeyAccessToken)
		if !ok || bearer == "" {
			m.notifier.Error("Your session could not be renewed. Please sign in again.")
			m.expire(RefreshCredentialMissingErr.Error())
			return "", RefreshCredentialMissingErr
		}
	}

	m.setRefreshing(true)
	defer m.setRefreshing(false)

	attempts := m.cfg.GetRetryAttempts()
	attempt := 0
	var resp RefreshResponse
	operation := func() error {
		attempt++
		err := m.api.Post(ctx, m.cfg.GetRefreshPath(), nil, &resp,
			httpclient.WithBearer(bearer), httpclient.WithoutErrorNotification())
		if err == nil {
			return nil
		}
		if retryableRefreshError(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	announce := func(err error, _ time.Duration) {
		m.notifier.Info(fmt.Sprintf("Session renewal failed, retrying (%d/%d).", attempt, attempts))
		m.log.Warn().Err(err).Int("attempt", attempt).Msg("token refresh retry")
	}

	// Fixed delay, bounded attempts. The retry counter is per cycle: a new
	// renewal always starts from zero.
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.GetRetryDelay()), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, policy, announce); err != nil {
		m.log.Error().Err(err).Int("attempts", attempt).Msg("token refresh failed")
		m.notifier.Error("Your session could not be renewed. Please sign in again.")
		m.expire("token renewal failed")
		return "", errors.Wrap(err, "[Manager.Refresh] renewal request")
	}

	m.storeRenewedTokens(&resp)
	m.notifier.Success("Session renewed.", notify.WithDuration(2*time.Second))
	m.log.Info().Msg("access token renewed")
	return resp.Token, nil
}

func (m *Manager) storeRenewedTokens(resp *RefreshResponse) {
	now := m.nowFunc()

	m.store.Write(storage.KeyAccessToken, resp.Token)
	if resp.RefreshToken != "" {
		m.store.Write(storage.KeyRefreshToken, resp.RefreshToken)
		m.writeTime(storage.KeyRefreshExpiry, now.Add(m.cfg.GetSessionLifetime()))
	}

	accessExpiry := embeddedExpiry(resp.Token, now, now.Add(m.cfg.GetTokenLifetime()))
	if refreshExpiry, ok := m.readTime(storage.KeyRefreshExpiry); ok && accessExpiry.After(refreshExpiry) {
		accessExpiry = refreshExpiry
	}
	m.writeTime(storage.KeyAccessExpiry, accessExpiry)

	m.status.Update(func(s Status) Status {
		s.LastRefresh = now
		s.NextRefresh = accessExpiry.Add(-m.cfg.GetRefreshThreshold())
		return s
	})
}

func (m *Manager) setRefreshing(refreshing bool) {
	m.status.Update(func(s Status) Status {
		s.IsRefreshing = refreshing
		return s
	})
}

// retryableRefreshError classifies transient failures: no response at all,
// request timeout, rate limiting, or any server-side error. Everything
// else (notably 401/403) is terminal.
func retryableRefreshError(err error) bool {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.Status {
	case 0, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return statusErr.Status >= 500 && statusErr.Status <= 599
}
