// Package token implements the client-side token lifecycle: it persists
// token expiries, runs the periodic session check, raises escalating
// expiry warnings, and renews the access token with bounded retries.
package token

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tmsfleet/go-auth-client/httpclient"
	"github.com/tmsfleet/go-auth-client/internal/config"
	"github.com/tmsfleet/go-auth-client/notify"
	"github.com/tmsfleet/go-auth-client/observable"
	"github.com/tmsfleet/go-auth-client/storage"
)

// Manager owns every expiry decision. The store itself is dumb; nothing
// else writes token or expiry keys while a renewal is running, which is
// serialized through the singleflight group.
type Manager struct {
	api      *httpclient.Client
	store    storage.Store
	notifier notify.Notifier
	cfg      config.Config
	log      zerolog.Logger
	nowFunc  func() time.Time

	status *observable.Value[Status]
	group  singleflight.Group

	onSessionExpired func(reason string)

	runLock sync.Mutex
	stop    chan struct{}
}

type ManagerOption func(*Manager)

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

func New(api *httpclient.Client, store storage.Store, notifier notify.Notifier, cfg config.Config, options ...ManagerOption) *Manager {
	m := &Manager{
		api:      api,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      zerolog.Nop(),
		nowFunc:  time.Now,
		status:   observable.NewValue(Status{}),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Status exposes the lifecycle state for UI observers.
func (m *Manager) Status() *observable.Value[Status] {
	return m.status
}

// SetSessionExpiredHandler registers the callback invoked exactly once per
// terminal session failure (refresh credential expired, renewal exhausted).
func (m *Manager) SetSessionExpiredHandler(handler func(reason string)) {
	m.onSessionExpired = handler
}

// BeginSession persists a freshly issued token pair and starts the
// periodic check. Warning flags are reset so each tier can fire again for
// the new login.
func (m *Manager) BeginSession(tok *oauth2.Token) {
	now := m.nowFunc()

	refreshExpiry := now.Add(m.cfg.GetSessionLifetime())
	accessExpiry := embeddedExpiry(tok.AccessToken, now, now.Add(m.cfg.GetTokenLifetime()))
	if accessExpiry.After(refreshExpiry) {
		accessExpiry = refreshExpiry
	}

	m.store.Write(storage.KeyAccessToken, tok.AccessToken)
	if tok.RefreshToken != "" {
		m.store.Write(storage.KeyRefreshToken, tok.RefreshToken)
	}
	m.writeTime(storage.KeyAccessExpiry, accessExpiry)
	m.writeTime(storage.KeyRefreshExpiry, refreshExpiry)
	m.writeTime(storage.KeyLoginTime, now)

	m.store.Remove(storage.KeyWarningInfo)
	m.store.Remove(storage.KeyWarningSoon)
	m.store.Remove(storage.KeyWarningCritical)

	m.status.Set(Status{
		NextRefresh:          accessExpiry.Add(-m.cfg.GetRefreshThreshold()),
		SessionTimeRemaining: refreshExpiry.Sub(now),
	})

	m.Start()
	m.log.Info().Time("accessExpiry", accessExpiry).Time("refreshExpiry", refreshExpiry).Msg("session started")
}

// Resume restarts the periodic check for a session restored from storage
// without touching the persisted tokens or expiries.
func (m *Manager) Resume() {
	now := m.nowFunc()
	status := Status{}
	if accessExpiry, ok := m.readTime(storage.KeyAccessExpiry); ok {
		status.NextRefresh = accessExpiry.Add(-m.cfg.GetRefreshThreshold())
	}
	if refreshExpiry, ok := m.readTime(storage.KeyRefreshExpiry); ok {
		status.SessionTimeRemaining = refreshExpiry.Sub(now)
	}
	m.status.Set(status)
	m.Start()
}

// Start launches the check loop. Calling it while already running is a
// no-op.
func (m *Manager) Start() {
	m.runLock.Lock()
	defer m.runLock.Unlock()

	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	go m.run(m.stop)
}

// Stop halts the check loop and resets the published status. Idempotent.
func (m *Manager) Stop() {
	m.runLock.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.runLock.Unlock()

	m.status.Set(Status{})
}

func (m *Manager) run(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.GetCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.CheckNow(context.Background())
		}
	}
}

// CheckNow runs one lifecycle check: terminal expiry, status publication,
// warning tiers, and, when the access token is close to dying, a renewal.
func (m *Manager) CheckNow(ctx context.Context) {
	now := m.nowFunc()

	refreshExpiry, hasSession := m.readTime(storage.KeyRefreshExpiry)
	if !hasSession {
		return
	}
	if !now.Before(refreshExpiry) {
		m.log.Info().Time("refreshExpiry", refreshExpiry).Msg("session lifetime elapsed")
		m.notifier.Info(httpclient.MsgSessionExpired)
		m.expire(SessionExpiredErr.Error())
		return
	}

	remaining := refreshExpiry.Sub(now)
	accessExpiry, hasAccess := m.readTime(storage.KeyAccessExpiry)

	m.status.Update(func(s Status) Status {
		s.SessionTimeRemaining = remaining
		if hasAccess {
			s.NextRefresh = accessExpiry.Add(-m.cfg.GetRefreshThreshold())
		}
		return s
	})

	m.evaluateWarnings(remaining)

	if hasAccess && !m.status.Get().IsRefreshing && !accessExpiry.After(now.Add(m.cfg.GetRefreshThreshold())) {
		if _, err := m.Refresh(ctx); err != nil {
			m.log.Warn().Err(err).Msg("scheduled refresh failed")
		}
	}
}

// warningTiers, in descending severity. At most one fires per check, and
// each fires at most once per login, guarded by a persisted flag.
func (m *Manager) evaluateWarnings(remaining time.Duration) {
	tiers := []struct {
		flag      string
		threshold time.Duration
		fire      func(message string)
	}{
		{storage.KeyWarningCritical, m.cfg.GetCriticalThreshold(), func(msg string) {
			m.notifier.Warning(msg, notify.WithDuration(0))
		}},
		{storage.KeyWarningSoon, m.cfg.GetWarningThreshold(), func(msg string) {
			m.notifier.Warning(msg)
		}},
		{storage.KeyWarningInfo, m.cfg.GetInfoThreshold(), func(msg string) {
			m.notifier.Info(msg)
		}},
	}

	for _, tier := range tiers {
		if remaining > tier.threshold {
			continue
		}
		if _, fired := m.store.Read(tier.flag); !fired {
			tier.fire(fmt.Sprintf("Your session expires in %s.", remaining.Round(time.Minute)))
			m.writeTime(tier.flag, m.nowFunc())
		}
		return
	}
}

// AccessToken returns the stored access token, if any.
func (m *Manager) AccessToken() (string, bool) {
	token, ok := m.store.Read(storage.KeyAccessToken)
	return token, ok && token != ""
}

// AccessTokenValid reports whether a stored access token exists and has
// not passed its persisted expiry.
func (m *Manager) AccessTokenValid() bool {
	if _, ok := m.AccessToken(); !ok {
		return false
	}
	expiry, ok := m.readTime(storage.KeyAccessExpiry)
	return !ok || m.nowFunc().Before(expiry)
}

// RefreshExpired reports whether the session lifetime has elapsed. False
// when no expiry is stored at all.
func (m *Manager) RefreshExpired() bool {
	expiry, ok := m.readTime(storage.KeyRefreshExpiry)
	return ok && !m.nowFunc().Before(expiry)
}

func (m *Manager) expire(reason string) {
	m.Stop()
	if m.onSessionExpired != nil {
		m.onSessionExpired(reason)
	}
}

func (m *Manager) writeTime(key string, t time.Time) {
	m.store.Write(key, strconv.FormatInt(t.UnixMilli(), 10))
}

func (m *Manager) readTime(key string) (time.Time, bool) {
	raw, ok := m.store.Read(key)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// embeddedExpiry extracts the exp claim when the access token is a JWT.
// The token is not verified; the server remains the authority, the client
// only schedules around it. Falls back to the configured lifetime.
func embeddedExpiry(rawToken string, now, fallback time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !exp.After(now) {
		return fallback
	}
	return exp.Time
}
