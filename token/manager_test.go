package token_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tmsfleet/go-auth-client/httpclient"
	"github.com/tmsfleet/go-auth-client/internal/config"
	"github.com/tmsfleet/go-auth-client/notify"
	"github.com/tmsfleet/go-auth-client/notify/notifyfakes"
	"github.com/tmsfleet/go-auth-client/sessions"
	"github.com/tmsfleet/go-auth-client/storage"
	"github.com/tmsfleet/go-auth-client/storage/memstore"
	"github.com/tmsfleet/go-auth-client/token"
)

// testConfig speeds up retries so failure paths finish quickly.
type testConfig struct {
	config.EnvVars
	config.Auth
}

func (testConfig) GetRetryDelay() time.Duration { return time.Millisecond }

type fixture struct {
	store    *memstore.MemStore
	notifier *notifyfakes.FakeNotifier
	manager  *token.Manager
	server   *httptest.Server
	requests atomic.Int32

	nowLock sync.Mutex
	now     time.Time
}

func setupFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	f := &fixture{
		store:    memstore.New(),
		notifier: notifyfakes.NewFakeNotifier(),
		now:      time.UnixMilli(1_700_000_000_000),
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(f.server.Close)

	api := httpclient.New(f.server.URL, f.notifier)
	f.manager = token.New(api, f.store, f.notifier, testConfig{}, token.WithNowFunc(f.nowFunc))
	t.Cleanup(f.manager.Stop)
	return f
}

func (f *fixture) nowFunc() time.Time {
	f.nowLock.Lock()
	defer f.nowLock.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.nowLock.Lock()
	defer f.nowLock.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) writeTime(t *testing.T, key string, at time.Time) {
	t.Helper()
	f.store.Write(key, strconv.FormatInt(at.UnixMilli(), 10))
}

func (f *fixture) readTime(t *testing.T, key string) time.Time {
	t.Helper()
	raw, ok := f.store.Read(key)
	require.True(t, ok, "expected %s to be stored", key)
	millis, err := strconv.ParseInt(raw, 10, 64)
	require.NoError(t, err)
	return time.UnixMilli(millis)
}

func refreshOK(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

func TestManager_BeginSessionPersistsTokensAndExpiries(t *testing.T) {
	f := setupFixture(t, refreshOK(`{"token":"T2"}`))

	f.manager.BeginSession(&oauth2.Token{AccessToken: "T1", RefreshToken: "R1"})

	accessToken, ok := f.store.Read(storage.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, "T1", accessToken)

	refreshToken, ok := f.store.Read(storage.KeyRefreshToken)
	require.True(t, ok)
	require.Equal(t, "R1", refreshToken)

	accessExpiry := f.readTime(t, storage.KeyAccessExpiry)
	refreshExpiry := f.readTime(t, storage.KeyRefreshExpiry)
	require.Equal(t, f.nowFunc().Add(time.Hour), accessExpiry)
	require.Equal(t, f.nowFunc().Add(24*time.Hour), refreshExpiry)
	require.False(t, accessExpiry.After(refreshExpiry), "access expiry must never exceed refresh expiry")

	// A fresh login resets the warning flags.
	_, fired := f.store.Read(storage.KeyWarningInfo)
	require.False(t, fired)
}

func TestManager_BeginSessionTrustsEmbeddedJWTExpiry(t *testing.T) {
	f := setupFixture(t, refreshOK(`{}`))

	exp := f.nowFunc().Add(10 * time.Minute)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	f.manager.BeginSession(&oauth2.Token{AccessToken: signed})

	accessExpiry := f.readTime(t, storage.KeyAccessExpiry)
	require.Equal(t, exp.Unix(), accessExpiry.Unix())
}

func TestManager_CheckNowExpiredSessionForcesLogout(t *testing.T) {
	f := setupFixture(t, refreshOK(`{}`))

	var expirations atomic.Int32
	f.manager.SetSessionExpiredHandler(func(string) {
		expirations.Add(1)
		sessions.Clear(f.store)
	})
	f.writeTime(t, storage.KeyRefreshExpiry, f.nowFunc().Add(-time.Minute))

	f.manager.CheckNow(context.Background())
	f.manager.CheckNow(context.Background())

	require.Equal(t, int32(1), expirations.Load())
	require.Equal(t, []string{httpclient.MsgSessionExpired}, f.notifier.ByLevel(notify.LevelInfo))
	require.Equal(t, int32(0), f.requests.Load(), "expired session must not hit the network")
}

func TestManager_WarningTiersFireOncePerSession(t *testing.T) {
	f := setupFixture(t, refreshOK(`{}`))

	// Only the session expiry is stored: warnings are evaluated, no access
	// token means no refresh traffic.
	f.writeTime(t, storage.KeyRefreshExpiry, f.nowFunc().Add(20*time.Minute))

	f.manager.CheckNow(context.Background())
	f.manager.CheckNow(context.Background())
	require.Len(t, f.notifier.ByLevel(notify.LevelInfo), 1, "info tier fires once")

	f.advance(10 * time.Minute) // 10 minutes remaining
	f.manager.CheckNow(context.Background())
	f.manager.CheckNow(context.Background())
	require.Len(t, f.notifier.ByLevel(notify.LevelWarning), 1, "warning tier fires once")

	f.advance(6 * time.Minute) // 4 minutes remaining
	f.manager.CheckNow(context.Background())
	f.manager.CheckNow(context.Background())

	warnings := f.notifier.All()
	var critical []notifyfakes.Recorded
	for _, n := range warnings {
		if n.Level == notify.LevelWarning && n.HasDuration && n.Duration == 0 {
			critical = append(critical, n)
		}
	}
	require.Len(t, critical, 1, "critical tier fires once, sticky")
	require.Equal(t, int32(0), f.requests.Load())
}

func TestManager_CheckNowTriggersRefreshNearExpiry(t *testing.T) {
	f := setupFixture(t, refreshOK(`{"token":"T2"}`))

	f.manager.BeginSession(&oauth2.Token{AccessToken: "T1", RefreshToken: "R1"})
	f.advance(57 * time.Minute) // inside the 5 minute refresh threshold

	f.manager.CheckNow(context.Background())

	require.Equal(t, int32(1), f.requests.Load())
	accessToken, _ := f.store.Read(storage.KeyAccessToken)
	require.Equal(t, "T2", accessToken)
}

func TestManager_RefreshRotatesTokenPair(t *testing.T) {
	f := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer R1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"token":"T2","refreshToken":"R2"}`))
	})

	f.manager.BeginSession(&oauth2.Token{AccessToken: "T1", RefreshToken: "R1"})
	f.advance(30 * time.Minute)

	newToken, err := f.manager.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", newToken)

	accessToken, _ := f.store.Read(storage.KeyAccessToken)
	refreshToken, _ := f.store.Read(storage.KeyRefreshToken)
	require.Equal(t, "T2", accessToken)
	require.Equal(t, "R2", refreshToken)

	accessExpiry := f.readTime(t, storage.KeyAccessExpiry)
	refreshExpiry := f.readTime(t, storage.KeyRefreshExpiry)
	require.False(t, accessExpiry.After(refreshExpiry))

	status := f.manager.Status().Get()
	require.False(t, status.IsRefreshing)
	require.Equal(t, f.nowFunc(), status.LastRefresh)
	require.Contains(t, f.notifier.ByLevel(notify.LevelSuccess), "Session renewed.")
}

func TestManager_RefreshRetriesTransientErrorsUpToBound(t *testing.T) {
	f := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	var expirations atomic.Int32
	f.manager.SetSessionExpiredHandler(func(string) { expirations.Add(1) })
	f.store.Write(storage.KeyRefreshToken, "R1")

	_, err := f.manager.Refresh(context.Background())
	require.Error(t, err)

	require.Equal(t, int32(3), f.requests.Load(), "exactly the configured attempts")
	require.Len(t, f.notifier.ByLevel(notify.LevelInfo), 2, "each retry is announced")
	require.Equal(t, int32(1), expirations.Load())
	require.NotEmpty(t, f.notifier.ByLevel(notify.LevelError))
}

func TestManager_RefreshRejectedIsTerminalWithoutRetry(t *testing.T) {
	f := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	var expirations atomic.Int32
	f.manager.SetSessionExpiredHandler(func(string) { expirations.Add(1) })
	f.store.Write(storage.KeyRefreshToken, "R1")

	_, err := f.manager.Refresh(context.Background())
	require.Error(t, err)
	require.True(t, httpclient.IsStatus(err, http.StatusForbidden))

	require.Equal(t, int32(1), f.requests.Load())
	require.Equal(t, int32(1), expirations.Load())
}

func TestManager_ConcurrentRefreshesCoalesce(t *testing.T) {
	f := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"token":"T2"}`))
	})
	f.store.Write(storage.KeyRefreshToken, "R1")

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := f.manager.Refresh(context.Background())
			require.NoError(t, err)
			results[i] = tok
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), f.requests.Load(), "one network call for concurrent refreshes")
	require.Equal(t, "T2", results[0])
	require.Equal(t, results[0], results[1])
}

func TestManager_RefreshFallsBackToAccessToken(t *testing.T) {
	f := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer T1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"token":"T2"}`))
	})
	f.store.Write(storage.KeyAccessToken, "T1")

	newToken, err := f.manager.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", newToken)
}

func TestManager_RefreshWithoutAnyCredential(t *testing.T) {
	f := setupFixture(t, refreshOK(`{}`))

	var expirations atomic.Int32
	f.manager.SetSessionExpiredHandler(func(string) { expirations.Add(1) })

	_, err := f.manager.Refresh(context.Background())
	require.ErrorIs(t, err, token.RefreshCredentialMissingErr)
	require.Equal(t, int32(0), f.requests.Load())
	require.Equal(t, int32(1), expirations.Load())
}

func TestManager_AccessTokenValidityHelpers(t *testing.T) {
	f := setupFixture(t, refreshOK(`{}`))

	require.False(t, f.manager.AccessTokenValid())
	require.False(t, f.manager.RefreshExpired())

	f.manager.BeginSession(&oauth2.Token{AccessToken: "T1", RefreshToken: "R1"})
	require.True(t, f.manager.AccessTokenValid())

	f.advance(2 * time.Hour)
	require.False(t, f.manager.AccessTokenValid())
	require.False(t, f.manager.RefreshExpired())

	f.advance(23 * time.Hour)
	require.True(t, f.manager.RefreshExpired())
}

func TestManager_StopIsIdempotent(t *testing.T) {
	f := setupFixture(t, refreshOK(`{}`))

	f.manager.Start()
	f.manager.Stop()
	f.manager.Stop()

	require.Equal(t, token.Status{}, f.manager.Status().Get())
}
