package interceptor_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tmsfleet/go-auth-client/httpclient"
	"github.com/tmsfleet/go-auth-client/interceptor"
	"github.com/tmsfleet/go-auth-client/internal/config"
	"github.com/tmsfleet/go-auth-client/notify/notifyfakes"
	"github.com/tmsfleet/go-auth-client/storage"
	"github.com/tmsfleet/go-auth-client/storage/memstore"
	"github.com/tmsfleet/go-auth-client/token"
)

type fakeTokens struct {
	mu        sync.Mutex
	token     string
	nextToken string
	refreshes int
	err       error
}

func (f *fakeTokens) AccessToken() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) Refresh(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.err != nil {
		return "", f.err
	}
	f.token = f.nextToken
	return f.token, nil
}

func (f *fakeTokens) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func newAuthenticator(t *testing.T, tokens interceptor.TokenSource, apiBaseURL string) *http.Client {
	t.Helper()
	rt, err := interceptor.New(tokens, apiBaseURL, config.EnvVars{})
	require.NoError(t, err)
	return &http.Client{Transport: rt}
}

func TestAuthenticator_AttachesBearer(t *testing.T) {
	var header atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header.Store(r.Header.Get("Authorization"))
	}))
	t.Cleanup(server.Close)

	client := newAuthenticator(t, &fakeTokens{token: "T1"}, server.URL)
	resp, err := client.Get(server.URL + "/api/data")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "Bearer T1", header.Load())
}

func TestAuthenticator_PassesThroughOtherHosts(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
	}))
	t.Cleanup(other.Close)

	client := newAuthenticator(t, &fakeTokens{token: "T1"}, "http://api.internal:8080")
	resp, err := client.Get(other.URL + "/api/data")
	require.NoError(t, err)
	defer resp.Body.Close()
}

func TestAuthenticator_PassesThroughAuthPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
	}))
	t.Cleanup(server.Close)

	client := newAuthenticator(t, &fakeTokens{token: "T1"}, server.URL)
	resp, err := client.Post(server.URL+"/api/auth/login", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
}

func TestAuthenticator_PassesThroughWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{}
	client := newAuthenticator(t, tokens, server.URL)
	resp, err := client.Get(server.URL + "/api/data")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Zero(t, tokens.refreshCount())
}

func TestAuthenticator_RenewsAndReplaysOn401(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(payload))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "T1", nextToken: "T2"}
	client := newAuthenticator(t, tokens, server.URL)

	resp, err := client.Post(server.URL+"/api/data", "application/json", strings.NewReader(`{"n":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, tokens.refreshCount())
	require.Equal(t, []string{`{"n":1}`, `{"n":1}`}, bodies, "the body is replayed intact")
}

func TestAuthenticator_NonReplayableBodyKeeps401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "T1", nextToken: "T2"}
	client := newAuthenticator(t, tokens, server.URL)

	// Hiding the reader type keeps net/http from recording a GetBody.
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/data",
		io.MultiReader(strings.NewReader(`{"n":1}`)))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, tokens.refreshCount())
}

func TestAuthenticator_RenewalFailureSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "T1", err: context.DeadlineExceeded}
	client := newAuthenticator(t, tokens, server.URL)

	_, err := client.Get(server.URL + "/api/data") //nolint:bodyclose // the transport returns no response
	require.Error(t, err)
	require.Equal(t, 1, tokens.refreshCount())
}

// Two requests failing with 401 at the same time must share one renewal,
// which the real token manager serializes.
func TestAuthenticator_Concurrent401sShareOneRenewal(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tokens/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"token":"T2"}`))
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := memstore.New()
	store.Write(storage.KeyAccessToken, "stale")
	store.Write(storage.KeyRefreshToken, "R1")

	notifier := notifyfakes.NewFakeNotifier()
	api := httpclient.New(server.URL, notifier)
	tokens := token.New(api, store, notifier, config.New())
	t.Cleanup(tokens.Stop)

	client := newAuthenticator(t, tokens, server.URL)

	var wg sync.WaitGroup
	for range [2]struct{}{} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(server.URL + "/api/data")
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), refreshCalls.Load(), "concurrent 401s coalesce into one renewal")
}
