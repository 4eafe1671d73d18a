// Command demo runs the full client lifecycle against an in-process fake
// backend: login with a company choice, the token exchange, an
// authenticated call that gets a 401 and is transparently replayed after a
// renewal, and finally logout.
package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/tmsfleet/go-auth-client/auth"
	"github.com/tmsfleet/go-auth-client/companies"
	"github.com/tmsfleet/go-auth-client/httpclient"
	"github.com/tmsfleet/go-auth-client/interceptor"
	"github.com/tmsfleet/go-auth-client/internal/config"
	"github.com/tmsfleet/go-auth-client/notify"
	"github.com/tmsfleet/go-auth-client/storage/memstore"
	"github.com/tmsfleet/go-auth-client/token"
)

func main() {
	figure.NewFigure("TMS Auth", "", true).Print()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	ctx := context.Background()

	backend := startFakeBackend()
	defer backend.Close()
	log.Info().Str("backend", backend.URL).Msg("fake backend up")

	cfg := config.New()
	store := memstore.New()
	center := notify.NewCenter()
	stopPrinting := printNotifications(center, log)
	defer stopPrinting()

	api := httpclient.New(backend.URL, center, httpclient.WithLogger(log))
	tokens := token.New(api, store, center, cfg, token.WithLogger(log))

	service, err := auth.New(auth.Deps{
		API:      api,
		Store:    store,
		Notifier: center,
		Tokens:   tokens,
		Navigator: auth.NavigatorFunc(func(route string) {
			log.Info().Str("route", route).Msg("navigated")
		}),
	}, cfg, auth.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("wire auth service")
	}

	service.RestoreSession(ctx)
	log.Info().Bool("authenticated", service.IsAuthenticated()).Msg("startup restore done")

	result, err := service.Login(ctx, auth.Credentials{Username: "maria", Password: "secret"})
	if err != nil {
		log.Fatal().Err(err).Msg("login")
	}

	if result.NeedsCompanySelection {
		for _, company := range result.Companies {
			log.Info().Int64("id", company.ID).Str("name", company.Name).Msg("company available")
		}
		chosen := result.Companies[1]
		if _, err := service.ExchangeCompanyToken(ctx, 1, chosen.ID, result.SessionToken); err != nil {
			log.Fatal().Err(err).Msg("company token exchange")
		}
	}

	companyCtx, err := companies.NewContext(service, companies.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("wire company context")
	}
	log.Info().Str("company", companyCtx.Info()).Msg("operating context")

	authenticator, err := interceptor.New(tokens, backend.URL, cfg, interceptor.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("wire authenticator")
	}
	client := &http.Client{Transport: authenticator}

	// The backend rejects the first data call, forcing a renewal and a
	// transparent replay.
	resp, err := client.Get(backend.URL + "/api/fleet/vehicles")
	if err != nil {
		log.Fatal().Err(err).Msg("fleet request")
	}
	payload, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	log.Info().Int("status", resp.StatusCode).RawJSON("vehicles", payload).Msg("fleet request after renewal")

	service.Logout()
	log.Info().Bool("authenticated", service.IsAuthenticated()).Msg("logged out")
}

// printNotifications mirrors the notification queue into the log, the way
// a UI shell would render toasts.
func printNotifications(center *notify.Center, log zerolog.Logger) func() {
	queue, cancel := center.Notifications().Subscribe()
	seen := map[string]bool{}
	go func() {
		for notifications := range queue {
			for _, n := range notifications {
				if seen[n.ID] {
					continue
				}
				seen[n.ID] = true
				log.Info().Str("level", string(n.Level)).Str("toast", n.Message).Msg("notification")
			}
		}
	}()
	return cancel
}

// startFakeBackend serves just enough of the API for the walkthrough. The
// data endpoint rejects the first token so the renewal path is exercised.
func startFakeBackend() *httptest.Server {
	var renewed atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"userId":       1,
			"userName":     "maria",
			"role":         "admin",
			"name":         "Maria",
			"lastName":     "Lopez",
			"sessionToken": "S1",
			"empresas": []map[string]any{
				{"id": 7, "nombre": "Transportes Norte", "email": "norte@example.com"},
				{"id": 8, "nombre": "Transportes Sur", "email": "sur@example.com"},
			},
		})
	})
	mux.HandleFunc("/api/tokens/generate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"token": "T1", "refreshToken": "R1"})
	})
	mux.HandleFunc("/api/tokens/refresh", func(w http.ResponseWriter, r *http.Request) {
		renewed.Store(true)
		writeJSON(w, map[string]any{"token": "T2"})
	})
	mux.HandleFunc("/api/fleet/vehicles", func(w http.ResponseWriter, r *http.Request) {
		if !renewed.Load() || r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, []map[string]any{
			{"plate": "AB-123-CD", "driver": "Juan"},
			{"plate": "EF-456-GH", "driver": "Eva"},
		})
	})

	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
