// Package auth orchestrates the authentication flows: login with its
// three post-login branches, the company-token exchange, session restore
// at startup, and logout. It owns the Session exclusively and publishes it
// as reactive state.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/tmsfleet/go-auth-client/httpclient"
	"github.com/tmsfleet/go-auth-client/internal/config"
	"github.com/tmsfleet/go-auth-client/internal/utils"
	"github.com/tmsfleet/go-auth-client/notify"
	"github.com/tmsfleet/go-auth-client/observable"
	"github.com/tmsfleet/go-auth-client/sessions"
	"github.com/tmsfleet/go-auth-client/storage"
	"github.com/tmsfleet/go-auth-client/token"
)

const msgAuthDataIncomplete = "Authentication response was incomplete. Please try signing in again."

// Deps holds the collaborators the service needs.
type Deps struct {
	API       *httpclient.Client
	Store     storage.Store
	Notifier  notify.Notifier
	Tokens    *token.Manager
	Navigator Navigator
}

type Service struct {
	api       *httpclient.Client
	store     storage.Store
	notifier  notify.Notifier
	tokens    *token.Manager
	navigator Navigator
	cfg       config.Config
	log       zerolog.Logger

	session         *observable.Value[*sessions.Session]
	selectedCompany *observable.Value[*sessions.Company]
	loading         *observable.Value[bool]
	initialized     *observable.Value[bool]
	initOnce        sync.Once
}

type ServiceOption func(*Service)

func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

func New(deps Deps, cfg config.Config, options ...ServiceOption) (*Service, error) {
	if deps.API == nil {
		return nil, errors.New("[NewService] API client is required")
	}
	if deps.Store == nil {
		return nil, errors.New("[NewService] Store is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("[NewService] Notifier is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("[NewService] Tokens manager is required")
	}
	if deps.Navigator == nil {
		return nil, errors.New("[NewService] Navigator is required")
	}

	service := &Service{
		api:             deps.API,
		store:           deps.Store,
		notifier:        deps.Notifier,
		tokens:          deps.Tokens,
		navigator:       deps.Navigator,
		cfg:             cfg,
		log:             zerolog.Nop(),
		session:         observable.NewValue[*sessions.Session](nil),
		selectedCompany: observable.NewValue[*sessions.Company](nil),
		loading:         observable.NewValue(false),
		initialized:     observable.NewValue(false),
	}
	for _, opt := range options {
		opt(service)
	}

	deps.Tokens.SetSessionExpiredHandler(service.handleSessionExpired)
	return service, nil
}

// Session publishes the current session; nil while unauthenticated.
func (s *Service) Session() *observable.Value[*sessions.Session] {
	return s.session
}

// SelectedCompany publishes the currently selected company.
func (s *Service) SelectedCompany() *observable.Value[*sessions.Company] {
	return s.selectedCompany
}

// Loading publishes whether an authentication operation is in progress.
func (s *Service) Loading() *observable.Value[bool] {
	return s.loading
}

// Initialized flips to true exactly once, after the startup restore
// finished. Protected routes must not render before that.
func (s *Service) Initialized() *observable.Value[bool] {
	return s.initialized
}

// IsAuthenticated reports whether a session with a token exists.
func (s *Service) IsAuthenticated() bool {
	session := s.session.Get()
	return session != nil && session.Token != ""
}

// AvailableCompanies returns the candidate list persisted at login.
func (s *Service) AvailableCompanies() []sessions.Company {
	return sessions.LoadCompanies(s.store)
}

// Login authenticates the user and branches on the returned company list:
// no companies establishes a bare session, exactly one establishes session
// and company in a single step, several defers to an explicit selection.
// Error presentation is left to the caller, so the generic toast is
// suppressed.
func (s *Service) Login(ctx context.Context, credentials Credentials) (*LoginResult, error) {
	s.loading.Set(true)
	defer s.loading.Set(false)

	var resp LoginResponse
	err := s.api.Post(ctx, s.cfg.GetLoginPath(), credentials, &resp, httpclient.WithoutErrorNotification())
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] login request")
	}

	switch {
	case len(resp.Companies) > 1:
		return s.deferCompanySelection(&resp)
	case len(resp.Companies) == 1:
		return s.establishWithCompany(&resp)
	default:
		return s.establishWithoutCompany(&resp)
	}
}

func (s *Service) deferCompanySelection(resp *LoginResponse) (*LoginResult, error) {
	if resp.SessionToken == "" {
		s.notifier.Error(msgAuthDataIncomplete)
		return nil, MissingSessionTokenErr
	}

	session := sessionFromLogin(resp)
	if err := session.Save(s.store); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] persist user data")
	}
	if err := sessions.SaveCompanies(s.store, resp.Companies); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] persist companies")
	}
	s.store.Write(storage.KeySessionToken, resp.SessionToken)

	s.notifier.Success(fmt.Sprintf("Welcome, %s. Please select a company.", resp.Name))
	s.log.Info().Int64("userId", resp.UserID).Int("companies", len(resp.Companies)).Msg("login pending company selection")

	return &LoginResult{
		Companies:             resp.Companies,
		SessionToken:          resp.SessionToken,
		NeedsCompanySelection: true,
	}, nil
}

func (s *Service) establishWithCompany(resp *LoginResponse) (*LoginResult, error) {
	if resp.Token == "" {
		s.notifier.Error(msgAuthDataIncomplete)
		return nil, MissingTokenErr
	}

	company := resp.Companies[0]
	session := sessionFromLogin(resp)
	session.CompanyID = utils.Ptr(company.ID)
	session.Token = resp.Token

	if err := s.establishSession(session, &oauth2.Token{AccessToken: resp.Token}, &company); err != nil {
		return nil, err
	}
	s.navigator.Navigate(s.cfg.GetLandingRoute())
	s.notifier.Success(fmt.Sprintf("Welcome, %s (%s)", resp.Name, company.Name))
	s.log.Info().Int64("userId", resp.UserID).Int64("companyId", company.ID).Msg("login with single company")

	return &LoginResult{Session: session, Companies: resp.Companies}, nil
}

func (s *Service) establishWithoutCompany(resp *LoginResponse) (*LoginResult, error) {
	if resp.Token == "" {
		s.notifier.Error(msgAuthDataIncomplete)
		return nil, MissingTokenErr
	}

	session := sessionFromLogin(resp)
	session.Token = resp.Token

	if err := s.establishSession(session, &oauth2.Token{AccessToken: resp.Token}, nil); err != nil {
		return nil, err
	}
	s.navigator.Navigate(s.cfg.GetLandingRoute())
	s.notifier.Success(fmt.Sprintf("Welcome, %s", resp.Name))
	s.log.Info().Int64("userId", resp.UserID).Msg("login without company")

	return &LoginResult{Session: session}, nil
}

// ExchangeCompanyToken completes the multi-company branch: it trades the
// transient session token for a real token pair bound to the chosen
// company.
func (s *Service) ExchangeCompanyToken(ctx context.Context, userID, companyID int64, sessionToken string) (*sessions.Session, error) {
	if strings.TrimSpace(sessionToken) == "" {
		s.notifier.Error(msgAuthDataIncomplete)
		return nil, EmptySessionTokenErr
	}

	s.loading.Set(true)
	defer s.loading.Set(false)

	params := httpclient.BuildParams(map[string]any{
		"userId":       userID,
		"empresaId":    companyID,
		"sessionToken": sessionToken,
	})
	var resp TokenResponse
	err := s.api.Post(ctx, s.cfg.GetExchangePath(), nil, &resp, httpclient.WithParams(params))
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ExchangeCompanyToken] exchange request")
	}

	session, err := sessions.Load(s.store)
	if err != nil || session == nil {
		s.notifier.Error(msgAuthDataIncomplete)
		return nil, NoStoredUserErr
	}
	session.CompanyID = utils.Ptr(companyID)
	session.Token = resp.Token

	company := s.findCompany(companyID)
	s.store.Remove(storage.KeySessionToken)

	if err := s.establishSession(session, &oauth2.Token{AccessToken: resp.Token, RefreshToken: resp.RefreshToken}, company); err != nil {
		return nil, err
	}
	s.navigator.Navigate(s.cfg.GetLandingRoute())
	s.log.Info().Int64("userId", userID).Int64("companyId", companyID).Msg("company token exchanged")

	return session, nil
}

// RestoreSession re-establishes a persisted session at startup. It runs at
// most once; Initialized flips when it completes, however it went.
func (s *Service) RestoreSession(ctx context.Context) {
	s.initOnce.Do(func() {
		defer s.initialized.Set(true)
		s.restore(ctx)
	})
}

func (s *Service) restore(ctx context.Context) {
	if raw, ok := s.store.Read(storage.KeyUserData); !ok || raw == "" {
		sessions.Clear(s.store)
		return
	}
	if s.tokens.RefreshExpired() {
		s.log.Info().Msg("stored session past its lifetime, clearing")
		sessions.Clear(s.store)
		return
	}

	session, err := sessions.Load(s.store)
	if err != nil || session == nil {
		s.log.Warn().Err(err).Msg("stored session unreadable, clearing")
		sessions.Clear(s.store)
		return
	}
	company, err := sessions.LoadCompany(s.store)
	if err != nil {
		s.log.Warn().Err(err).Msg("stored company unreadable, clearing")
		sessions.Clear(s.store)
		return
	}

	if !s.tokens.AccessTokenValid() {
		// Access token gone or stale; renew on the refresh credential
		// before letting the session back in.
		if refreshToken, ok := s.store.Read(storage.KeyRefreshToken); !ok || refreshToken == "" {
			sessions.Clear(s.store)
			return
		}
		newToken, err := s.tokens.Refresh(ctx)
		if err != nil {
			// Terminal refresh failures already forced a logout.
			return
		}
		session.Token = newToken
	}

	s.session.Set(session)
	if company != nil {
		s.selectedCompany.Set(company)
	}
	s.tokens.Resume()
	s.log.Info().Int64("userId", session.UserID).Msg("session restored")
}

// Logout tears the session down: lifecycle timer stopped, storage
// cleared, in-memory state reset, navigation to the login route. Safe to
// call when no session exists, and silent; forced logouts announce their
// reason at the failure site.
func (s *Service) Logout() {
	s.tokens.Stop()
	sessions.Clear(s.store)
	s.session.Set(nil)
	s.selectedCompany.Set(nil)
	s.navigator.Navigate(s.cfg.GetLoginRoute())
}

// SelectCompany switches the selected company without a network call and
// mirrors the company id into the session.
func (s *Service) SelectCompany(company sessions.Company) {
	if err := sessions.SaveCompany(s.store, &company); err != nil {
		s.log.Warn().Err(err).Msg("persist selected company")
	}
	s.selectedCompany.Set(&company)

	if current := s.session.Get(); current != nil {
		updated := *current
		updated.CompanyID = utils.Ptr(company.ID)
		if err := updated.Save(s.store); err != nil {
			s.log.Warn().Err(err).Msg("persist session company id")
		}
		s.session.Set(&updated)
	}
}

// ValidateToken asks the server whether the stored access token is still
// good. Any failure is reported as invalid, never toasted.
func (s *Service) ValidateToken(ctx context.Context) bool {
	accessToken, ok := s.tokens.AccessToken()
	if !ok {
		return false
	}

	var valid bool
	err := s.api.Get(ctx, s.cfg.GetValidatePath(), &valid,
		httpclient.WithBearer(accessToken), httpclient.WithoutErrorNotification())
	if err != nil {
		return false
	}
	return valid
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, request RegisterRequest) (*RegisteredUser, error) {
	s.loading.Set(true)
	defer s.loading.Set(false)

	var user RegisteredUser
	if err := s.api.Post(ctx, s.cfg.GetRegisterPath(), request, &user); err != nil {
		return nil, errors.Wrap(err, "[Service.Register] register request")
	}

	s.notifier.Success("User registered successfully.")
	return &user, nil
}

func (s *Service) establishSession(session *sessions.Session, tok *oauth2.Token, company *sessions.Company) error {
	if err := session.Save(s.store); err != nil {
		return errors.Wrap(err, "[Service.establishSession] persist session")
	}
	if company != nil {
		if err := sessions.SaveCompany(s.store, company); err != nil {
			return errors.Wrap(err, "[Service.establishSession] persist company")
		}
	}

	s.tokens.BeginSession(tok)
	s.session.Set(session)
	s.selectedCompany.Set(company)
	return nil
}

func (s *Service) handleSessionExpired(reason string) {
	s.log.Info().Str("reason", reason).Msg("session expired, logging out")
	s.Logout()
}

// findCompany resolves a company id against the persisted candidate list.
func (s *Service) findCompany(companyID int64) *sessions.Company {
	for _, company := range sessions.LoadCompanies(s.store) {
		if company.ID == companyID {
			return &company
		}
	}
	return &sessions.Company{ID: companyID}
}

func sessionFromLogin(resp *LoginResponse) *sessions.Session {
	return &sessions.Session{
		UserID:   resp.UserID,
		Username: resp.Username,
		Role:     resp.Role,
		Name:     resp.Name,
		LastName: resp.LastName,
	}
}
