// Package sessions holds the authenticated identity and the company
// (empresa) it operates within, plus the persistence helpers that let both
// survive a reload. JSON field names follow the backend wire contract.
package sessions

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tmsfleet/go-auth-client/storage"
)

// Session is the authenticated identity. The access token is kept in
// memory on the struct but persisted under its own storage key, never
// inside the user-data blob.
type Session struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"userName"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	LastName  string `json:"lastName"`
	CompanyID *int64 `json:"empresaId,omitempty"`
	Token     string `json:"-"`
}

// Company is a tenant the user may operate within.
type Company struct {
	ID    int64  `json:"id"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
}

// Save persists the user-data blob. The token is stored separately by the
// token lifecycle manager.
func (s *Session) Save(store storage.Store) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "[Session.Save] marshal")
	}
	store.Write(storage.KeyUserData, string(encoded))
	return nil
}

// Load restores the persisted session, rehydrating the token from its own
// key. Returns nil with no error when nothing is stored; returns an error
// on a corrupt blob so the restore flow can clear everything.
func Load(store storage.Store) (*Session, error) {
	raw, ok := store.Read(storage.KeyUserData)
	if !ok || raw == "" {
		return nil, nil
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, errors.Wrap(err, "[sessions.Load] unmarshal user data")
	}
	if token, ok := store.Read(storage.KeyAccessToken); ok {
		session.Token = token
	}
	return &session, nil
}

// SaveCompany persists the selected company blob.
func SaveCompany(store storage.Store, company *Company) error {
	encoded, err := json.Marshal(company)
	if err != nil {
		return errors.Wrap(err, "[sessions.SaveCompany] marshal")
	}
	store.Write(storage.KeySelectedCompany, string(encoded))
	return nil
}

// LoadCompany restores the selected company; nil when absent, error when
// corrupt.
func LoadCompany(store storage.Store) (*Company, error) {
	raw, ok := store.Read(storage.KeySelectedCompany)
	if !ok || raw == "" {
		return nil, nil
	}

	var company Company
	if err := json.Unmarshal([]byte(raw), &company); err != nil {
		return nil, errors.Wrap(err, "[sessions.LoadCompany] unmarshal")
	}
	return &company, nil
}

// SaveCompanies persists the candidate-company list shown on the selection
// screen.
func SaveCompanies(store storage.Store, companies []Company) error {
	encoded, err := json.Marshal(companies)
	if err != nil {
		return errors.Wrap(err, "[sessions.SaveCompanies] marshal")
	}
	store.Write(storage.KeyCompanyList, string(encoded))
	return nil
}

// LoadCompanies restores the candidate list; empty when absent or corrupt.
func LoadCompanies(store storage.Store) []Company {
	raw, ok := store.Read(storage.KeyCompanyList)
	if !ok || raw == "" {
		return nil
	}

	var companies []Company
	if err := json.Unmarshal([]byte(raw), &companies); err != nil {
		return nil
	}
	return companies
}

// Clear removes every persisted session key. Safe to call when nothing is
// stored.
func Clear(store storage.Store) {
	for _, key := range storage.SessionKeys() {
		store.Remove(key)
	}
}
