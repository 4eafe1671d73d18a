// Package companies exposes the active company (empresa) context to
// feature code: which company the user operates in, which ones are
// available, and a validated switch between them.
package companies

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tmsfleet/go-auth-client/auth"
	"github.com/tmsfleet/go-auth-client/sessions"
)

type Context struct {
	auth *auth.Service
	log  zerolog.Logger
}

type ContextOption func(*Context)

func WithLogger(log zerolog.Logger) ContextOption {
	return func(c *Context) {
		c.log = log
	}
}

func NewContext(service *auth.Service, options ...ContextOption) (*Context, error) {
	if service == nil {
		return nil, errors.New("[NewContext] auth service is required")
	}
	c := &Context{auth: service, log: zerolog.Nop()}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Selected returns the active company, nil when none is chosen yet.
func (c *Context) Selected() *sessions.Company {
	return c.auth.SelectedCompany().Get()
}

// CurrentID returns the active company id.
func (c *Context) CurrentID() (int64, bool) {
	company := c.Selected()
	if company == nil {
		return 0, false
	}
	return company.ID, true
}

// RequireID is CurrentID for callers that cannot proceed without one.
func (c *Context) RequireID() (int64, error) {
	id, ok := c.CurrentID()
	if !ok {
		return 0, NoCompanySelectedErr
	}
	return id, nil
}

func (c *Context) HasSelected() bool {
	return c.Selected() != nil
}

// Available returns the companies the user may switch between.
func (c *Context) Available() []sessions.Company {
	return c.auth.AvailableCompanies()
}

// HasMultiple reports whether a company switcher makes sense at all.
func (c *Context) HasMultiple() bool {
	return len(c.Available()) > 1
}

// Select switches the active company. When a candidate list exists the
// company must be on it; a session bound to a single company carries no
// list and any explicit selection is accepted.
func (c *Context) Select(company sessions.Company) error {
	available := c.Available()
	if len(available) > 0 && !contains(available, company.ID) {
		return errors.Wrapf(UnknownCompanyErr, "[Context.Select] company %d", company.ID)
	}

	c.auth.SelectCompany(company)
	c.log.Info().Int64("companyId", company.ID).Str("company", company.Name).Msg("company switched")
	return nil
}

// Info returns a display label for the active company.
func (c *Context) Info() string {
	company := c.Selected()
	if company == nil {
		return ""
	}
	return fmt.Sprintf("%s (#%d)", company.Name, company.ID)
}

// Changes subscribes to company switches. The cancel function releases the
// subscription.
func (c *Context) Changes() (<-chan *sessions.Company, func()) {
	return c.auth.SelectedCompany().Subscribe()
}

func contains(companies []sessions.Company, id int64) bool {
	for _, company := range companies {
		if company.ID == id {
			return true
		}
	}
	return false
}
