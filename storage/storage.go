// Package storage defines the persistent key/value store that lets a
// session survive a page reload. The store is deliberately dumb: no TTLs,
// no validation; all expiry logic lives in the token lifecycle manager.
package storage

// Store is the durable session store. Implementations never fail; a
// missing key is a normal outcome, not an error.
type Store interface {
	Read(key string) (string, bool)
	Write(key, value string)
	Remove(key string)
}

// Keys under which session state is persisted. The tms_ prefix matches the
// backend's fleet-management namespace.
const (
	KeyAccessToken     = "tms_auth_token"
	KeyRefreshToken    = "tms_refresh_token"
	KeyAccessExpiry    = "tms_token_expiry"
	KeyRefreshExpiry   = "tms_refresh_expiry"
	KeyLoginTime       = "tms_login_time"
	KeySessionToken    = "tms_session_token"
	KeyUserData        = "tms_user_data"
	KeySelectedCompany = "tms_selected_empresa"
	KeyCompanyList     = "tms_empresas_list"
	KeyWarningInfo     = "tms_warn_info"
	KeyWarningSoon     = "tms_warn_warning"
	KeyWarningCritical = "tms_warn_critical"
)

// SessionKeys lists every key a logout must clear.
func SessionKeys() []string {
	return []string{
		KeyAccessToken,
		KeyRefreshToken,
		KeyAccessExpiry,
		KeyRefreshExpiry,
		KeyLoginTime,
		KeySessionToken,
		KeyUserData,
		KeySelectedCompany,
		KeyCompanyList,
		KeyWarningInfo,
		KeyWarningSoon,
		KeyWarningCritical,
	}
}

// NopStore is the store used outside a browser-like environment: writes
// vanish and reads find nothing, so callers never need to branch on the
// execution context themselves.
type NopStore struct{}

var _ Store = NopStore{}

func (NopStore) Read(string) (string, bool) { return "", false }
func (NopStore) Write(string, string)       {}
func (NopStore) Remove(string)              {}
