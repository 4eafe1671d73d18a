package token

import "errors"

var (
	RefreshCredentialMissingErr = errors.New("no credential available to renew the session")
	SessionExpiredErr           = errors.New("session expired")
)
