package auth

import "errors"

var (
	MissingTokenErr        = errors.New("login response missing token")
	MissingSessionTokenErr = errors.New("login response missing session token")
	EmptySessionTokenErr   = errors.New("session token is required")
	NoStoredUserErr        = errors.New("no stored user data for token exchange")
)
