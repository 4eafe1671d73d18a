package config

import "time"

// AuthConfig holds the timings that drive the token lifecycle: how long
// issued tokens live, how often the background check runs, and how refresh
// failures are retried.
type AuthConfig interface {
	GetTokenLifetime() time.Duration
	GetSessionLifetime() time.Duration
	GetCheckInterval() time.Duration
	GetRefreshThreshold() time.Duration
	GetRetryAttempts() int
	GetRetryDelay() time.Duration
	GetInfoThreshold() time.Duration
	GetWarningThreshold() time.Duration
	GetCriticalThreshold() time.Duration
}

type Auth struct{}

var _ AuthConfig = Auth{}

// GetTokenLifetime is the assumed access token lifetime when the server
// does not embed an expiry in the token itself.
func (Auth) GetTokenLifetime() time.Duration {
	return 1 * time.Hour
}

// GetSessionLifetime bounds the whole session: once this elapses the
// refresh token is dead and the user must log in again.
func (Auth) GetSessionLifetime() time.Duration {
	return 24 * time.Hour
}

func (Auth) GetCheckInterval() time.Duration {
	return 30 * time.Minute
}

// GetRefreshThreshold is how close to access-token expiry a refresh is
// scheduled.
func (Auth) GetRefreshThreshold() time.Duration {
	return 5 * time.Minute
}

func (Auth) GetRetryAttempts() int {
	return 3
}

func (Auth) GetRetryDelay() time.Duration {
	return 5 * time.Second
}

func (Auth) GetInfoThreshold() time.Duration {
	return 30 * time.Minute
}

func (Auth) GetWarningThreshold() time.Duration {
	return 15 * time.Minute
}

func (Auth) GetCriticalThreshold() time.Duration {
	return 5 * time.Minute
}
