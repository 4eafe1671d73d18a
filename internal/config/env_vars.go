package config

import "os"

const (
	apiBaseURLVar = "API_BASE_URL"
)

// EnvConfig exposes the endpoints the client talks to and the in-app routes
// it navigates to. Paths are configuration, not wire contract.
type EnvConfig interface {
	GetAPIBaseURL() string
	GetLoginPath() string
	GetValidatePath() string
	GetRegisterPath() string
	GetExchangePath() string
	GetRefreshPath() string
	GetLoginRoute() string
	GetLandingRoute() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "http://localhost:8080")
}

func (EnvVars) GetLoginPath() string {
	return "/api/auth/login"
}

func (EnvVars) GetValidatePath() string {
	return "/api/auth/validate"
}

func (EnvVars) GetRegisterPath() string {
	return "/api/users/register"
}

func (EnvVars) GetExchangePath() string {
	return "/api/tokens/generate"
}

func (EnvVars) GetRefreshPath() string {
	return "/api/tokens/refresh"
}

func (EnvVars) GetLoginRoute() string {
	return "/auth/login"
}

func (EnvVars) GetLandingRoute() string {
	return "/dashboard"
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
