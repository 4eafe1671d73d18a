package auth

import "github.com/tmsfleet/go-auth-client/sessions"

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"userName"`
	Password string `json:"password"`
}

// LoginResponse is the login payload. Which fields are populated depends
// on how many companies the user belongs to: a final token for zero or
// one, a transient session token plus the candidate list for many.
type LoginResponse struct {
	UserID       int64              `json:"userId"`
	Username     string             `json:"userName"`
	Role         string             `json:"role"`
	Name         string             `json:"name"`
	LastName     string             `json:"lastName"`
	Token        string             `json:"token"`
	SessionToken string             `json:"sessionToken"`
	Companies    []sessions.Company `json:"empresas"`
}

// LoginResult is what a login attempt produced. Session is nil while a
// company selection is pending.
type LoginResult struct {
	Session               *sessions.Session
	Companies             []sessions.Company
	SessionToken          string
	NeedsCompanySelection bool
}

// TokenResponse is the company-token exchange payload.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type RegisterRequest struct {
	Username    string `json:"userName"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email,omitempty"`
}

// RegisteredUser is the registration response.
type RegisteredUser struct {
	ID       int64  `json:"id"`
	Username string `json:"userName"`
	Role     string `json:"role"`
}
