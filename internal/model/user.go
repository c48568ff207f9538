package model

import "time"

// User represents a registered account.
//
// PasswordHash and RefreshToken carry `json:"-"` so they can never leak
// through an API response, even if a handler serialises the whole struct.
//
// WHY *string FOR Avatar AND RefreshToken?
// Both are genuinely optional: an account may have no avatar (the avatar
// service was down at signup) and no refresh token (never logged in, or
// logged out). nil maps to SQL NULL and to JSON null.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Confirmed    bool      `json:"confirmed"`
	Avatar       *string   `json:"avatar"`
	RefreshToken *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// SignupInput is the body of a registration request.
type SignupInput struct {
	Username string `json:"username" validate:"required,min=5,max=16"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=10"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
