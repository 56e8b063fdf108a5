package models

// LoginRequest is the body sent to the authenticate endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required" validate:"required"`
	Password string `json:"password" binding:"required" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new credential bundle.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// AuthResponse is the payload returned by both the authenticate and refresh endpoints.
// The server spells the last-name field "lasttName"; it is translated to LastName here
// and nowhere else.
type AuthResponse struct {
	Token                  string     `json:"token" validate:"required"`
	FirstName              string     `json:"firstName"`
	LastName               string     `json:"lasttName"`
	Email                  string     `json:"email"`
	ID                     FlexibleID `json:"id"`
	RefreshToken           string     `json:"refreshToken"`
	ExpiresIn              int64      `json:"expiresIn" validate:"gte=0"`
	RefreshTokenExpiration string     `json:"refreshTokenExpiration"`
}

// LoginResult is the tagged outcome of a login attempt. Login never returns an error;
// failures are reported through Success=false and a user-presentable message.
type LoginResult struct {
	Success bool         `json:"success"`
	User    *UserProfile `json:"user,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// TokenClaims is the subset of access token claims the session core relies on.
type TokenClaims struct {
	ExpiresAt int64    `json:"exp"`
	Roles     []string `json:"roles"`
}
