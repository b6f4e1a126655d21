package gateway

import (
	"encoding/json"

	"codeberg.org/algorave/passage/internal/model"
)

// envelope returned by every auth service endpoint
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// credentials returned by the auth-creating endpoints
type AuthData struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// reported provider availability for the OAuth entry point
type OAuthStatus struct {
	Enabled bool   `json:"enabled"`
	AuthURL string `json:"authUrl"`
}

// request bodies

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}
