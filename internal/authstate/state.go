package authstate

import (
	"context"

	"codeberg.org/algorave/passage/internal/gateway"
	"codeberg.org/algorave/passage/internal/model"
)

// the single source of truth for "am I logged in". Views read snapshots
// and request transitions; nothing outside the store mutates these
// fields.
type State struct {
	User                  *model.User
	Token                 string
	IsAuthenticated       bool
	IsLoading             bool
	Error                 string
	ForgotPasswordMessage string
	ResetPasswordMessage  string

	// directory listing, independent of the session lifecycle
	Users []model.User
}

// the remote auth service as the store sees it
type Gateway interface {
	Signup(ctx context.Context, name, email, password string) (*gateway.AuthData, error)
	Login(ctx context.Context, email, password string) (*gateway.AuthData, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, email, otp, newPassword string) (string, *gateway.AuthData, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	OAuthStatus(ctx context.Context) (*gateway.OAuthStatus, error)
}

// the durable home of the session secrets
type Sessions interface {
	SetToken(token string)
	GetToken() string
	SetUser(user *model.User)
	GetUser() *model.User
	ClearAll()
}

// the throttled persisted-state surface holding the auth envelope
type Persister interface {
	SetItem(key, value string)
	RemoveItem(key string)
	Flush()
}

// shape of the persisted auth partition envelope
type envelope struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}
