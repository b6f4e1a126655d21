package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// supported identity providers
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// represents an authenticated user as returned by the auth service
type User struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Provider          string     `json:"provider"`
	ProfilePicture    string     `json:"profilePicture,omitempty"`
	EmailVerified     bool       `json:"emailVerified"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	PasswordUpdatedAt *time.Time `json:"passwordUpdatedAt,omitempty"`
}

// parses the URL-encoded JSON user payload delivered on the OAuth
// redirect. An empty or unparseable payload is an error, never a
// partial user.
func ParseOAuthUser(raw string) (*User, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing user parameter")
	}

	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode user parameter: %w", err)
	}

	var user User
	if err := json.Unmarshal([]byte(decoded), &user); err != nil {
		return nil, fmt.Errorf("failed to parse user parameter: %w", err)
	}

	if user.ID == "" {
		return nil, fmt.Errorf("user parameter missing id")
	}

	if user.Provider == "" {
		user.Provider = ProviderGoogle
	}

	return &user, nil
}
