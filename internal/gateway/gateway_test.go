package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "codeberg.org/algorave/passage/internal/errors"
)

func staticToken(token string) func() string {
	return func() string { return token }
}

func TestLogin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@b.com", req.Email)
		assert.Equal(t, "x", req.Password)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"welcome back","data":{"user":{"id":"1","email":"a@b.com","provider":"local"},"token":"tkn"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken(""), nil)

	data, err := c.Login(context.Background(), "a@b.com", "x")

	require.NoError(t, err)
	assert.Equal(t, "tkn", data.Token)
	assert.Equal(t, "1", data.User.ID)
}

func TestLogin_GatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"message":"Invalid credentials"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken(""), nil)

	_, err := c.Login(context.Background(), "a@b.com", "wrong")

	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", errs.UserMessage(err))
}

func TestBearerHeaderAttachedWhenTokenPresent(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true,"data":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken("tkn-1"), nil)

	_, err := c.ListUsers(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Bearer tkn-1", gotAuth)
}

func TestNoBearerHeaderWhenTokenAbsent(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true,"message":"sent"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken(""), nil)

	msg, err := c.ForgotPassword(context.Background(), "a@b.com")

	require.NoError(t, err)
	assert.Equal(t, "sent", msg)
	assert.Empty(t, gotAuth)
}

func TestUnauthorized_FiresGlobalHookFromAnyCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"message":"token expired"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	teardowns := 0
	c := New(srv.URL, staticToken("stale"), func() { teardowns++ })

	_, err := c.ListUsers(context.Background())
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, statusErr := c.OAuthStatus(context.Background())
	require.ErrorIs(t, statusErr, errs.ErrUnauthorized)

	assert.Equal(t, 2, teardowns)
}

func TestNetworkFailure_NormalizesToGenericMessage(t *testing.T) {
	c := New("http://127.0.0.1:1", staticToken(""), nil) // nothing listens here

	_, err := c.Login(context.Background(), "a@b.com", "x")

	require.Error(t, err)
	assert.Equal(t, errs.NetworkErrorMessage, errs.UserMessage(err))
}

func TestResetPassword_WithFreshAuthData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"message":"password updated","data":{"user":{"id":"7","provider":"local"},"token":"fresh"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken(""), nil)

	msg, data, err := c.ResetPassword(context.Background(), "a@b.com", "123456", "newpw")

	require.NoError(t, err)
	assert.Equal(t, "password updated", msg)
	require.NotNil(t, data)
	assert.Equal(t, "fresh", data.Token)
}

func TestResetPassword_WithoutAuthData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"message":"password updated"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken(""), nil)

	msg, data, err := c.ResetPassword(context.Background(), "a@b.com", "123456", "newpw")

	require.NoError(t, err)
	assert.Equal(t, "password updated", msg)
	assert.Nil(t, data)
}

func TestMalformedResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken(""), nil)

	_, err := c.Login(context.Background(), "a@b.com", "x")

	require.Error(t, err)
	assert.Equal(t, errs.NetworkErrorMessage, errs.UserMessage(err))
}
