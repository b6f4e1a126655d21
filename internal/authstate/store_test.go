package authstate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "codeberg.org/algorave/passage/internal/errors"
	"codeberg.org/algorave/passage/internal/gateway"
	"codeberg.org/algorave/passage/internal/model"
	"codeberg.org/algorave/passage/internal/persist"
	"codeberg.org/algorave/passage/internal/sealbox"
	"codeberg.org/algorave/passage/internal/sessionstore"
)

// scriptable stand-in for the remote auth service
type fakeGateway struct {
	loginFn          func(ctx context.Context, email, password string) (*gateway.AuthData, error)
	signupFn         func(ctx context.Context, name, email, password string) (*gateway.AuthData, error)
	forgotPasswordFn func(ctx context.Context, email string) (string, error)
	resetPasswordFn  func(ctx context.Context, email, otp, newPassword string) (string, *gateway.AuthData, error)
	listUsersFn      func(ctx context.Context) ([]model.User, error)
	oauthStatusFn    func(ctx context.Context) (*gateway.OAuthStatus, error)
}

func (f *fakeGateway) Login(ctx context.Context, email, password string) (*gateway.AuthData, error) {
	return f.loginFn(ctx, email, password)
}

func (f *fakeGateway) Signup(ctx context.Context, name, email, password string) (*gateway.AuthData, error) {
	return f.signupFn(ctx, name, email, password)
}

func (f *fakeGateway) ForgotPassword(ctx context.Context, email string) (string, error) {
	return f.forgotPasswordFn(ctx, email)
}

func (f *fakeGateway) ResetPassword(ctx context.Context, email, otp, newPassword string) (string, *gateway.AuthData, error) {
	return f.resetPasswordFn(ctx, email, otp, newPassword)
}

func (f *fakeGateway) ListUsers(ctx context.Context) ([]model.User, error) {
	return f.listUsersFn(ctx)
}

func (f *fakeGateway) OAuthStatus(ctx context.Context) (*gateway.OAuthStatus, error) {
	return f.oauthStatusFn(ctx)
}

type fixture struct {
	store    *Store
	sessions *sessionstore.Store
	adapter  *persist.Adapter
	gw       *fakeGateway
	dir      string
	codec    *sealbox.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	codec, err := sealbox.NewWithKey(make([]byte, 32))
	require.NoError(t, err)

	dir := t.TempDir()
	sessions := sessionstore.New(dir, codec)

	adapter := persist.New(dir, codec, 10*time.Millisecond)
	t.Cleanup(adapter.Close)

	gw := &fakeGateway{}

	store := New(sessions, adapter)
	store.AttachGateway(gw)

	return &fixture{store: store, sessions: sessions, adapter: adapter, gw: gw, dir: dir, codec: codec}
}

func authData(id, token string) *gateway.AuthData {
	return &gateway.AuthData{
		User: &model.User{
			ID:       id,
			Name:     "Ada",
			Email:    "a@b.com",
			Provider: model.ProviderLocal,
		},
		Token: token,
	}
}

func TestLogin_Fulfilled(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		assert.Equal(t, "a@b.com", email)
		assert.Equal(t, "x", password)
		return authData("1", "tkn"), nil
	}

	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))

	st := f.store.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "1", st.User.ID)
	assert.Equal(t, "tkn", st.Token)
	assert.Empty(t, st.Error)
	assert.False(t, st.IsLoading)

	// write-through: the secure store holds the same session
	assert.Equal(t, "tkn", f.sessions.GetToken())
	require.NotNil(t, f.sessions.GetUser())
	assert.Equal(t, "1", f.sessions.GetUser().ID)
}

func TestLogin_Rejected(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return nil, &errs.GatewayError{StatusCode: 400, Message: "Invalid credentials"}
	}

	err := f.store.Login(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)

	st := f.store.Snapshot()
	assert.Equal(t, "Invalid credentials", st.Error)
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Empty(t, st.Token)
}

func TestLogin_RejectionRollsBackExistingSession(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return authData("1", "tkn"), nil
	}
	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))

	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return nil, &errs.GatewayError{StatusCode: 400, Message: "Invalid credentials"}
	}
	require.Error(t, f.store.Login(context.Background(), "a@b.com", "wrong"))

	// no half-authenticated leftovers, in memory or on disk
	st := f.store.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Empty(t, f.sessions.GetToken())
}

func TestLogin_SuccessWithoutCredentialsIsRejection(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return &gateway.AuthData{}, nil
	}

	require.Error(t, f.store.Login(context.Background(), "a@b.com", "x"))

	st := f.store.Snapshot()
	assert.False(t, st.IsAuthenticated)
}

func TestSignup_Fulfilled(t *testing.T) {
	f := newFixture(t)
	f.gw.signupFn = func(ctx context.Context, name, email, password string) (*gateway.AuthData, error) {
		return authData("2", "tkn-2"), nil
	}

	require.NoError(t, f.store.Signup(context.Background(), "Ada", "a@b.com", "x"))

	st := f.store.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "2", st.User.ID)
}

func TestPendingClearsError(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return nil, &errs.GatewayError{StatusCode: 400, Message: "Invalid credentials"}
	}
	require.Error(t, f.store.Login(context.Background(), "a@b.com", "wrong"))
	require.NotEmpty(t, f.store.Snapshot().Error)

	var sawPendingWithoutError bool
	unsub := f.store.Subscribe(func(st State) {
		if st.IsLoading && st.Error == "" {
			sawPendingWithoutError = true
		}
	})
	defer unsub()

	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return authData("1", "tkn"), nil
	}
	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))

	assert.True(t, sawPendingWithoutError, "entering pending must clear the previous error")
	assert.Empty(t, f.store.Snapshot().Error)
}

func TestForgotPassword_NonDestructive(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return authData("1", "tkn"), nil
	}
	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))

	f.gw.forgotPasswordFn = func(ctx context.Context, email string) (string, error) {
		return "", &errs.GatewayError{StatusCode: 404, Message: "Email not found"}
	}
	require.Error(t, f.store.ForgotPassword(context.Background(), "other@b.com"))

	// rejection set its error but left the session alone
	st := f.store.Snapshot()
	assert.Equal(t, "Email not found", st.Error)
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "tkn", st.Token)
	assert.Equal(t, "tkn", f.sessions.GetToken())
}

func TestForgotPassword_SetsMessage(t *testing.T) {
	f := newFixture(t)
	f.gw.forgotPasswordFn = func(ctx context.Context, email string) (string, error) {
		return "Reset code sent", nil
	}

	require.NoError(t, f.store.ForgotPassword(context.Background(), "a@b.com"))

	assert.Equal(t, "Reset code sent", f.store.Snapshot().ForgotPasswordMessage)
}

func TestResetPassword_WithImplicitRelogin(t *testing.T) {
	f := newFixture(t)
	f.gw.resetPasswordFn = func(ctx context.Context, email, otp, newPassword string) (string, *gateway.AuthData, error) {
		return "Password updated", authData("1", "fresh"), nil
	}

	require.NoError(t, f.store.ResetPassword(context.Background(), "a@b.com", "123456", "newpw"))

	st := f.store.Snapshot()
	assert.Equal(t, "Password updated", st.ResetPasswordMessage)
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "fresh", st.Token)
	assert.Equal(t, "fresh", f.sessions.GetToken())
}

func TestResetPassword_WithoutAuthData(t *testing.T) {
	f := newFixture(t)
	f.gw.resetPasswordFn = func(ctx context.Context, email, otp, newPassword string) (string, *gateway.AuthData, error) {
		return "Password updated", nil, nil
	}

	require.NoError(t, f.store.ResetPassword(context.Background(), "a@b.com", "123456", "newpw"))

	st := f.store.Snapshot()
	assert.Equal(t, "Password updated", st.ResetPasswordMessage)
	assert.False(t, st.IsAuthenticated)
	assert.Empty(t, f.sessions.GetToken())
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	f.gw.listUsersFn = func(ctx context.Context) ([]model.User, error) {
		return []model.User{{ID: "1"}, {ID: "2"}}, nil
	}

	require.NoError(t, f.store.ListUsers(context.Background()))

	assert.Len(t, f.store.Snapshot().Users, 2)
}

func TestLogout_Complete(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return authData("1", "tkn"), nil
	}
	f.gw.listUsersFn = func(ctx context.Context) ([]model.User, error) {
		return []model.User{{ID: "1"}}, nil
	}
	f.gw.forgotPasswordFn = func(ctx context.Context, email string) (string, error) {
		return "sent", nil
	}

	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))
	require.NoError(t, f.store.ListUsers(context.Background()))
	require.NoError(t, f.store.ForgotPassword(context.Background(), "a@b.com"))

	f.store.Logout()

	st := f.store.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Empty(t, st.Token)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.ForgotPasswordMessage)
	assert.Empty(t, st.ResetPasswordMessage)
	assert.Nil(t, st.Users)

	// durable storage is purged synchronously, not on some later reload
	assert.Empty(t, f.sessions.GetToken())
	assert.Nil(t, f.sessions.GetUser())
	_, ok := f.adapter.GetItem("passage:auth")
	assert.False(t, ok)
}

func TestLoadFromStorage_RestoresSession(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return authData("1", "tkn"), nil
	}
	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))

	// simulate process restart: fresh store over the same storage, and
	// no gateway involvement at all
	restarted := New(sessionstore.New(f.dir, f.codec), f.adapter)
	restarted.LoadFromStorage()

	st := restarted.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "1", st.User.ID)
	assert.Equal(t, "tkn", st.Token)
}

func TestLoadFromStorage_EmptyStorage(t *testing.T) {
	f := newFixture(t)

	f.store.LoadFromStorage()

	st := f.store.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Empty(t, st.Token)
}

func TestLoadFromStorage_PartialSessionNeverPopulates(t *testing.T) {
	f := newFixture(t)

	// token without user: a partial session is treated as absent
	f.sessions.SetToken("orphan")

	f.store.LoadFromStorage()

	st := f.store.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Empty(t, st.Token)

	// and the orphan secret is gone
	assert.Empty(t, f.sessions.GetToken())
}

func TestLoadFromStorage_InvariantHolds(t *testing.T) {
	f := newFixture(t)

	f.store.LoadFromStorage()

	st := f.store.Snapshot()
	assert.Equal(t, st.User != nil && st.Token != "", st.IsAuthenticated)
}

func TestCompleteOAuth(t *testing.T) {
	f := newFixture(t)

	user := &model.User{ID: "g-1", Provider: model.ProviderGoogle, Email: "a@b.com"}

	require.NoError(t, f.store.CompleteOAuth(user, "g-tkn"))

	st := f.store.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "g-1", st.User.ID)
	assert.Equal(t, "g-tkn", f.sessions.GetToken())
}

func TestCompleteOAuth_MissingCredentials(t *testing.T) {
	f := newFixture(t)

	require.Error(t, f.store.CompleteOAuth(nil, "g-tkn"))

	st := f.store.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.NotEmpty(t, st.Error)
}

func TestRejectOAuth(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return authData("1", "tkn"), nil
	}
	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))

	f.store.RejectOAuth("access denied")

	st := f.store.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Equal(t, "access denied", st.Error)
}

func TestUnauthorizedResponse_ForcesTeardown(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return authData("1", "tkn"), nil
	}
	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))

	// real gateway against a server that has stopped honoring the token
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"message":"token expired"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	f.store.AttachGateway(gateway.New(srv.URL, f.store.Token, f.store.ForceLogout))

	require.Error(t, f.store.ListUsers(context.Background()))

	st := f.store.Snapshot()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Empty(t, f.sessions.GetToken())
	assert.NotEmpty(t, st.Error)
}

func TestSubscribe_NotifiesAndUnsubscribes(t *testing.T) {
	f := newFixture(t)
	f.gw.loginFn = func(ctx context.Context, email, password string) (*gateway.AuthData, error) {
		return authData("1", "tkn"), nil
	}

	notifications := 0
	unsub := f.store.Subscribe(func(State) { notifications++ })

	require.NoError(t, f.store.Login(context.Background(), "a@b.com", "x"))
	assert.GreaterOrEqual(t, notifications, 2, "pending and fulfilled must both notify")

	unsub()
	seen := notifications

	f.store.Logout()
	assert.Equal(t, seen, notifications)
}
