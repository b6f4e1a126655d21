// Package authstate holds process-wide authentication state and the
// transitions that move it. Every operation family follows the same
// lifecycle: entering pending clears the family's error, settling
// applies fulfilled or rejected atomically. Auth-creating families
// write the session through to durable storage before their transition
// completes, so a restart immediately after login sees the session.
package authstate

import (
	"context"
	"encoding/json"
	"sync"

	errs "codeberg.org/algorave/passage/internal/errors"
	"codeberg.org/algorave/passage/internal/gateway"
	"codeberg.org/algorave/passage/internal/logger"
	"codeberg.org/algorave/passage/internal/model"
)

// fixed key for the persisted auth envelope
const rootKey = "passage:auth"

// owns State and is its only writer. Constructed once at startup and
// handed to the views; not a package singleton.
type Store struct {
	mu       sync.Mutex
	state    State
	pending  int
	gw       Gateway
	sessions Sessions
	persist  Persister

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// creates a store over the given storage layers. The gateway is
// attached separately because its 401 hook points back at the store.
func New(sessions Sessions, persist Persister) *Store {
	return &Store{
		sessions: sessions,
		persist:  persist,
		subs:     make(map[int]func(State)),
	}
}

// wires the remote gateway after construction
func (s *Store) AttachGateway(gw Gateway) {
	s.gw = gw
}

// returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

// returns the current bearer token; used as the gateway token source
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Token
}

// registers a state listener and returns its unsubscribe func. The
// listener runs outside the store lock, so it may call back in.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// rehydrates the session from durable storage. Runs once at process
// start; if either secret is missing or unreadable the session fields
// stay at their zero values, never half-populated.
func (s *Store) LoadFromStorage() {
	token := s.sessions.GetToken()
	user := s.sessions.GetUser()

	s.mu.Lock()
	if token != "" && user != nil {
		s.state.Token = token
		s.state.User = user
		s.state.IsAuthenticated = true
		logger.Info("session restored from storage", "user_id", user.ID)
	} else if token != "" || user != nil {
		// a partial session is not a session; drop the orphan secret
		logger.Warn("discarding partial stored session")
		s.sessions.ClearAll()
		s.persist.RemoveItem(rootKey)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// registers a new account and starts its session
func (s *Store) Signup(ctx context.Context, name, email, password string) error {
	s.begin(nil)

	data, err := s.gw.Signup(ctx, name, email, password)
	if err != nil {
		s.rejectAuth(err)
		return err
	}

	return s.fulfillAuth(data)
}

// exchanges credentials for a session
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.begin(nil)

	data, err := s.gw.Login(ctx, email, password)
	if err != nil {
		s.rejectAuth(err)
		return err
	}

	return s.fulfillAuth(data)
}

// requests a one-time reset code. Non-destructive: rejection never
// touches the session.
func (s *Store) ForgotPassword(ctx context.Context, email string) error {
	s.begin(func(st *State) { st.ForgotPasswordMessage = "" })

	message, err := s.gw.ForgotPassword(ctx, email)
	if err != nil {
		s.reject(err)
		return err
	}

	s.settle(func(st *State) {
		st.ForgotPasswordMessage = message
	})

	return nil
}

// redeems a one-time code for a new password. When the response carries
// fresh credentials the session is replaced, an implicit re-login.
func (s *Store) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	s.begin(func(st *State) { st.ResetPasswordMessage = "" })

	message, data, err := s.gw.ResetPassword(ctx, email, otp, newPassword)
	if err != nil {
		s.reject(err)
		return err
	}

	if data != nil {
		s.writeThrough(data.User, data.Token)
	}

	s.settle(func(st *State) {
		st.ResetPasswordMessage = message
		if data != nil {
			st.User = data.User
			st.Token = data.Token
			st.IsAuthenticated = true
		}
	})

	return nil
}

// refreshes the user directory. Non-destructive.
func (s *Store) ListUsers(ctx context.Context) error {
	s.begin(nil)

	users, err := s.gw.ListUsers(ctx)
	if err != nil {
		s.reject(err)
		return err
	}

	s.settle(func(st *State) {
		st.Users = users
	})

	return nil
}

// asks the service whether OAuth sign-in is available and where the
// browser should go
func (s *Store) OAuthStatus(ctx context.Context) (*gateway.OAuthStatus, error) {
	s.begin(nil)

	status, err := s.gw.OAuthStatus(ctx)
	if err != nil {
		s.reject(err)
		return nil, err
	}

	s.settle(nil)

	return status, nil
}

// applies a completed OAuth redirect. The caller has already validated
// the redirect parameters; this is the oauth-complete fulfillment.
func (s *Store) CompleteOAuth(user *model.User, token string) error {
	return s.fulfillAuthDirect(user, token)
}

// applies a failed OAuth redirect: full session rollback plus the error
func (s *Store) RejectOAuth(message string) {
	s.mu.Lock()
	s.clearSessionLocked()
	s.state.Error = message
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// destroys the session everywhere in one synchronous operation: memory,
// the secure store, and the persisted envelope. Nothing about logout
// waits for a reload.
func (s *Store) Logout() {
	s.mu.Lock()
	s.clearSessionLocked()
	s.state.Error = ""
	s.state.ForgotPasswordMessage = ""
	s.state.ResetPasswordMessage = ""
	s.state.Users = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// tears the session down after an unauthorized response. Wired as the
// gateway's 401 hook; overrides whatever the in-flight operation was
// doing.
func (s *Store) ForceLogout() {
	s.mu.Lock()
	s.clearSessionLocked()
	s.state.Error = errs.UserMessage(errs.ErrUnauthorized)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// --- transition plumbing ---

// enters pending: raises the loading flag and clears the error (and,
// via extra, the family's own message)
func (s *Store) begin(extra func(*State)) {
	s.mu.Lock()
	s.pending++
	s.state.IsLoading = true
	s.state.Error = ""
	if extra != nil {
		extra(&s.state)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// settles a fulfilled transition
func (s *Store) settle(apply func(*State)) {
	s.mu.Lock()
	s.endPendingLocked()
	if apply != nil {
		apply(&s.state)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// settles a rejected non-destructive transition: only the error changes
func (s *Store) reject(err error) {
	s.mu.Lock()
	s.endPendingLocked()
	s.state.Error = errs.UserMessage(err)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// settles a rejected auth-creating transition: full rollback, no
// half-authenticated state survives
func (s *Store) rejectAuth(err error) {
	s.mu.Lock()
	s.endPendingLocked()
	s.clearSessionLocked()
	s.state.Error = errs.UserMessage(err)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// settles a fulfilled auth-creating transition, writing the session
// through to durable storage first
func (s *Store) fulfillAuth(data *gateway.AuthData) error {
	if data == nil || data.Token == "" || data.User == nil {
		// a success response without credentials is treated as a rejection
		err := errs.New("auth response missing credentials")
		s.rejectAuth(err)
		return err
	}

	s.writeThrough(data.User, data.Token)

	s.settle(func(st *State) {
		st.User = data.User
		st.Token = data.Token
		st.IsAuthenticated = true
	})

	return nil
}

// like fulfillAuth but outside a pending request lifecycle (OAuth
// completion arrives via redirect, not via a dispatched gateway call)
func (s *Store) fulfillAuthDirect(user *model.User, token string) error {
	if user == nil || token == "" {
		err := errs.New("oauth redirect missing credentials")
		s.RejectOAuth("OAuth sign-in failed")
		return err
	}

	s.writeThrough(user, token)

	s.mu.Lock()
	s.state.User = user
	s.state.Token = token
	s.state.IsAuthenticated = true
	s.state.Error = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)

	return nil
}

// persists both secrets and the envelope; runs before the in-memory
// transition so a restart right after success still sees the session
func (s *Store) writeThrough(user *model.User, token string) {
	s.sessions.SetToken(token)
	s.sessions.SetUser(user)

	env, err := json.Marshal(envelope{User: user, Token: token})
	if err != nil {
		logger.ErrorErr(err, "failed to serialize auth envelope")
		return
	}

	s.persist.SetItem(rootKey, string(env))
}

// caller must hold s.mu
func (s *Store) clearSessionLocked() {
	s.state.User = nil
	s.state.Token = ""
	s.state.IsAuthenticated = false

	s.sessions.ClearAll()
	s.persist.RemoveItem(rootKey)
	s.persist.Flush()
}

// caller must hold s.mu
func (s *Store) endPendingLocked() {
	if s.pending > 0 {
		s.pending--
	}
	s.state.IsLoading = s.pending > 0
}

// caller must hold s.mu
func (s *Store) snapshotLocked() State {
	snap := s.state

	if s.state.Users != nil {
		snap.Users = make([]model.User, len(s.state.Users))
		copy(snap.Users, s.state.Users)
	}

	return snap
}

// fans a snapshot out to subscribers, outside the store lock
func (s *Store) notify(snap State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
