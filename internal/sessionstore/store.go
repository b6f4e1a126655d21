// Package sessionstore is the durable home of the two session secrets:
// the bearer token and the user record. Values are sealed by sealbox
// before they touch disk; unreadable values read back as absent, which
// callers treat the same as empty storage (either way the user signs in
// again).
package sessionstore

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"codeberg.org/algorave/passage/internal/logger"
	"codeberg.org/algorave/passage/internal/model"
	"codeberg.org/algorave/passage/internal/sealbox"
	"codeberg.org/algorave/passage/internal/telemetry"
)

// fixed storage keys, one file per secret
const (
	tokenKey    = "session_token"
	userKey     = "session_user"
	sentinelKey = "storage_probe"
)

// persists session secrets under a state directory. All operations are
// synchronous and never return errors to the caller: a write that cannot
// reach disk falls back to process memory so the live session survives,
// and the degradation is logged and counted.
type Store struct {
	mu    sync.Mutex
	dir   string
	codec *sealbox.Codec

	// last-resort values for keys whose file writes failed
	mem map[string]string
}

// creates a store rooted at dir, creating the directory if needed
func New(dir string, codec *sealbox.Codec) *Store {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		logger.ErrorErr(err, "failed to create state directory, session will not survive restart", "dir", dir)
	}

	return &Store{
		dir:   dir,
		codec: codec,
		mem:   make(map[string]string),
	}
}

// persists the bearer token
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.write(tokenKey, s.codec.Encrypt(token))
}

// returns the stored bearer token, or empty when absent, unreadable,
// or expired
func (s *Store) GetToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.read(tokenKey)
	if !ok {
		return ""
	}

	var token string
	if !s.codec.Decrypt(blob, &token) {
		return ""
	}

	if tokenExpired(token) {
		logger.Info("stored token expired, treating session as absent")
		s.remove(tokenKey)
		return ""
	}

	return token
}

// removes the stored bearer token
func (s *Store) RemoveToken() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(tokenKey)
}

// persists the user record
func (s *Store) SetUser(user *model.User) {
	if user == nil {
		s.RemoveUser()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.write(userKey, s.codec.Encrypt(user))
}

// returns the stored user record, or nil when absent or unreadable
func (s *Store) GetUser() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.read(userKey)
	if !ok {
		return nil
	}

	var user model.User
	if !s.codec.Decrypt(blob, &user) {
		return nil
	}

	if user.ID == "" {
		return nil
	}

	return &user
}

// removes the stored user record
func (s *Store) RemoveUser() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(userKey)
}

// removes every stored secret in one call
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(tokenKey)
	s.remove(userKey)
	s.remove(sentinelKey)
}

// round-trips a sentinel value as a startup diagnostic. Never panics;
// false means persisted sessions will not survive a restart.
func (s *Store) IsWorking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	probe := uuid.NewString()

	path := s.path(sentinelKey)
	if err := os.WriteFile(path, []byte(s.codec.Encrypt(probe)), 0o600); err != nil {
		return false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var got string
	if !s.codec.Decrypt(string(raw), &got) || got != probe {
		return false
	}

	s.remove(sentinelKey)

	return true
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *Store) write(key, blob string) {
	if err := os.WriteFile(s.path(key), []byte(blob), 0o600); err != nil {
		// keep the live session usable even when disk is not
		telemetry.StorageFallbacks.Inc()
		logger.ErrorErr(err, "session write failed, keeping value in memory only", "key", key)
		s.mem[key] = blob
		return
	}

	delete(s.mem, key)
}

func (s *Store) read(key string) (string, bool) {
	raw, err := os.ReadFile(s.path(key))
	if err == nil {
		return string(raw), true
	}

	if blob, ok := s.mem[key]; ok {
		return blob, true
	}

	if !os.IsNotExist(err) {
		logger.ErrorErr(err, "session read failed", "key", key)
	}

	return "", false
}

func (s *Store) remove(key string) {
	delete(s.mem, key)

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		logger.ErrorErr(err, "session remove failed", "key", key)
	}
}

// reports whether a bearer token carries an exp claim in the past. The
// signature is not checked here, the server remains the authority; this
// only avoids booting into a session the gateway will reject anyway.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// opaque non-JWT tokens are fine, expiry is then the server's call
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Before(time.Now())
}
