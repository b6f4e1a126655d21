// Package persist bridges the sealed storage layer into a generic
// string-keyed persisted-state surface (getItem/setItem/removeItem).
// Writes are throttled: state changes landing inside one window collapse
// into a single disk write, last value wins, and the final value is
// still flushed on shutdown.
package persist

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/algorave/passage/internal/logger"
	"codeberg.org/algorave/passage/internal/sealbox"
)

// persists envelope strings with write coalescing. Reads always observe
// the latest value, including one still waiting in the throttle window.
type Adapter struct {
	mu       sync.Mutex
	dir      string
	codec    *sealbox.Codec
	throttle time.Duration

	// latest unwritten value per key; nil marks a pending removal
	pending map[string]*string
	timer   *time.Timer
	closed  bool
}

// creates an adapter writing under dir, coalescing writes per throttle
func New(dir string, codec *sealbox.Codec, throttle time.Duration) *Adapter {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		logger.ErrorErr(err, "failed to create persist directory", "dir", dir)
	}

	return &Adapter{
		dir:      dir,
		codec:    codec,
		throttle: throttle,
		pending:  make(map[string]*string),
	}
}

// returns the stored value for key, or false when absent or unreadable
func (a *Adapter) GetItem(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v, ok := a.pending[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	raw, err := os.ReadFile(a.path(key))
	if err != nil {
		return "", false
	}

	var value string
	if !a.codec.Decrypt(string(raw), &value) {
		return "", false
	}

	return value, true
}

// records the latest value for key; the disk write happens when the
// throttle window closes
func (a *Adapter) SetItem(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending[key] = &value
	a.arm()
}

// records a removal for key, coalesced like any other write
func (a *Adapter) RemoveItem(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending[key] = nil
	a.arm()
}

// writes every pending value immediately. Called on logout and before
// process teardown, so no change inside the throttle window is lost.
func (a *Adapter) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.flushLocked()
}

// flushes and stops accepting writes
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.flushLocked()
	a.closed = true
}

// caller must hold a.mu
func (a *Adapter) arm() {
	if a.closed || a.timer != nil {
		return
	}

	a.timer = time.AfterFunc(a.throttle, a.Flush)
}

// caller must hold a.mu
func (a *Adapter) flushLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}

	for key, value := range a.pending {
		if value == nil {
			if err := os.Remove(a.path(key)); err != nil && !os.IsNotExist(err) {
				logger.ErrorErr(err, "failed to remove persisted state", "key", key)
			}
			continue
		}

		if err := os.WriteFile(a.path(key), []byte(a.codec.Encrypt(*value)), 0o600); err != nil {
			logger.ErrorErr(err, "failed to write persisted state", "key", key)
		}
	}

	a.pending = make(map[string]*string)
}

// keys are caller-defined and may contain separators, so the filename is
// a hex rendering rather than the raw key
func (a *Adapter) path(key string) string {
	return filepath.Join(a.dir, "state_"+hex.EncodeToString([]byte(key)))
}
