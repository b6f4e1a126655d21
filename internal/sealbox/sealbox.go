// Package sealbox encrypts JSON-serializable values into opaque strings
// for at-rest storage. The key is derived from stable device signals, not
// a user secret: this protects the stored session from casual inspection
// of the state directory, not from an attacker who can run code on the
// same machine. That boundary is deliberate and should not be oversold.
package sealbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"codeberg.org/algorave/passage/internal/logger"
	"codeberg.org/algorave/passage/internal/telemetry"
)

// scheme tag prefixed to every sealed blob; its absence marks a legacy
// plaintext value that must still be readable
const schemeTag = "sealed:v1:"

// fixed application salt mixed into key derivation
const keySalt = "passage.device.session.v1"

const (
	keyLen       = 32
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// seals and opens values with a per-device key
type Codec struct {
	aead cipher.AEAD
}

// builds a codec with a key derived from device signals. If key setup
// fails the codec still works, permanently degraded to plaintext writes.
func New() *Codec {
	c := &Codec{}

	key := DeriveKey()

	block, err := aes.NewCipher(key)
	if err != nil {
		logger.ErrorErr(err, "sealbox cipher setup failed, storage will not be encrypted")
		return c
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		logger.ErrorErr(err, "sealbox aead setup failed, storage will not be encrypted")
		return c
	}

	c.aead = aead

	return c
}

// builds a codec from an explicit key, used by tests and diagnostics
func NewWithKey(key []byte) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init aead: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// derives a stable per-device key from browser-fingerprint-equivalent
// signals: hostname, OS account, platform, locale, and timezone offset.
// Deterministic for the same device, requires no user secret.
func DeriveKey() []byte {
	signals := []string{keySalt}

	if host, err := os.Hostname(); err == nil {
		signals = append(signals, host)
	}

	if u, err := user.Current(); err == nil {
		signals = append(signals, u.Uid, u.Username)
	}

	signals = append(signals, runtime.GOOS+"/"+runtime.GOARCH)

	if lang := os.Getenv("LANG"); lang != "" {
		signals = append(signals, lang)
	}

	_, offset := time.Now().Zone()
	signals = append(signals, fmt.Sprintf("tz:%d", offset))

	fingerprint := strings.Join(signals, "|")

	return argon2.IDKey([]byte(fingerprint), []byte(keySalt), argonTime, argonMemory, argonThreads, keyLen)
}

// serializes and seals a value into a tagged opaque string. Never fails
// outward: if sealing is impossible the plain serialized form is returned
// so the write still happens, and the degradation is counted and logged.
func (c *Codec) Encrypt(v any) string {
	plaintext, err := json.Marshal(v)
	if err != nil {
		// a non-serializable value is a programming error; store nothing useful
		logger.ErrorErr(err, "sealbox failed to serialize value")
		return ""
	}

	if c.aead == nil {
		telemetry.CryptoFallbacks.Inc()
		logger.Warn("sealbox writing unencrypted value, no cipher available")
		return string(plaintext)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		telemetry.CryptoFallbacks.Inc()
		logger.ErrorErr(err, "sealbox writing unencrypted value, nonce generation failed")
		return string(plaintext)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)

	return schemeTag + base64.StdEncoding.EncodeToString(sealed)
}

// opens a stored blob into v. Tagged blobs are decrypted and parsed;
// untagged blobs are parsed as legacy plaintext JSON. Returns false on
// any failure: empty input, tampered ciphertext, wrong key, bad JSON.
// Callers must treat false as "no value", never retry.
func (c *Codec) Decrypt(blob string, v any) bool {
	plaintext, ok := c.open(blob)
	if !ok {
		return false
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		telemetry.DecryptFailures.Inc()
		logger.Warn("sealbox discarding stored value, invalid JSON after decrypt")
		return false
	}

	return true
}

// reports whether the codec has a working cipher. False means every
// write is taking the plaintext fallback path.
func (c *Codec) Sealed() bool {
	return c.aead != nil
}

func (c *Codec) open(blob string) ([]byte, bool) {
	if blob == "" {
		return nil, false
	}

	if !strings.HasPrefix(blob, schemeTag) {
		// legacy plaintext value, re-encrypted on next write
		return []byte(blob), true
	}

	if c.aead == nil {
		telemetry.DecryptFailures.Inc()
		return nil, false
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, schemeTag))
	if err != nil {
		telemetry.DecryptFailures.Inc()
		logger.Warn("sealbox discarding stored value, invalid encoding")
		return nil, false
	}

	if len(sealed) < c.aead.NonceSize() {
		telemetry.DecryptFailures.Inc()
		return nil, false
	}

	nonce := sealed[:c.aead.NonceSize()]
	ciphertext := sealed[c.aead.NonceSize():]

	// GCM authenticates the ciphertext, so tampering fails here instead
	// of producing garbage that might parse
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		telemetry.DecryptFailures.Inc()
		logger.Warn("sealbox discarding stored value, authentication failed")
		return nil, false
	}

	return plaintext, true
}
