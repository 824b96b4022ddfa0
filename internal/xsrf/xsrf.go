// Package xsrf implements the handshake token bots must echo back on
// /bot/poll and /bot/task_update: an HMAC over (bot_id, issued_ts) signed
// with a process-lifetime key, standing in for the one piece of
// authenticated-identity plumbing the core depends on (spec.md §1).
package xsrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrStale is returned when a token's issued_ts is older than MaxAge.
var ErrStale = errors.New("xsrf token expired")

// ErrMalformed is returned when a token cannot be parsed or its signature
// does not match.
var ErrMalformed = errors.New("xsrf token malformed or signature mismatch")

// MaxAge is how long a handshake token remains valid.
const MaxAge = time.Hour

// Signer issues and verifies handshake tokens for a single process
// lifetime. Restarting the server invalidates every outstanding token,
// which simply forces a fresh handshake.
type Signer struct {
	key [32]byte
}

// NewSigner generates a fresh random signing key.
func NewSigner() (*Signer, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generating xsrf key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Issue returns a token binding botID to the current time.
func (s *Signer) Issue(botID string) string {
	return s.sign(botID, time.Now())
}

// Verify checks that token was issued by this Signer for botID and is not
// older than MaxAge.
func (s *Signer) Verify(botID, token string) error {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return ErrMalformed
	}
	issuedUnix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrMalformed
	}
	issuedTs := time.Unix(issuedUnix, 0)

	expected := s.sign(botID, issuedTs)
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrMalformed
	}
	if time.Since(issuedTs) > MaxAge {
		return ErrStale
	}
	return nil
}

func (s *Signer) sign(botID string, issuedTs time.Time) string {
	issued := strconv.FormatInt(issuedTs.Unix(), 10)
	mac := hmac.New(sha256.New, s.key[:])
	mac.Write([]byte(botID))
	mac.Write([]byte{0})
	mac.Write([]byte(issued))
	digest := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return issued + "." + digest
}
