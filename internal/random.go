package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const deviceTokenRawSize = 32

var errInvalidDeviceToken = errors.New("invalid device token")

// NewChallengeID returns a random identifier for a second-factor challenge.
func NewChallengeID() string {
	return uuid.New().String()
}

// ValidChallengeID reports whether id has the shape produced by NewChallengeID.
func ValidChallengeID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// NewDeviceToken returns an opaque base64url device token and the hash that
// is stored in its place.
func NewDeviceToken() (string, [32]byte, error) {
	var raw [deviceTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", [32]byte{}, err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), sha256.Sum256(raw[:]), nil
}

// HashDeviceToken decodes a presented device token and returns its storage
// hash. Tokens of the wrong shape are rejected without hashing.
func HashDeviceToken(token string) ([32]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != deviceTokenRawSize {
		return [32]byte{}, errInvalidDeviceToken
	}
	return sha256.Sum256(raw), nil
}

// HashFingerprint reduces a client-supplied device fingerprint to a fixed
// size value that can be stored without retaining the raw input.
func HashFingerprint(v string) [32]byte {
	if v == "" {
		return [32]byte{}
	}
	return sha256.Sum256([]byte(v))
}
