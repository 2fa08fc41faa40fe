package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Key format: th_{env}_{prefix}_{secret}
// Example: th_live_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	KeyPrefixLen = 6  // hex encoded 3 bytes, stored in clear for lookup
	KeySecretLen = 32 // hex encoded 16 bytes
)

// Environment indicators embedded in keys.
const (
	EnvLive = "live"
	EnvTest = "test"
)

// ErrInvalidKeyFormat indicates the presented key is not a tierhost key.
var ErrInvalidKeyFormat = errors.New("invalid API key format")

var keyPattern = regexp.MustCompile(`^th_(live|test)_([a-f0-9]{6})_([a-f0-9]{32})$`)

// IssuedKey is a freshly minted API key.
type IssuedKey struct {
	Plaintext string // shown once, never stored
	Hash      string
	Prefix    string
}

// IssueAPIKey mints a new API key for the given environment.
// Anything other than EnvTest is treated as EnvLive.
func IssueAPIKey(env string) (*IssuedKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	prefix, err := randomHex(KeyPrefixLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(KeySecretLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := fmt.Sprintf("th_%s_%s_%s", env, prefix, secret)
	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &IssuedKey{Plaintext: plaintext, Hash: hash, Prefix: prefix}, nil
}

// KeyPrefix extracts the lookup prefix from a plaintext key.
func KeyPrefix(key string) (string, error) {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", ErrInvalidKeyFormat
	}
	return m[2], nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
