package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Operator key format: tgk_{env}_{prefix}_{secret}
// Example: tgk_live_7a9f3c_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	OperatorKeyPrefix = "tgk_"

	KeyPrefixLen = 6  // hex of 3 random bytes, stored in clear for lookup
	KeySecretLen = 32 // hex of 16 random bytes
)

// Key environments.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var (
	// ErrInvalidKeyFormat indicates the presented key is not an operator key.
	ErrInvalidKeyFormat = errors.New("invalid operator key format")

	keyFormatRegex = regexp.MustCompile(`^tgk_(live|test)_([a-f0-9]{6})_([a-f0-9]{32})$`)
)

// GeneratedKey is a freshly minted operator key.
type GeneratedKey struct {
	Plaintext string // shown once
	Hash      string // argon2id, stored
	Prefix    string // stored in clear
}

// ParsedKey holds the components of a presented operator key.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

// GenerateOperatorKey mints a key for env. Unknown envs fall back to live.
func GenerateOperatorKey(env string) (*GeneratedKey, error) {
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

	plaintext := fmt.Sprintf("%s%s_%s_%s", OperatorKeyPrefix, env, prefix, secret)
	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{Plaintext: plaintext, Hash: hash, Prefix: prefix}, nil
}

// ParseOperatorKey splits a presented key into its components.
func ParseOperatorKey(key string) (*ParsedKey, error) {
	m := keyFormatRegex.FindStringSubmatch(key)
	if m == nil {
		return nil, ErrInvalidKeyFormat
	}
	return &ParsedKey{Env: m[1], Prefix: m[2], Secret: m[3]}, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
