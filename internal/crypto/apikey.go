package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// APIKeyEnvironment distinguishes live vs. test API keys, mirrored in the
// key's prefix the way Stripe-style secret keys do.
type APIKeyEnvironment string

const (
	APIKeyEnvLive APIKeyEnvironment = "live"
	APIKeyEnvTest APIKeyEnvironment = "test"
)

const apiKeySecretBytes = 24

// GeneratedAPIKey holds the plaintext secret (shown to the caller exactly
// once) alongside the values persisted in the metadata store.
type GeneratedAPIKey struct {
	// PlaintextKey is the full secret, e.g. "altus4_sk_live_<base64url>".
	// It is never stored.
	PlaintextKey string
	// KeyPrefix is the stable, non-secret portion used for lookup and
	// display (e.g. "altus4_sk_live_ab12cd34").
	KeyPrefix string
	// KeyHash is the SHA-256 hex digest of PlaintextKey, what gets stored.
	KeyHash string
}

// GenerateAPIKey creates a new random API key in the
// "altus4_sk_<env>_<secret>" format.
func GenerateAPIKey(env APIKeyEnvironment) (*GeneratedAPIKey, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate api key secret: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(secret)
	plaintext := fmt.Sprintf("altus4_sk_%s_%s", env, encoded)

	prefixLen := len(plaintext)
	if prefixLen > 23 {
		prefixLen = 23
	}

	return &GeneratedAPIKey{
		PlaintextKey: plaintext,
		KeyPrefix:    plaintext[:prefixLen],
		KeyHash:      HashAPIKey(plaintext),
	}, nil
}

// HashAPIKey returns the SHA-256 hex digest of an API key, the form stored
// in the metadata store and compared against on lookup.
func HashAPIKey(plaintextKey string) string {
	sum := sha256.Sum256([]byte(plaintextKey))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey reports whether plaintextKey hashes to storedHash, using a
// constant-time comparison to avoid timing side-channels.
func VerifyAPIKey(plaintextKey, storedHash string) bool {
	computed := HashAPIKey(plaintextKey)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
