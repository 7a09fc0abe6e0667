package crypto

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey(APIKeyEnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	if !strings.HasPrefix(key.PlaintextKey, "altus4_sk_live_") {
		t.Errorf("PlaintextKey = %q, want altus4_sk_live_ prefix", key.PlaintextKey)
	}
	if !strings.HasPrefix(key.KeyPrefix, "altus4_sk_live_") {
		t.Errorf("KeyPrefix = %q, want altus4_sk_live_ prefix", key.KeyPrefix)
	}
	if len(key.KeyPrefix) >= len(key.PlaintextKey) {
		t.Error("KeyPrefix should be shorter than the full plaintext key")
	}
	if key.KeyHash != HashAPIKey(key.PlaintextKey) {
		t.Error("KeyHash does not match HashAPIKey(PlaintextKey)")
	}
}

func TestGenerateAPIKeyUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateAPIKey(APIKeyEnvTest)
		if err != nil {
			t.Fatalf("GenerateAPIKey() error = %v", err)
		}
		if seen[key.PlaintextKey] {
			t.Fatal("GenerateAPIKey() produced a duplicate key")
		}
		seen[key.PlaintextKey] = true
	}
}

func TestVerifyAPIKey(t *testing.T) {
	key, _ := GenerateAPIKey(APIKeyEnvLive)

	if !VerifyAPIKey(key.PlaintextKey, key.KeyHash) {
		t.Error("VerifyAPIKey() should succeed for matching key/hash")
	}
	if VerifyAPIKey("altus4_sk_live_wrong", key.KeyHash) {
		t.Error("VerifyAPIKey() should fail for mismatched key")
	}
}
