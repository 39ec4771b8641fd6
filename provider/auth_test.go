package provider

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/earnly-app/earnly/config"
	"github.com/earnly-app/earnly/model"
)

func mockProviderConfig(t *testing.T, environment string, providers config.ProvidersConfig) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		ProjectName: "Earnly Test",
		Environment: environment,
		Providers:   providers,
	})
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyKiwiwallKeyedHash(t *testing.T) {
	mockProviderConfig(t, "production", config.ProvidersConfig{
		Kiwiwall: config.ProviderConfig{Secret: "kw-secret"},
	})

	raw := map[string]string{
		"sub_id":    "u1",
		"amount":    "100",
		"trans_id":  "t1",
		"signature": md5hex("u1:100:kw-secret"),
	}
	assert.True(t, Verify(model.ProviderKiwiwall, raw))

	raw["signature"] = md5hex("u1:999:kw-secret")
	assert.False(t, Verify(model.ProviderKiwiwall, raw))

	delete(raw, "signature")
	assert.False(t, Verify(model.ProviderKiwiwall, raw))
}

func TestVerifyCPXResearchUserKeyedHash(t *testing.T) {
	mockProviderConfig(t, "production", config.ProvidersConfig{
		CPXResearch: config.ProviderConfig{Secret: "cpx-secret"},
	})

	raw := map[string]string{
		"user_id":     "u42",
		"amount":      "10",
		"trans_id":    "t1",
		"secure_hash": md5hex("u42-cpx-secret"),
	}
	assert.True(t, Verify(model.ProviderCPXResearch, raw))

	raw["secure_hash"] = md5hex("someone-else-cpx-secret")
	assert.False(t, Verify(model.ProviderCPXResearch, raw))
}

func TestVerifyHMACSortedQuery(t *testing.T) {
	mockProviderConfig(t, "production", config.ProvidersConfig{
		BitLabs: config.ProviderConfig{Secret: "bl-secret"},
	})

	raw := map[string]string{
		"uid": "u1",
		"val": "55",
		"tx":  "t7",
	}
	raw["hash"] = hmacHex("bl-secret", CanonicalQueryString(raw))
	assert.True(t, Verify(model.ProviderBitLabs, raw))

	raw["hash"] = "deadbeef"
	assert.False(t, Verify(model.ProviderBitLabs, raw))
}

func TestVerifyHMACObserveOnly(t *testing.T) {
	mockProviderConfig(t, "production", config.ProvidersConfig{
		BitLabs: config.ProviderConfig{Secret: "bl-secret", ObserveOnly: true},
	})

	raw := map[string]string{
		"uid":  "u1",
		"val":  "55",
		"tx":   "t7",
		"hash": "not-the-right-hash",
	}
	// Mismatch is logged but accepted while the integration soft-launches.
	assert.True(t, Verify(model.ProviderBitLabs, raw))

	// A missing signature field still rejects, observe-only or not.
	delete(raw, "hash")
	assert.False(t, Verify(model.ProviderBitLabs, raw))
}

func TestVerifyPresenceOnly(t *testing.T) {
	mockProviderConfig(t, "production", config.ProvidersConfig{})

	assert.True(t, Verify(model.ProviderAdGem, map[string]string{
		"player_id": "u1",
		"amount":    "10",
		"signature": "anything",
	}))
	assert.False(t, Verify(model.ProviderAdGem, map[string]string{
		"player_id": "u1",
		"amount":    "10",
	}))
}

func TestVerifyUnknownProviderClosedWithoutSignature(t *testing.T) {
	mockProviderConfig(t, "production", config.ProvidersConfig{})

	assert.False(t, Verify(model.ProviderOther, map[string]string{"user_id": "u1"}))
	assert.True(t, Verify(model.ProviderOther, map[string]string{"user_id": "u1", "sig": "x"}))
}

func TestVerifyMissingSecretFailModes(t *testing.T) {
	raw := map[string]string{
		"sub_id":    "u1",
		"amount":    "100",
		"signature": "whatever",
	}

	// No secret configured: development fails open.
	mockProviderConfig(t, "development", config.ProvidersConfig{})
	assert.True(t, Verify(model.ProviderKiwiwall, raw))

	// Production fails closed.
	mockProviderConfig(t, "production", config.ProvidersConfig{})
	assert.False(t, Verify(model.ProviderKiwiwall, raw))
}

func TestVerifyNilPayload(t *testing.T) {
	mockProviderConfig(t, "production", config.ProvidersConfig{})
	assert.False(t, Verify(model.ProviderKiwiwall, nil))
}

func TestCanonicalQueryString(t *testing.T) {
	raw := map[string]string{
		"b":         "2",
		"a":         "1",
		"hash":      "excluded",
		"signature": "excluded",
		"provider":  "excluded",
		"c":         "3",
	}
	assert.Equal(t, "a=1&b=2&c=3", CanonicalQueryString(raw))
}
