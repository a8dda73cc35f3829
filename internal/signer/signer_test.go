// internal/signer/signer_test.go
package signer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalBody(t *testing.T) {
	t.Run("EmptyBody", func(t *testing.T) {
		assert.Equal(t, "", CanonicalBody(nil))
		assert.Equal(t, "", CanonicalBody([]byte("   \n\t ")))
	})

	t.Run("JSONKeyOrderIrrelevant", func(t *testing.T) {
		a := CanonicalBody([]byte(`{"b": 2, "a": 1}`))
		b := CanonicalBody([]byte(`{"a":1,"b":2}`))
		assert.Equal(t, a, b)
		assert.Equal(t, `{"a":1,"b":2}`, a)
	})

	t.Run("JSONWhitespaceIrrelevant", func(t *testing.T) {
		a := CanonicalBody([]byte("{\n  \"key\": \"value\"\n}"))
		b := CanonicalBody([]byte(`{"key":"value"}`))
		assert.Equal(t, b, a)
	})

	t.Run("NestedObjectsSorted", func(t *testing.T) {
		got := CanonicalBody([]byte(`{"outer": {"z": 1, "a": 2}}`))
		assert.Equal(t, `{"outer":{"a":2,"z":1}}`, got)
	})

	t.Run("NonJSONUsedAsTrimmedText", func(t *testing.T) {
		assert.Equal(t, "plain text", CanonicalBody([]byte("  plain text  ")))
	})
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		rawQuery string
		want     string
	}{
		{"Plain", "/api/v1/license/validate", "", "/api/v1/license/validate"},
		{"TrailingSlashStripped", "/api/v1/license/validate/", "", "/api/v1/license/validate"},
		{"RootStaysRoot", "/", "", "/"},
		{"QueryAppended", "/api/admin/licenses", "page=2&limit=50", "/api/admin/licenses?page=2&limit=50"},
		{"TrailingSlashWithQuery", "/api/admin/licenses/", "status=active", "/api/admin/licenses?status=active"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalPath(tt.path, tt.rawQuery))
		})
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := "test-secret"
	sig := Sign(secret, "1700000000", "nonce-1", "POST", "/api/v1/license/validate", `{"license_key":"SOL-AAAA-BBBB-CCCC-12"}`)

	assert.Len(t, sig, 64)
	assert.Equal(t, sig, strings.ToLower(sig))

	assert.True(t, Verify(secret, sig, "1700000000", "nonce-1", "POST", "/api/v1/license/validate", `{"license_key":"SOL-AAAA-BBBB-CCCC-12"}`))
}

func TestVerifyRejectsAnyMutation(t *testing.T) {
	secret := "test-secret"
	ts, nonce, method, path, body := "1700000000", "nonce-1", "POST", "/path", "body"
	sig := Sign(secret, ts, nonce, method, path, body)

	assert.False(t, Verify(secret, sig, "1700000001", nonce, method, path, body), "timestamp change")
	assert.False(t, Verify(secret, sig, ts, "nonce-2", method, path, body), "nonce change")
	assert.False(t, Verify(secret, sig, ts, nonce, "GET", path, body), "method change")
	assert.False(t, Verify(secret, sig, ts, nonce, method, "/other", body), "path change")
	assert.False(t, Verify(secret, sig, ts, nonce, method, path, "body2"), "body change")
	assert.False(t, Verify("other-secret", sig, ts, nonce, method, path, body), "secret change")

	// Single byte flipped in the signature itself
	mutated := []byte(sig)
	if mutated[0] == 'a' {
		mutated[0] = 'b'
	} else {
		mutated[0] = 'a'
	}
	assert.False(t, Verify(secret, string(mutated), ts, nonce, method, path, body))
}

func TestVerifySignatureCaseInsensitive(t *testing.T) {
	secret := "test-secret"
	sig := Sign(secret, "1700000000", "n", "GET", "/", "")
	assert.True(t, Verify(secret, strings.ToUpper(sig), "1700000000", "n", "GET", "/", ""))
}

func TestMethodCaseNormalized(t *testing.T) {
	secret := "test-secret"
	assert.Equal(t,
		Sign(secret, "1", "n", "post", "/p", ""),
		Sign(secret, "1", "n", "POST", "/p", ""))
}
