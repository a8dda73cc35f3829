// internal/signer/signer.go
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// CanonicalBody produces the byte-exact signing input for a request
// body. JSON bodies are re-serialized with sorted keys and no
// insignificant whitespace so sender and verifier agree regardless of
// formatting; anything else is used as trimmed raw text.
func CanonicalBody(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}

	var obj interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return text
	}

	// encoding/json sorts map keys and emits compact output.
	canonical, err := json.Marshal(obj)
	if err != nil {
		return text
	}
	return string(canonical)
}

// CanonicalPath strips the trailing slash (root stays "/") and appends
// the query string unmodified when present.
func CanonicalPath(path, rawQuery string) string {
	p := strings.TrimRight(path, "/")
	if p == "" {
		p = "/"
	}
	if rawQuery != "" {
		p = p + "?" + rawQuery
	}
	return p
}

// Sign computes the request signature: lowercase hex HMAC-SHA256 over
// "timestamp:nonce:METHOD:path:body".
func Sign(secret, timestamp, nonce, method, path, body string) string {
	base := timestamp + ":" + nonce + ":" + strings.ToUpper(method) + ":" + path + ":" + body
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time.
// Supplied signatures are accepted case-insensitively.
func Verify(secret, signature, timestamp, nonce, method, path, body string) bool {
	expected := Sign(secret, timestamp, nonce, method, path, body)
	supplied := strings.ToLower(signature)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
