// internal/utils/keygen.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

const keyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateLicenseKey produces a human-readable key such as
// SOL-AB12-CD34-EF56-GH78-9F: rawLength random characters split into
// dash-separated blocks of blockSize, followed by a 2-character
// checksum of the raw string. The checksum is deterministic (catches
// transcription errors); the raw string is crypto-random. Collisions
// are possible and are the caller's job to detect and retry.
func GenerateLicenseKey(prefix string, rawLength, blockSize int) (string, error) {
	raw, err := randomCode(rawLength)
	if err != nil {
		return "", err
	}

	var blocks []string
	for i := 0; i < len(raw); i += blockSize {
		end := i + blockSize
		if end > len(raw) {
			end = len(raw)
		}
		blocks = append(blocks, raw[i:end])
	}

	return prefix + "-" + strings.Join(blocks, "-") + "-" + KeyChecksum(raw), nil
}

// KeyChecksum returns the 2-character uppercase checksum for a raw
// (pre-block-split) key body.
func KeyChecksum(raw string) string {
	digest := sha256.Sum256([]byte(raw))
	return strings.ToUpper(hex.EncodeToString(digest[:])[:2])
}

func randomCode(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyCharset))))
		if err != nil {
			return "", err
		}
		b[i] = keyCharset[n.Int64()]
	}
	return string(b), nil
}
