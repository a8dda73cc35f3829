// internal/signer/authenticator.go
package signer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Request signing headers
const (
	HeaderSignature = "X-Solunex-Signature"
	HeaderTimestamp = "X-Solunex-Timestamp"
	HeaderNonce     = "X-Solunex-Nonce"
)

var (
	ErrNotConfigured        = errors.New("hmac secret not configured")
	ErrMissingHeaders       = errors.New("missing signature headers")
	ErrInvalidTimestamp     = errors.New("invalid timestamp")
	ErrTimestampOutOfWindow = errors.New("timestamp outside allowed window")
	ErrReplayedNonce        = errors.New("nonce already used")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Authenticator is the single gate protected endpoints call. It runs
// the checks in a fixed order: headers, timestamp parse, window,
// nonce reservation, signature.
type Authenticator struct {
	secret    string
	tolerance time.Duration
	nonceTTL  time.Duration
	nonces    NonceStore
	now       func() time.Time
}

func NewAuthenticator(secret string, tolerance, nonceTTL time.Duration, nonces NonceStore) *Authenticator {
	return &Authenticator{
		secret:    secret,
		tolerance: tolerance,
		nonceTTL:  nonceTTL,
		nonces:    nonces,
		now:       time.Now,
	}
}

// Authenticate verifies one signed request. path and rawQuery are the
// un-normalized URL parts; body is the raw request body.
func (a *Authenticator) Authenticate(ctx context.Context, headers http.Header, method, path, rawQuery string, body []byte) error {
	if a.secret == "" {
		return ErrNotConfigured
	}

	sig := headers.Get(HeaderSignature)
	ts := headers.Get(HeaderTimestamp)
	nonce := headers.Get(HeaderNonce)

	if sig == "" || ts == "" || nonce == "" {
		return ErrMissingHeaders
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	now := a.now().Unix()
	skew := now - tsInt
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > a.tolerance {
		return ErrTimestampOutOfWindow
	}

	// Reserve the nonce before the signature check so a replayed
	// request is rejected even when its signature is valid.
	reserved, err := a.nonces.Reserve(ctx, nonce, a.nonceTTL)
	if err != nil {
		// Fail closed: without a reservation there is no replay
		// protection for this request.
		return fmt.Errorf("nonce reservation failed: %w", err)
	}
	if !reserved {
		return ErrReplayedNonce
	}

	canonicalBody := CanonicalBody(body)
	canonicalPath := CanonicalPath(path, rawQuery)

	if !Verify(a.secret, sig, ts, nonce, method, canonicalPath, canonicalBody) {
		return ErrInvalidSignature
	}

	return nil
}
