package statetoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	nonceLen = 16
	tagLen   = sha256.Size // 32
	rawLen   = nonceLen + tagLen
)

// Guard produces and verifies the opaque anti-forgery token carried through
// the OAuth redirect handshake as the `state` parameter.
//
// A token is nonce(16) ‖ HMAC-SHA256(secret, nonce)(32), urlsafe-base64
// encoded. Validity depends solely on possession of the secret key; no
// server-side record of issued tokens is kept, so a captured token can be
// replayed until the key rotates. That trade-off is accepted here: the token
// defends against forged callbacks, not against replay.
type Guard struct {
	secret []byte
}

// New creates a Guard from the configured state secret.
func New(secret []byte) (*Guard, error) {
	if len(secret) == 0 {
		return nil, errors.New("statetoken: empty secret")
	}
	return &Guard{secret: secret}, nil
}

// Generate draws a fresh 16-byte nonce, signs it, and returns the encoded
// token. The token is not stored anywhere.
func (g *Guard) Generate() (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, g.secret)
	mac.Write(nonce)
	raw := mac.Sum(nonce) // nonce ‖ tag, 48 bytes

	return base64.URLEncoding.EncodeToString(raw), nil
}

// Verify reports whether the given state string was produced by Generate
// under the same secret. Malformed input (bad base64, wrong length) yields
// false, never an error or panic.
func (g *Guard) Verify(token string) bool {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return false
	}
	if len(raw) != rawLen {
		return false
	}

	nonce := raw[:nonceLen]
	tag := raw[nonceLen:]

	mac := hmac.New(sha256.New, g.secret)
	mac.Write(nonce)
	expected := mac.Sum(nil)

	// hmac.Equal is constant-time; tag bytes must not leak via timing.
	return hmac.Equal(tag, expected)
}
