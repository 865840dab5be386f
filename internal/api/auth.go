package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/pallavi191/codecraft-sub001/internal/errors"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   string
	Username string
}

// Authenticator validates a bearer token. The platform's real identity
// service sits behind this interface; the reference server ships an HMAC
// implementation.
type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

// HMACAuthenticator issues and verifies self-contained signed tokens:
// base64(userID:username) + "." + base64(hmac-sha256).
type HMACAuthenticator struct {
	secret []byte
}

func NewHMACAuthenticator(secret string) *HMACAuthenticator {
	return &HMACAuthenticator{secret: []byte(secret)}
}

// IssueToken builds a token for id. Used by tests and the demo login.
func (a *HMACAuthenticator) IssueToken(id Identity) string {
	payload := id.UserID + ":" + id.Username
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + a.sign(payload)
}

func (a *HMACAuthenticator) Authenticate(token string) (Identity, error) {
	enc, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Identity{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("malformed token"))
	}

	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return Identity{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("malformed token"), errors.WithCause(err))
	}

	payload := string(raw)
	if !hmac.Equal([]byte(sig), []byte(a.sign(payload))) {
		return Identity{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token signature"))
	}

	userID, username, ok := strings.Cut(payload, ":")
	if !ok || userID == "" || username == "" {
		return Identity{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("malformed token payload"))
	}

	return Identity{UserID: userID, Username: username}, nil
}

func (a *HMACAuthenticator) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
