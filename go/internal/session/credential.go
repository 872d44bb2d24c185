package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryMargin is how much validity a token must still have to be used as is.
// It absorbs the latency of the request that will carry the token.
const ExpiryMargin = 5 * time.Second

// Credential is an access/refresh token pair plus the claims read from the
// access token.
//
// Claims are decoded WITHOUT verifying the signature. The game server and the
// auth service re-validate every token they receive; the client only needs
// the expiry to decide when to refresh, so nothing here is trusted for
// authorization.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Subject      string
	// ExpiresAt is nil when the access token could not be parsed or has no exp.
	ExpiresAt *time.Time
}

// ParseCredential builds a Credential from a raw token pair.
func ParseCredential(accessToken, refreshToken string) *Credential {
	cred := &Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return cred
	}

	cred.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		cred.ExpiresAt = &exp
	}
	return cred
}

// Expired reports whether the access token has less than margin of validity
// left at now. A credential without a known expiry is always expired.
func (c *Credential) Expired(now time.Time, margin time.Duration) bool {
	if c == nil || c.ExpiresAt == nil {
		return true
	}
	return !now.Add(margin).Before(*c.ExpiresAt)
}

// HasRefreshToken reports whether a refresh exchange can be attempted.
func (c *Credential) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

func (c *Credential) pair() StoredPair {
	return StoredPair{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken}
}
