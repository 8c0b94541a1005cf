// Package authn implements the Auth Verifier (spec §4.1): bearer
// token verification against a remote JWKS endpoint, with claims
// extraction and asynchronous key refresh.
package authn

import (
	"context"
	"fmt"

	"github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
)

// Claims is the identity extracted from a verified token.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Avatar  string
}

// Verifier validates bearer tokens against a configured JWKS
// endpoint, issuer, and audience.
type Verifier struct {
	keys     *keySet
	issuer   string
	audience string
	log      zerolog.Logger
}

// Config configures a Verifier. Issuer/Audience are optional: an
// empty value skips that check, matching spec §6's "(optional)"
// annotation on AUTH_ISSUER/AUTH_AUDIENCE.
type Config struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// New constructs a Verifier. It does not eagerly fetch the key set —
// the first verification triggers the initial fetch, and every
// verification after that is non-blocking against a warm cache.
func New(cfg Config, log zerolog.Logger) *Verifier {
	l := log.With().Str("component", "authn").Logger()
	return &Verifier{
		keys:     newKeySet(cfg.JWKSURL, l),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		log:      l,
	}
}

type tokenClaims struct {
	jwt.StandardClaims
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Verify validates signature, expiry, issuer, and audience, returning
// claims on success or AuthFailed (apperr.Unauthenticated) on failure.
// The failure reason never leaks cryptographic detail to the caller.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	if rawToken == "" {
		return Claims{}, apperr.New(apperr.Unauthenticated, "missing token")
	}

	var claims tokenClaims

	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}

		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token missing kid")
		}

		return v.keys.Get(ctx, kid)
	})
	if err != nil {
		v.log.Debug().Err(err).Msg("token verification failed")
		return Claims{}, apperr.Wrap(apperr.Unauthenticated, "token verification failed", err)
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return Claims{}, apperr.New(apperr.Unauthenticated, "unexpected issuer")
	}

	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return Claims{}, apperr.New(apperr.Unauthenticated, "unexpected audience")
	}

	return Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Avatar:  claims.Picture,
	}, nil
}
