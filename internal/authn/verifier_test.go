package authn_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/server/internal/apperr"
	"github.com/collabhub/server/internal/authn"
)

const testKid = "test-key-1"

// jwksServer serves a one-key JWKS document derived from key and mints
// tokens signed by the matching private key, so a test never needs a
// real identity provider.
type jwksServer struct {
	*httptest.Server
	priv *rsa.PrivateKey
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	doc := map[string]any{
		"keys": []map[string]string{{
			"kid": testKid,
			"kty": "RSA",
			"n":   base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big64(priv.PublicKey.E)),
		}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(doc)
	}))

	t.Cleanup(srv.Close)

	return &jwksServer{Server: srv, priv: priv}
}

func big64(e int) []byte {
	return []byte{byte(e >> 16), byte(e >> 8), byte(e)}
}

func (j *jwksServer) sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid

	raw, err := token.SignedString(j.priv)
	require.NoError(t, err)

	return raw
}

type stdClaims struct {
	jwt.StandardClaims
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func TestVerify_AcceptsValidTokenAndExtractsClaims(t *testing.T) {
	t.Parallel()

	jwks := newJWKSServer(t)
	v := authn.New(authn.Config{JWKSURL: jwks.URL}, zerolog.Nop())

	token := jwks.sign(t, stdClaims{
		StandardClaims: jwt.StandardClaims{Subject: "user-1", ExpiresAt: time.Now().Add(time.Hour).Unix()},
		Email:          "ada@example.com",
		Name:           "Ada",
		Picture:        "https://example.com/ada.png",
	})

	claims, err := v.Verify(t.Context(), token)
	require.NoError(t, err)

	if claims.Subject != "user-1" || claims.Email != "ada@example.com" || claims.Name != "Ada" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestVerify_RejectsEmptyToken(t *testing.T) {
	t.Parallel()

	v := authn.New(authn.Config{}, zerolog.Nop())

	_, err := v.Verify(t.Context(), "")
	if !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected Unauthenticated for an empty token, got %v", err)
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	jwks := newJWKSServer(t)
	v := authn.New(authn.Config{JWKSURL: jwks.URL}, zerolog.Nop())

	token := jwks.sign(t, stdClaims{
		StandardClaims: jwt.StandardClaims{Subject: "user-1", ExpiresAt: time.Now().Add(-time.Hour).Unix()},
	})

	_, err := v.Verify(t.Context(), token)
	if !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected Unauthenticated for an expired token, got %v", err)
	}
}

func TestVerify_RejectsUnexpectedIssuer(t *testing.T) {
	t.Parallel()

	jwks := newJWKSServer(t)
	v := authn.New(authn.Config{JWKSURL: jwks.URL, Issuer: "https://issuer.example.com"}, zerolog.Nop())

	token := jwks.sign(t, stdClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   "user-1",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
			Issuer:    "https://someone-else.example.com",
		},
	})

	_, err := v.Verify(t.Context(), token)
	if !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected Unauthenticated for a mismatched issuer, got %v", err)
	}
}

func TestVerify_RejectsUnknownSigningKey(t *testing.T) {
	t.Parallel()

	jwks := newJWKSServer(t)
	v := authn.New(authn.Config{JWKSURL: jwks.URL}, zerolog.Nop())

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, stdClaims{
		StandardClaims: jwt.StandardClaims{Subject: "user-1", ExpiresAt: time.Now().Add(time.Hour).Unix()},
	})
	token.Header["kid"] = "not-in-the-set"

	raw, err := token.SignedString(other)
	require.NoError(t, err)

	_, err = v.Verify(t.Context(), raw)
	if !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected Unauthenticated for a token signed by an unlisted key, got %v", err)
	}
}
