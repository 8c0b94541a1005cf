package authn

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
)

// jwk is a single entry of a JSON Web Key Set.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDoc struct {
	Keys []jwk `json:"keys"`
}

// keySet holds the process-global, read-mostly cache of signing keys.
// It refreshes itself under a single-flight guard so concurrent
// verifications after the first fetch never block on network I/O.
type keySet struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey

	refreshMu   sync.Mutex
	refreshedAt time.Time
}

func newKeySet(url string, log zerolog.Logger) *keySet {
	return &keySet{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log.With().Str("component", "authn.jwks").Logger(),
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// Get returns the public key for kid, fetching (or refreshing) the
// key set at most once concurrently if kid is unknown.
func (k *keySet) Get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	key, ok := k.keys[kid]
	k.mu.RUnlock()

	if ok {
		return key, nil
	}

	if err := k.refresh(ctx); err != nil {
		return nil, err
	}

	k.mu.RLock()
	key, ok = k.keys[kid]
	k.mu.RUnlock()

	if !ok {
		return nil, apperr.New(apperr.Unauthenticated, "unknown signing key")
	}

	return key, nil
}

// refresh fetches the JWKS document. The refreshMu single-flights
// concurrent refreshes so a thundering herd of unknown-kid lookups
// triggers exactly one HTTP fetch.
func (k *keySet) refresh(ctx context.Context) error {
	k.refreshMu.Lock()
	defer k.refreshMu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if time.Since(k.refreshedAt) < time.Second {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "build jwks request", err)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "fetch jwks", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.Transient, "jwks endpoint returned non-200")
	}

	var doc jwksDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return apperr.Wrap(apperr.Transient, "decode jwks", err)
	}

	parsed := make(map[string]*rsa.PublicKey, len(doc.Keys))

	for _, key := range doc.Keys {
		if key.Kty != "RSA" {
			continue
		}

		pub, err := parseRSAKey(key)
		if err != nil {
			k.log.Warn().Err(err).Str("kid", key.Kid).Msg("skipping unparseable jwks entry")
			continue
		}

		parsed[key.Kid] = pub
	}

	k.mu.Lock()
	k.keys = parsed
	k.mu.Unlock()

	k.refreshedAt = time.Now()

	return nil
}

func parseRSAKey(key jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, err
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, err
	}

	e := new(big.Int).SetBytes(eBytes)
	n := new(big.Int).SetBytes(nBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
