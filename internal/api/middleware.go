/**
 * @description
 * This file contains the authentication middleware for the HTTP router. It
 * validates bearer JWTs and places the subject of a valid token into the
 * request context, where handlers read it as the owning user.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: token parsing and claim validation.
 * - golang.org/x/sync/singleflight: one JWKS refresh at a time.
 */

package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	detailNotAuthenticated = "Authentication credentials were not provided."
	detailInvalidToken     = "Given token not valid for any token type"

	defaultJWKSCacheTTL = 10 * time.Minute
	// jwksRefreshInterval bounds refetches triggered by an unknown kid.
	jwksRefreshInterval = 30 * time.Second
)

// ErrNoVerificationKey is returned when neither a JWKS URL nor a secret is configured.
var ErrNoVerificationKey = errors.New("no token verification key configured")

type userIDContextKey string

const userIDKey userIDContextKey = "userID"

// AuthConfig configures token verification.
type AuthConfig struct {
	JWKSURL  string
	Secret   string
	Audience string
	Issuer   string
	// JWKSCacheTTL defaults to ten minutes.
	JWKSCacheTTL time.Duration
	HTTPClient   *http.Client
}

// Authenticator validates bearer tokens signed either by a key from a JWKS
// endpoint (RS256/384/512) or by a shared HMAC secret (HS256).
type Authenticator struct {
	jwks    *jwksCache
	secret  []byte
	options []jwt.ParserOption
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	secret := strings.TrimSpace(cfg.Secret)
	if jwksURL == "" && secret == "" {
		return nil, ErrNoVerificationKey
	}

	a := &Authenticator{}
	var methods []string
	if jwksURL != "" {
		client := cfg.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 10 * time.Second}
		}
		ttl := cfg.JWKSCacheTTL
		if ttl <= 0 {
			ttl = defaultJWKSCacheTTL
		}
		a.jwks = &jwksCache{url: jwksURL, client: client, ttl: ttl}
		methods = append(methods, "RS256", "RS384", "RS512")
	}
	if secret != "" {
		a.secret = []byte(secret)
		methods = append(methods, "HS256")
	}

	a.options = []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		a.options = append(a.options, jwt.WithAudience(aud))
	}
	if iss := strings.TrimSpace(cfg.Issuer); iss != "" {
		a.options = append(a.options, jwt.WithIssuer(iss))
	}
	return a, nil
}

// Middleware rejects requests without a valid bearer token with 403.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" {
			respondWithDetail(w, http.StatusForbidden, detailNotAuthenticated)
			return
		}

		scheme, tokenString, found := strings.Cut(authHeader, " ")
		tokenString = strings.TrimSpace(tokenString)
		if !found || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
			respondWithDetail(w, http.StatusForbidden, detailNotAuthenticated)
			return
		}

		userID, err := a.authenticate(r.Context(), tokenString)
		if err != nil {
			respondWithDetail(w, http.StatusForbidden, detailInvalidToken)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(ctx context.Context, tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if a.jwks == nil {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			kid, _ := token.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("kid not found in token header")
			}
			return a.jwks.key(ctx, kid)
		case *jwt.SigningMethodHMAC:
			if a.secret == nil {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	}, a.options...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", errors.New("subject not found in token")
	}
	return sub, nil
}

// UserFromContext returns the authenticated user ID stored by the middleware.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksCache struct {
	url    string
	client *http.Client
	ttl    time.Duration

	refreshes singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// key returns the verification key for kid. When a refresh fails, a key that
// was already cached is still returned after its TTL has passed.
func (c *jwksCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, cached := c.keys[kid]
	loaded := c.keys != nil
	age := time.Since(c.fetchedAt)
	c.mu.RUnlock()

	if cached && age < c.ttl {
		return key, nil
	}
	if loaded && !cached && age < jwksRefreshInterval {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}

	_, err, _ := c.refreshes.Do(c.url, func() (interface{}, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		if cached {
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	key, cached = c.keys[kid]
	c.mu.RUnlock()
	if !cached {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	return key, nil
}

func (c *jwksCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// parseRSAPublicKey builds an RSA public key from base64url modulus and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nb) == 0 || len(eb) == 0 || len(eb) > 4 {
		return nil, errors.New("invalid rsa key parameters")
	}

	var exp int
	for _, b := range eb {
		exp = exp<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: exp}, nil
}
