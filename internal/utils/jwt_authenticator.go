package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// AuthenticatedUser is the caller identity extracted from a bearer token
type AuthenticatedUser struct {
	Sub      string   `json:"sub"`
	Iss      string   `json:"iss"`
	ClientId string   `json:"client_id"`
	Exp      int64    `json:"exp"`
	Iat      int64    `json:"iat"`
	Aud      []string `json:"aud"`
	Roles    []string `json:"roles"`
	Scopes   []string `json:"scopes"`
}

// JwtAuthenticator verifies bearer tokens either against a JWKS endpoint
// (RSA/ECDSA keys looked up by kid) or against a shared HMAC secret.
type JwtAuthenticator struct {
	JwksUri string

	secret   []byte
	cacheTTL time.Duration

	mu        sync.Mutex
	keySet    jwk.Set
	fetchedAt time.Time
}

// NewJwtAuthenticator creates an authenticator backed by a JWKS endpoint
func NewJwtAuthenticator(jwksUri string) *JwtAuthenticator {
	return &JwtAuthenticator{
		JwksUri:  jwksUri,
		cacheTTL: 5 * time.Minute,
	}
}

// NewSecretJwtAuthenticator creates an authenticator for HS256 tokens signed with secret
func NewSecretJwtAuthenticator(secret string) *JwtAuthenticator {
	return &JwtAuthenticator{
		secret:   []byte(secret),
		cacheTTL: 5 * time.Minute,
	}
}

// ValidateToken verifies the signature and standard time claims and returns the caller
func (a *JwtAuthenticator) ValidateToken(tokenString string) (*AuthenticatedUser, error) {
	if a.JwksUri == "" && len(a.secret) == 0 {
		return nil, fmt.Errorf("JWKS URI not configured")
	}

	token, err := jwt.Parse(tokenString, a.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	return a.mapClaimsToUser(claims)
}

func (a *JwtAuthenticator) keyFunc(token *jwt.Token) (interface{}, error) {
	if len(a.secret) > 0 {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}

	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}

	set, err := a.getKeySet()
	if err != nil {
		return nil, err
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("failed to extract public key: %w", err)
	}
	return raw, nil
}

// getKeySet returns the cached JWKS, refetching it once the cache TTL has passed
func (a *JwtAuthenticator) getKeySet() (jwk.Set, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.keySet != nil && time.Since(a.fetchedAt) < a.cacheTTL {
		return a.keySet, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set, err := jwk.Fetch(ctx, a.JwksUri)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	a.keySet = set
	a.fetchedAt = time.Now()
	return set, nil
}

func (a *JwtAuthenticator) mapClaimsToUser(claims map[string]interface{}) (*AuthenticatedUser, error) {
	user := &AuthenticatedUser{}

	user.Sub, _ = claims["sub"].(string)
	user.Iss, _ = claims["iss"].(string)
	user.ClientId, _ = claims["client_id"].(string)

	if exp, ok := claims["exp"].(float64); ok {
		user.Exp = int64(exp)
	}
	if iat, ok := claims["iat"].(float64); ok {
		user.Iat = int64(iat)
	}

	user.Aud = claimStrings(claims["aud"])
	user.Roles = claimStrings(claims["roles"])
	user.Scopes = claimStrings(claims["scopes"])

	return user, nil
}

// claimStrings accepts both a single string and a JSON array of strings
func claimStrings(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
