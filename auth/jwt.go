package auth

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Validator checks Neon Auth JWTs against the provider's JWKS. The key set
// is fetched on first use and refreshed in the background by keyfunc.
type Validator struct {
	baseURL string
	issuer  string

	once    sync.Once
	keys    jwt.Keyfunc
	keysErr error
}

// NewValidator returns a Validator for the Neon Auth base URL (e.g. from
// NEON_AUTH_BASE_URL). An empty baseURL yields a nil Validator: tokens are
// then never accepted and players stay anonymous.
func NewValidator(baseURL string) (*Validator, error) {
	if baseURL == "" {
		return nil, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	return &Validator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		issuer:  u.Scheme + "://" + u.Host,
	}, nil
}

// newValidatorWithKeys builds a Validator around a fixed key lookup.
func newValidatorWithKeys(issuer string, keys jwt.Keyfunc) *Validator {
	v := &Validator{issuer: issuer, keys: keys}
	v.once.Do(func() {})
	return v
}

func (v *Validator) keyfunc() (jwt.Keyfunc, error) {
	v.once.Do(func() {
		jwks, err := keyfunc.NewDefault([]string{v.baseURL + "/.well-known/jwks.json"})
		if err != nil {
			v.keysErr = err
			return
		}
		v.keys = jwks.Keyfunc
	})
	return v.keys, v.keysErr
}

// Validate parses tokenString and returns its claims.
func (v *Validator) Validate(tokenString string) (jwt.MapClaims, error) {
	if v == nil {
		return nil, fmt.Errorf("NEON_AUTH_BASE_URL is not set")
	}
	kf, err := v.keyfunc()
	if err != nil {
		return nil, fmt.Errorf("load JWKS: %w", err)
	}

	token, err := jwt.Parse(tokenString, kf,
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// playerIDPattern bounds the anonymous ids clients remember between visits.
var playerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IsPlayerID reports whether s is acceptable as an anonymous player id.
func IsPlayerID(s string) bool {
	return playerIDPattern.MatchString(s)
}

// PlayerIDFromClaims returns the player id from claims ("sub" or "id").
func PlayerIDFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}
