// Package auth guards the plan endpoints with bearer tokens and tags every
// request with an id.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Steve-IX/Ezra/pkg/api"
)

// ProtectedPrefix is the path prefix that requires a token.
const ProtectedPrefix = "/api/v1/agent/"

// Claims are the JWT claims the companion accepts.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// JWTValidator checks HS256 tokens against a shared secret.
type JWTValidator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// ValidatorOption configures a JWTValidator.
type ValidatorOption func(*JWTValidator)

// WithIssuer requires the iss claim.
func WithIssuer(iss string) ValidatorOption {
	return func(v *JWTValidator) { v.issuer = iss }
}

// WithAudience requires the aud claim.
func WithAudience(aud string) ValidatorOption {
	return func(v *JWTValidator) { v.audience = aud }
}

// NewJWTValidator returns nil for an empty secret, which disables auth.
func NewJWTValidator(secret string, opts ...ValidatorOption) *JWTValidator {
	if secret == "" {
		return nil
	}
	v := &JWTValidator{secret: []byte(secret), leeway: 30 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate parses and validates a JWT token string.
func (v *JWTValidator) Validate(tokenStr string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject is required")
	}
	return claims, nil
}

// Issue signs a token for subject valid for ttl. Used by the CLI to mint
// operator tokens.
func (v *JWTValidator) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// NewMiddleware requires a valid bearer token under ProtectedPrefix. Other
// paths pass through. A nil validator disables the check.
func NewMiddleware(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, ProtectedPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "Missing Authorization header")
				return
			}
			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenStr == "" {
				api.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			claims, err := validator.Validate(tokenStr)
			if err != nil {
				api.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{Subject: claims.Subject, Scopes: strings.Fields(claims.Scope)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
