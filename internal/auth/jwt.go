package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token body issued by the session service.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier builds a Verifier. An empty issuer skips the issuer check.
func NewVerifier(secret []byte, issuer string, leeway time.Duration) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: secret, issuer: issuer, leeway: leeway}, nil
}

// Verify parses tokenString and returns the principal it carries.
func (v *Verifier) Verify(tokenString string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithLeeway(v.leeway), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	p := Principal{
		TenantID:  strings.TrimSpace(claims.TenantID),
		UsuarioID: strings.TrimSpace(claims.Subject),
		Role:      Role(strings.ToUpper(strings.TrimSpace(claims.Role))),
	}
	if !p.Authenticated() {
		return Principal{}, fmt.Errorf("%w: missing tenant or subject", ErrInvalidToken)
	}
	return p, nil
}

// Issue signs a token for p. It backs the dev token command and tests.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID: p.TenantID,
		Role:     string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   p.UsuarioID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := t.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
