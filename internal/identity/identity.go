// Package identity verifies bearer credentials issued by the external identity provider.
//
// Tokens are HS256 JWTs whose subject is the stable user ID.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/DukeRupert/dialpool/internal/domain"
)

// Verifier maps a bearer credential to a user ID.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier. When issuer is non-empty the iss claim must match.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("identity: secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify returns the token subject. Every failure is EUNAUTHORIZED.
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	const op = "identity.verify"

	if token == "" {
		return "", domain.Unauthorized(op, "Missing bearer token.")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		msg := "Invalid token."
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "Token has expired."
		}
		return "", &domain.Error{Code: domain.EUNAUTHORIZED, Op: op, Message: msg, Err: err}
	}
	if claims.Subject == "" {
		return "", domain.Unauthorized(op, "Token has no subject.")
	}
	return claims.Subject, nil
}

// Issuer mints tokens the verifier accepts. Used by the devtoken command and tests.
type Issuer struct {
	secret []byte
	issuer string
}

// NewIssuer creates an Issuer for secret and issuer.
func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for userID valid for ttl starting at now.
func (i *Issuer) Issue(userID string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
