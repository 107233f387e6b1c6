package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload issued at login.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, issuer: "telecare", now: time.Now}
}

// Issue returns a signed token for the actor and its expiry.
func (ti *TokenIssuer) Issue(a Actor) (string, time.Time, error) {
	now := ti.now()
	exp := now.Add(ti.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: a.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

var ErrInvalidToken = errors.New("invalid token")

// Parse verifies tokenStr and returns the actor it was issued for.
func (ti *TokenIssuer) Parse(tokenStr string) (Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil || !token.Valid {
		return Actor{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, ErrInvalidToken
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return Actor{}, ErrInvalidToken
	}
	return Actor{ID: id, Role: role}, nil
}
