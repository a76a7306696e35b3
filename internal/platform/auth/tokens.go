package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// TokenType distinguishes end-user tokens from back-office tokens.
type TokenType string

const (
	TypeUser  TokenType = "user"
	TypeAdmin TokenType = "admin"
)

func (t TokenType) valid() bool {
	return t == TypeUser || t == TypeAdmin
}

// Claims is the identity carried by a signed token. Phone is set on user
// tokens, Username on admin tokens.
type Claims struct {
	ID       string    `json:"id"`
	Phone    string    `json:"phone,omitempty"`
	Username string    `json:"username,omitempty"`
	Type     TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 tokens with a single server secret.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{secret: secret, ttl: ttl, now: time.Now}
}

// TTL is the lifetime stamped onto issued tokens.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Issue stamps iat and exp onto claims and signs them.
func (c *TokenCodec) Issue(claims Claims) (string, error) {
	if claims.ID == "" {
		return "", errors.New("token claims: id is required")
	}
	if !claims.Type.valid() {
		return "", fmt.Errorf("token claims: unknown type %q", claims.Type)
	}

	now := c.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the claims of a well-formed, correctly signed, unexpired
// token. Every failure collapses to (nil, false).
func (c *TokenCodec) Verify(tokenStr string) (*Claims, bool) {
	if tokenStr == "" {
		return nil, false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return nil, false
	}
	if claims.ID == "" || !claims.Type.valid() {
		return nil, false
	}
	return claims, true
}
