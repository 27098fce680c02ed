package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyToken   = errors.New("empty token")
	ErrMissingUser  = errors.New("token carries no user id")
	ErrNoSigningKey = errors.New("no signing secret configured")
)

// Claims is the subset of identity-token claims the locker reads. The uid
// comes from user_id and falls back to sub.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) UID() string {
	if uid := strings.TrimSpace(c.UserID); uid != "" {
		return uid
	}
	return strings.TrimSpace(c.Subject)
}

// Service decodes identity tokens. With a secret it verifies HS256
// signatures; without one it trusts the identity provider that issued the
// token and only checks expiry.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret string, ttlMinutes int) *Service {
	return &Service{
		secret: []byte(strings.TrimSpace(secret)),
		ttl:    time.Duration(ttlMinutes) * time.Minute,
		now:    time.Now,
	}
}

func (s *Service) Verifies() bool {
	return len(s.secret) > 0
}

func (s *Service) GenerateToken(userID, email, role string) (string, error) {
	if !s.Verifies() {
		return "", ErrNoSigningKey
	}
	now := s.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	claims := &Claims{}
	if s.Verifies() {
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return s.secret, nil
		}, jwt.WithTimeFunc(s.now))
		if err != nil {
			return nil, err
		}
		if !parsed.Valid {
			return nil, fmt.Errorf("invalid token")
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, err
		}
		if claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time) {
			return nil, jwt.ErrTokenExpired
		}
	}
	if claims.UID() == "" {
		return nil, ErrMissingUser
	}
	return claims, nil
}
