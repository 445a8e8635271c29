// Package auth issues and verifies the bearer tokens handed out by device auth.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const signingKeyInfo = "share-server/access-token/v1"

var (
	ErrMissingUserID = errors.New("token has no userId claim")
	ErrInvalidToken  = errors.New("invalid token")
)

// Claims binds a user id and device id to the token.
type Claims struct {
	UserID   int64  `json:"userId"`
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

type Service struct {
	signKey  []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewService derives the HS256 signing key from opts.Secret with HKDF-SHA256.
func NewService(opts Options) (*Service, error) {
	if opts.Secret == "" {
		return nil, errors.New("auth: empty secret")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("auth: ttl must be positive")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(opts.Secret), nil, []byte(signingKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("auth: derive key: %w", err)
	}
	return &Service{
		signKey:  key,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		ttl:      opts.TTL,
		now:      time.Now,
	}, nil
}

// Issue returns a signed token and its absolute expiry.
func (s *Service) Issue(userID int64, deviceID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies signature, issuer, audience and expiry, and requires a
// positive userId claim.
func (s *Service) Parse(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return nil, ErrMissingUserID
	}
	return &claims, nil
}

// UserIDFromToken is what the HTTP middleware needs.
func (s *Service) UserIDFromToken(token string) (int64, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
