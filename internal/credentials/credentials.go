package credentials

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL   = 7 * 24 * time.Hour
	DefaultBcryptCost = 10
)

// Service hashes passwords and issues session tokens bound to an account id.
type Service struct {
	secret   []byte
	tokenTTL time.Duration
	cost     int
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTokenTTL overrides the session token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithClock overrides the time source used for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service. The secret must be non-empty.
func NewService(jwtSecret string, opts ...Option) (*Service, error) {
	jwtSecret = strings.TrimSpace(jwtSecret)
	if jwtSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	s := &Service{
		secret:   []byte(jwtSecret),
		tokenTTL: DefaultTokenTTL,
		cost:     DefaultBcryptCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Hash returns the bcrypt digest of plaintext.
func (s *Service) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches digest.
func (s *Service) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// IssueToken signs a token whose subject is accountID.
func (s *Service) IssueToken(accountID string) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", errors.New("account id is required")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates tokenString and returns the account id it is bound to.
func (s *Service) ParseToken(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

// TokenTTL returns the configured session token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
