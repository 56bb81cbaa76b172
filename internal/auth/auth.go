package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the fixed lifetime of every issued token.
const TokenTTL = 24 * time.Hour

// Config carries the values the service is built from. Users takes priority
// over the legacy Username/Password pair.
type Config struct {
	Secret   string
	Users    string
	Username string
	Password string
}

// Claims is the JWT payload: exactly username, iat and exp.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// parsedClaims tells an absent username claim apart from an empty one.
type parsedClaims struct {
	Username *string `json:"username"`
	jwt.RegisteredClaims
}

// Payload is the verified content of a token.
type Payload struct {
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token is a signed bearer token together with its lifetime.
type Token struct {
	Value     string
	ExpiresIn int64
	ExpiresAt time.Time
}

// Service holds the static credential set and signs/verifies tokens.
// It is immutable after New returns.
type Service struct {
	secret []byte
	users  map[string]string
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New builds the service. It fails with ErrConfiguration when the secret is
// missing or no users can be resolved.
func New(cfg Config, opts ...Option) (*Service, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, errMissingSecret)
	}
	users := resolveUsers(cfg)
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, errNoUsers)
	}
	svc := &Service{
		secret: []byte(secret),
		users:  users,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IssueToken signs an HS256 token for username. It does not check that the
// user exists; callers verify credentials first.
func (s *Service) IssueToken(username string) (Token, error) {
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(TokenTTL)
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{
		Value:     signed,
		ExpiresIn: int64(TokenTTL / time.Second),
		ExpiresAt: exp,
	}, nil
}

// VerifyToken checks signature and expiry and returns the payload. Every
// failure is reported as ErrInvalidToken.
func (s *Service) VerifyToken(token string) (*Payload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &parsedClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	// Any username IssueToken accepts, "" included, must verify.
	if claims.Username == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	// exp equal to now counts as expired.
	if !claims.ExpiresAt.Time.After(s.now()) {
		return nil, ErrInvalidToken
	}
	return &Payload{
		Username:  *claims.Username,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
