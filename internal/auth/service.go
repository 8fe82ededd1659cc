package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

// TokenTTL is the lifetime of a session token
const TokenTTL = 12 * time.Hour

var (
	ErrInvalidCredentials = errors.New("usuário ou senha inválidos")
	ErrPoloNotAllowed     = errors.New("operador sem acesso a este polo")
	ErrInvalidToken       = errors.New("token inválido ou expirado")
	ErrNoSecret           = errors.New("JWT secret is required")
)

// Claims carried by a session token. The subject is the operator username.
type Claims struct {
	Polo string `json:"polo"`
	jwt.RegisteredClaims
}

// Service authenticates operators and issues session tokens
type Service struct {
	dir    Directory
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures the service
type Option func(*Service)

// WithTTL sets the token lifetime
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithClock sets the time source for issuing and checking tokens
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an auth service signing tokens with secret (HS256)
func NewService(dir Directory, secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	s := &Service{dir: dir, secret: secret, ttl: TokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login checks the password and the polo grant, then issues a token
func (s *Service) Login(ctx context.Context, username, password, polo string) (string, model.Session, error) {
	op, err := s.dir.Find(ctx, username)
	if errors.Is(err, ErrUnknownOperator) {
		return "", model.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", model.Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", model.Session{}, ErrInvalidCredentials
	}
	if !op.Allows(polo) {
		return "", model.Session{}, ErrPoloNotAllowed
	}

	now := s.now()
	claims := Claims{
		Polo: polo,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", model.Session{}, fmt.Errorf("sign token: %w", err)
	}
	return token, model.Session{Operator: op.Username, Polo: polo}, nil
}

// ParseToken validates a token and returns its session
func (s *Service) ParseToken(token string) (model.Session, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.Polo == "" {
		return model.Session{}, ErrInvalidToken
	}
	return model.Session{Operator: claims.Subject, Polo: claims.Polo}, nil
}

// HashPassword returns the bcrypt hash stored in an operator entry
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
