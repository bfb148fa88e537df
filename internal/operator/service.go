package operator

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rollcall/rollcall/internal/clock"
	"github.com/rollcall/rollcall/internal/config"
)

const tokenIssuer = "rollcall-operator"

var (
	// ErrInvalidCredentials is returned for any username or password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDisabled means no operator password was configured.
	ErrDisabled = errors.New("operator login is not configured")
	// ErrInvalidToken covers malformed, expired and foreign tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Token is an issued operator bearer token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Claims identifies the operator behind a verified token.
type Claims struct {
	Username string
	TokenID  string
	Expires  time.Time
}

// Service authenticates the single facility operator and issues HS256 tokens.
type Service struct {
	username string
	hash     []byte
	secret   []byte
	ttl      time.Duration
	clock    clock.Clock
}

// NewService prepares the operator account from configuration. A plain
// password is hashed once here so it never sits in memory for comparison.
// An empty token secret gets a random per-process key.
func NewService(cfg config.Operator, clk clock.Clock) (*Service, error) {
	if clk == nil {
		clk = clock.System{}
	}
	s := &Service{username: cfg.Username, ttl: cfg.TokenTTL, clock: clk}
	if s.ttl <= 0 {
		s.ttl = 12 * time.Hour
	}

	switch {
	case cfg.PasswordHash != "":
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("operator password hash: %w", err)
		}
		s.hash = []byte(cfg.PasswordHash)
	case cfg.Password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash operator password: %w", err)
		}
		s.hash = hash
	}

	if cfg.TokenSecret != "" {
		s.secret = []byte(cfg.TokenSecret)
	} else {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	return s, nil
}

// Enabled reports whether a password is configured.
func (s *Service) Enabled() bool {
	return len(s.hash) > 0
}

// Login checks the operator credentials and returns a fresh token.
func (s *Service) Login(_ context.Context, username, password string) (Token, error) {
	if !s.Enabled() {
		return Token{}, ErrDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	pwErr := bcrypt.CompareHashAndPassword(s.hash, []byte(password))
	if !userOK || pwErr != nil {
		return Token{}, ErrInvalidCredentials
	}

	now := s.clock.Now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   s.username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign operator token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify validates a bearer token and returns its claims.
func (s *Service) Verify(token string) (Claims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(s.username),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Claims{Username: claims.Subject, TokenID: claims.ID, Expires: claims.ExpiresAt.Time}, nil
}
