package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthbox_bridge/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrSignUpDisabled  = errors.New("sign-up is disabled")
	errEmptyPassword   = errors.New("password is empty")
)

type AuthOptions struct {
	SigningKey string
	TokenTTL   time.Duration
	// AllowSignUp opens sign-up to anyone. When false only the first
	// account can be created.
	AllowSignUp bool
}

// AuthService manages operator accounts and the bearer tokens that guard
// the /api/v1 routes.
type AuthService struct {
	accounts    repository.Authorization
	signingKey  []byte
	tokenTTL    time.Duration
	allowSignUp bool
}

func NewAuthService(accounts repository.Authorization, opts AuthOptions) *AuthService {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &AuthService{
		accounts:    accounts,
		signingKey:  []byte(opts.SigningKey),
		tokenTTL:    ttl,
		allowSignUp: opts.AllowSignUp,
	}
}

// Claims carried by operator tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id"`
}

func (s *AuthService) SignUp(ctx context.Context, username, password string) (int, error) {
	if err := s.checkSignUpOpen(ctx); err != nil {
		return 0, err
	}
	if strings.TrimSpace(password) == "" {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPassword, errEmptyPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	return s.accounts.Create(ctx, username, string(hash))
}

// checkSignUpOpen lets the first account through even when sign-up is off.
func (s *AuthService) checkSignUpOpen(ctx context.Context) error {
	if s.allowSignUp {
		return nil
	}
	n, err := s.accounts.Count(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("count accounts: %w", err)
	case n > 0:
		return ErrSignUpDisabled
	}
	return nil
}

// GenerateToken checks the credentials and issues a signed token.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (string, error) {
	u, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidPassword
	}
	return s.sign(u.ID, time.Now())
}

// ParseToken validates an HS256 token and returns the user id it carries.
func (s *AuthService) ParseToken(raw string) (int, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, s.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

func (s *AuthService) keyFor(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.signingKey, nil
}

func (s *AuthService) sign(userID int, now time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		UserID: userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}
