package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"botify/internal/model"
	"botify/internal/pkg/id"
	"botify/internal/repository"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Claims carried by issued tokens.
const (
	ClaimUserID = "sub"
	ClaimRole   = "role"
	ClaimEmail  = "email"
)

// AuthService implements email sign-up and sign-in with JWT tokens.
type AuthService struct {
	users     *repository.UserRepository
	ledger    *LedgerService
	jwtSecret string
	tokenTTL  time.Duration
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(users *repository.UserRepository, ledger *LedgerService, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{users: users, ledger: ledger, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// Register creates an account for email and returns it with a token.
func (s *AuthService) Register(ctx context.Context, email, password string) (string, *model.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || len(password) < MinPasswordLength {
		return "", nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	userID, err := id.Generate(id.PrefixUser)
	if err != nil {
		return "", nil, err
	}

	user, err := s.ledger.CreateUser(ctx, &model.User{ID: userID, Email: email, PasswordHash: string(hash), Role: model.RoleUser})
	if err != nil {
		return "", nil, err
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return "", nil, err
	}

	log.Info().Str("user_id", userID).Msg("User registered")
	return token, user, nil
}

// Login checks the credentials and returns a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, translate(err)
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// GenerateToken signs an HS256 token identifying user.
func (s *AuthService) GenerateToken(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		ClaimUserID: user.ID,
		ClaimRole:   user.Role,
		ClaimEmail:  user.Email,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(s.tokenTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
