package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
	"github.com/volunhub/api/pkg/config"
	"github.com/volunhub/api/pkg/crypto"
	jwtpkg "github.com/volunhub/api/pkg/jwt"
)

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Signup registers a new user with the given role.
func (s Service) Signup(ctx context.Context, username, email, password string, role domain.Role) (*domain.User, TokenPair, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || password == "" {
		return nil, TokenPair{}, domain.NewError(domain.CodeValidation, "username, email and password are required", nil)
	}
	if role != domain.RoleVolunteer && role != domain.RoleOrganizer {
		return nil, TokenPair{}, domain.NewError(domain.CodeValidation, "role must be volunteer or organizer", nil)
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, domain.NewError(domain.CodeInternal, "failed to hash password", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, TokenPair{}, domain.NewError(domain.CodeConflict, "username or email already registered", err)
		}
		return nil, TokenPair{}, domain.NewError(domain.CodeInternal, "failed to create user", err)
	}
	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, tokens, nil
}

// Login authenticates by username or email and returns tokens.
func (s Service) Login(ctx context.Context, usernameOrEmail, password string) (*domain.User, TokenPair, error) {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if usernameOrEmail == "" || password == "" {
		return nil, TokenPair{}, domain.NewError(domain.CodeValidation, "please provide username/email and password", nil)
	}
	user, err := s.users.GetUserByLogin(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, domain.NewError(domain.CodeForbidden, "invalid credentials", err)
		}
		return nil, TokenPair{}, domain.NewError(domain.CodeInternal, "failed to load user", err)
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, domain.NewError(domain.CodeForbidden, "invalid credentials", err)
	}
	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Authorize validates a bearer token and returns the associated user.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, domain.NewError(domain.CodeForbidden, "token required", nil)
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, domain.NewError(domain.CodeForbidden, "invalid token", err)
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, domain.NewError(domain.CodeForbidden, "unknown user", err)
	}
	return user, nil
}

func (s Service) issueTokens(user *domain.User) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(user.ID, string(user.Role), s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, domain.NewError(domain.CodeInternal, "failed to sign token", err)
	}
	refresh, err := jwtpkg.GenerateToken(user.ID, string(user.Role), s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, domain.NewError(domain.CodeInternal, "failed to sign token", err)
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}
