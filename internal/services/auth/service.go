// Package auth handles account registration and credential verification.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"billvend/internal/models"
	"billvend/internal/repositories"
	"billvend/internal/services/wallet"
	"billvend/internal/utils"
	"billvend/internal/validation"
)

// WelcomeCredit is granted to every new wallet on registration.
const WelcomeCredit = 0.5

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Service interface {
	// Register creates the account and seeds its wallet with the welcome
	// credit.
	Register(ctx context.Context, input RegisterInput) (*models.User, error)

	// Login verifies credentials and issues an access/refresh token pair.
	Login(ctx context.Context, email, password string) (*models.User, string, string, error)

	// RefreshTokens exchanges a valid refresh token for a fresh pair.
	RefreshTokens(ctx context.Context, refreshToken string) (string, string, error)

	ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
}

type service struct {
	userRepo repositories.UserRepository
	wallets  wallet.Service
	logger   *slog.Logger
}

func NewService(userRepo repositories.UserRepository, wallets wallet.Service, logger *slog.Logger) Service {
	if userRepo == nil {
		panic("user repo is required")
	}
	if wallets == nil {
		panic("wallet service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		userRepo: userRepo,
		wallets:  wallets,
		logger:   logger.With("service", "auth"),
	}
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	v := validation.New()
	v.Required("name", input.Name)
	v.Email("email", input.Email)
	if !v.Valid() {
		return nil, fmt.Errorf("invalid registration input: %v", v.Errors)
	}
	if len(input.Password) < 8 || !validation.HasSpecialChar(input.Password) {
		return nil, ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:     input.Name,
		Email:    input.Email,
		Password: string(hashed),
		Role:     "user",
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUserAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if _, err := s.wallets.Fund(ctx, user.ID, WelcomeCredit); err != nil {
		// The account exists either way; the credit can be granted later.
		s.logger.Error("failed to seed wallet with welcome credit",
			"user_id", user.ID, "error", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*models.User, string, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		// Same answer for unknown email and bad password.
		return nil, "", "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.logger.Warn("login failed", "user_id", user.ID)
		return nil, "", "", ErrInvalidCredentials
	}

	accessToken, refreshToken, err := utils.GenerateTokens(&models.UserClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to generate tokens: %w", err)
	}

	return user, accessToken, refreshToken, nil
}

func (s *service) RefreshTokens(ctx context.Context, refreshToken string) (string, string, error) {
	_, claims, err := utils.ParseToken(refreshToken)
	if err != nil {
		return "", "", ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", "", ErrInvalidToken
	}

	access, refresh, err := utils.GenerateTokens(&models.UserClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate tokens: %w", err)
	}
	return access, refresh, nil
}

func (s *service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	if len(newPassword) < 8 || !validation.HasSpecialChar(newPassword) {
		return ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.Password = string(hashed)
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
