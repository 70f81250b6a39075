// Package auth handles signup, credential verification and token issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"delu/internal/logger"
	"delu/internal/models"
	"delu/internal/repositories"
	"delu/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailTaken          = errors.New("email or phone already registered")
	ErrInvalidReferralCode = errors.New("referral code does not exist")
	ErrWeakPassword        = errors.New("password must be at least 8 characters")
)

type SignupInput struct {
	Email          string
	Password       string
	Name           string
	Phone          string
	Block          string
	ReferredByCode string
	CollegeIDURL   string
}

type Service interface {
	Signup(ctx context.Context, in SignupInput) (*models.User, error)
	Login(ctx context.Context, email, phone, password string) (*models.User, string, string, error)
	RefreshTokens(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context, userID uint) error
	ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
	GetUserByID(ctx context.Context, userID uint) (*models.User, error)
	GetUserTokenVersion(ctx context.Context, userID uint) (int, error)
}

type service struct {
	userRepo repositories.UserRepository
}

func NewService(userRepo repositories.UserRepository) Service {
	return &service{
		userRepo: userRepo,
	}
}

func (s *service) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if in.Email == "" || in.Name == "" || in.Phone == "" {
		return nil, errors.New("email, name and phone are required")
	}
	if len(in.Password) < 8 {
		return nil, ErrWeakPassword
	}

	// The referred-by code is immutable after signup, so a typo here would
	// silently void the referrer's reward. Reject rather than ignore.
	if in.ReferredByCode != "" {
		if _, err := s.userRepo.GetByReferralCode(ctx, in.ReferredByCode); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return nil, ErrInvalidReferralCode
			}
			return nil, err
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:          strings.ToLower(in.Email),
		Password:       string(hashed),
		Name:           in.Name,
		Phone:          in.Phone,
		Block:          in.Block,
		CollegeIDURL:   in.CollegeIDURL,
		Role:           "user",
		ReferralCode:   newReferralCode(),
		ReferredByCode: in.ReferredByCode,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, ErrEmailTaken
	}

	logger.Log.Info("user signed up",
		zap.Uint("user_id", user.ID),
		zap.String("referral_code", user.ReferralCode),
		zap.Bool("referred", in.ReferredByCode != ""))
	return user, nil
}

// newReferralCode derives a short shareable code from a fresh UUID. The
// uniqueIndex on the column catches the astronomically unlikely collision.
func newReferralCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:8])
}

func (s *service) Login(ctx context.Context, email, phone, password string) (*models.User, string, string, error) {
	user, err := s.getUserByIdentifier(ctx, email, phone)
	if err != nil {
		logger.Log.Warn("login failed: user not found", zap.String("identifier", email+phone))
		return nil, "", "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logger.Log.Warn("login failed: wrong password", zap.Uint("user_id", user.ID))
		return nil, "", "", ErrInvalidCredentials
	}

	accessToken, refreshToken, err := utils.GenerateTokens(&models.UserClaims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
	})
	if err != nil {
		logger.Log.Error("token generation failed", zap.Error(err))
		return nil, "", "", errors.New("error generating tokens")
	}

	return user, accessToken, refreshToken, nil
}

func (s *service) RefreshTokens(ctx context.Context, refreshToken string) (string, string, error) {
	_, claims, err := utils.ParseToken(refreshToken)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", "", errors.New("user not found")
	}

	if user.TokenVersion != claims.TokenVersion {
		return "", "", errors.New("token version mismatch")
	}

	return utils.GenerateTokens(&models.UserClaims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
	})
}

func (s *service) Logout(ctx context.Context, userID uint) error {
	return s.userRepo.IncrementTokenVersion(ctx, userID)
}

func (s *service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return errors.New("failed to get user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return errors.New("invalid old password")
	}

	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("failed to hash password")
	}

	user.Password = string(hashed)
	user.TokenVersion++ // invalidate existing tokens

	if err := s.userRepo.Update(ctx, user); err != nil {
		return errors.New("failed to update password")
	}
	return nil
}

func (s *service) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *service) GetUserTokenVersion(ctx context.Context, userID uint) (int, error) {
	return s.userRepo.GetTokenVersion(ctx, userID)
}

func (s *service) getUserByIdentifier(ctx context.Context, email, phone string) (*models.User, error) {
	if email != "" {
		return s.userRepo.GetByEmail(ctx, strings.ToLower(email))
	}
	return s.userRepo.GetByPhone(ctx, phone)
}
