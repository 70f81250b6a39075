package handlers

import (
	"errors"

	"delu/internal/models"
	"delu/internal/services/auth"
	"delu/internal/storage"
	"delu/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService auth.Service
	store       storage.Store
}

func NewAuthHandler(authService auth.Service, store storage.Store) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		store:       store,
	}
}

// extractUserClaims is a helper function to reduce duplication
func extractUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, ok := c.Locals("claims").(*models.UserClaims)
	if !ok || claims == nil {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	in := auth.SignupInput{
		Email:          c.FormValue("email"),
		Password:       c.FormValue("password"),
		Name:           c.FormValue("name"),
		Phone:          c.FormValue("phone"),
		Block:          c.FormValue("block"),
		ReferredByCode: c.FormValue("referral_code"),
	}

	// The college ID is optional at signup; verification happens offline.
	if file, err := c.FormFile("college_id"); err == nil && h.store != nil {
		url, err := h.store.Save(file, "college-ids")
		if err != nil {
			return utils.BadRequest(c, "Failed to store college ID")
		}
		in.CollegeIDURL = url
	}

	user, err := h.authService.Signup(c.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			return utils.Conflict(c, err.Error())
		case errors.Is(err, auth.ErrInvalidReferralCode), errors.Is(err, auth.ErrWeakPassword):
			return utils.BadRequest(c, err.Error())
		default:
			return utils.BadRequest(c, err.Error())
		}
	}

	return utils.Created(c, fiber.Map{
		"user":          sanitizeUser(user),
		"referral_code": user.ReferralCode,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input struct {
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}
	if input.Email == "" && input.Phone == "" {
		return utils.BadRequest(c, "Email or phone is required")
	}

	user, accessToken, refreshToken, err := h.authService.Login(c.Context(), input.Email, input.Phone, input.Password)
	if err != nil {
		return utils.Unauthorized(c, "Invalid credentials")
	}

	return utils.Success(c, fiber.Map{
		"user":          sanitizeUser(user),
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var input struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&input); err != nil || input.RefreshToken == "" {
		return utils.BadRequest(c, "Refresh token is required")
	}

	accessToken, refreshToken, err := h.authService.RefreshTokens(c.Context(), input.RefreshToken)
	if err != nil {
		return utils.Unauthorized(c, "Invalid refresh token")
	}

	return utils.Success(c, fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	if err := h.authService.Logout(c.Context(), claims.UserID); err != nil {
		return utils.InternalError(c, "Failed to logout")
	}
	return utils.Success(c, fiber.Map{"message": "Logged out"})
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	if err := h.authService.ChangePassword(c.Context(), claims.UserID, input.OldPassword, input.NewPassword); err != nil {
		return utils.BadRequest(c, err.Error())
	}
	return utils.Success(c, fiber.Map{"message": "Password changed"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	user, err := h.authService.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		return utils.NotFound(c, "User not found")
	}
	return utils.Success(c, fiber.Map{"user": sanitizeUser(user)})
}

// sanitizeUser strips fields that must never leave the server.
func sanitizeUser(u *models.User) fiber.Map {
	return fiber.Map{
		"id":                   u.ID,
		"email":                u.Email,
		"name":                 u.Name,
		"phone":                u.Phone,
		"block":                u.Block,
		"role":                 u.Role,
		"wallet_balance":       u.WalletBalance,
		"rating":               u.Rating(),
		"deliveries_completed": u.DeliveriesCompleted,
		"referral_code":        u.ReferralCode,
		"profile_photo_url":    u.ProfilePhotoURL,
		"created_at":           u.CreatedAt,
	}
}
