package handlers

import (
	"delu/internal/repositories"
	"delu/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// PlatformHandler serves shared platform state: the public offer bar and the
// caller's referral standing.
type PlatformHandler struct {
	ledger   repositories.LedgerRepository
	userRepo repositories.UserRepository
}

func NewPlatformHandler(ledger repositories.LedgerRepository, userRepo repositories.UserRepository) *PlatformHandler {
	return &PlatformHandler{
		ledger:   ledger,
		userRepo: userRepo,
	}
}

// OfferBar is public; the app shows it above the gig feed.
func (h *PlatformHandler) OfferBar(c *fiber.Ctx) error {
	settings, err := h.ledger.GetSettings(c.Context())
	if err != nil {
		return utils.InternalError(c, "Failed to get settings")
	}
	return utils.Success(c, fiber.Map{"offer_bar_text": settings.OfferBarText})
}

func (h *PlatformHandler) ReferralInfo(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	user, err := h.userRepo.GetByID(c.Context(), claims.UserID)
	if err != nil {
		return utils.NotFound(c, "User not found")
	}

	settings, err := h.ledger.GetSettings(c.Context())
	if err != nil {
		return utils.InternalError(c, "Failed to get settings")
	}

	return utils.Success(c, fiber.Map{
		"referral_code":            user.ReferralCode,
		"referred_by_code":         user.ReferredByCode,
		"first_recharge_completed": user.FirstRechargeCompleted,
		"referrer_reward":          settings.ReferrerReward,
		"referee_bonus_percentage": settings.RefereeBonusPercentage,
	})
}
