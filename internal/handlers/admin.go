package handlers

import (
	"errors"

	"delu/internal/models"
	"delu/internal/repositories"
	"delu/internal/services/wallet"
	"delu/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler drives the operator console: settling top-up and withdrawal
// requests, coupon management, platform settings and user administration.
type AdminHandler struct {
	walletService wallet.Service
	ledger        repositories.LedgerRepository
	userRepo      repositories.UserRepository
}

func NewAdminHandler(
	walletService wallet.Service,
	ledger repositories.LedgerRepository,
	userRepo repositories.UserRepository,
) *AdminHandler {
	return &AdminHandler{
		walletService: walletService,
		ledger:        ledger,
		userRepo:      userRepo,
	}
}

// Top-up requests

func (h *AdminHandler) ListLoadRequests(c *fiber.Ctx) error {
	status := models.LoadRequestStatus(c.Query("status", string(models.LoadRequestPending)))
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	reqs, err := h.ledger.ListLoadRequests(c.Context(), status, limit, offset)
	if err != nil {
		return utils.InternalError(c, "Failed to list load requests")
	}
	return utils.Success(c, fiber.Map{"requests": reqs})
}

func (h *AdminHandler) ApproveLoadRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid request id")
	}

	if err := h.walletService.ApproveLoad(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, repositories.ErrRequestNotFound):
			return utils.NotFound(c, "Request not found")
		case errors.Is(err, wallet.ErrRequestSettled):
			return utils.Conflict(c, err.Error())
		}
		return utils.InternalError(c, "Failed to approve request")
	}
	return utils.Success(c, fiber.Map{"message": "Request approved"})
}

func (h *AdminHandler) RejectLoadRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid request id")
	}

	if err := h.walletService.RejectLoad(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, repositories.ErrRequestNotFound):
			return utils.NotFound(c, "Request not found")
		case errors.Is(err, wallet.ErrRequestSettled):
			return utils.Conflict(c, err.Error())
		}
		return utils.InternalError(c, "Failed to reject request")
	}
	return utils.Success(c, fiber.Map{"message": "Request rejected"})
}

// Withdrawal requests

func (h *AdminHandler) ListWithdrawalRequests(c *fiber.Ctx) error {
	status := models.WithdrawalStatus(c.Query("status", string(models.WithdrawalPending)))
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	reqs, err := h.ledger.ListWithdrawalRequests(c.Context(), status, limit, offset)
	if err != nil {
		return utils.InternalError(c, "Failed to list withdrawal requests")
	}
	return utils.Success(c, fiber.Map{"requests": reqs})
}

func (h *AdminHandler) ApproveWithdrawalRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid request id")
	}

	if err := h.walletService.ApproveWithdrawal(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, repositories.ErrRequestNotFound):
			return utils.NotFound(c, "Request not found")
		case errors.Is(err, wallet.ErrRequestSettled):
			return utils.Conflict(c, err.Error())
		case errors.Is(err, wallet.ErrInsufficientBalance):
			return utils.BadRequest(c, "User balance no longer covers the withdrawal")
		}
		return utils.InternalError(c, "Failed to approve withdrawal")
	}
	return utils.Success(c, fiber.Map{"message": "Withdrawal approved"})
}

func (h *AdminHandler) RejectWithdrawalRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid request id")
	}

	if err := h.walletService.RejectWithdrawal(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, repositories.ErrRequestNotFound):
			return utils.NotFound(c, "Request not found")
		case errors.Is(err, wallet.ErrRequestSettled):
			return utils.Conflict(c, err.Error())
		}
		return utils.InternalError(c, "Failed to reject withdrawal")
	}
	return utils.Success(c, fiber.Map{"message": "Withdrawal rejected"})
}

// ManualCredit lets an operator fix a balance by phone number, with the
// paired transaction record written as usual.
func (h *AdminHandler) ManualCredit(c *fiber.Ctx) error {
	var input struct {
		Phone  string  `json:"phone"`
		Amount float64 `json:"amount"`
		Reason string  `json:"reason"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}
	if input.Reason == "" {
		return utils.BadRequest(c, "Reason is required")
	}

	user, err := h.walletService.ManualCredit(c.Context(), input.Phone, input.Amount, input.Reason)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrUserNotFound):
			return utils.NotFound(c, "User not found")
		case errors.Is(err, wallet.ErrInvalidAmount):
			return utils.BadRequest(c, err.Error())
		}
		return utils.InternalError(c, "Failed to credit user")
	}

	return utils.Success(c, fiber.Map{
		"message": "Credit applied",
		"balance": user.WalletBalance,
	})
}

// Users

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	users, total, err := h.userRepo.List(c.Context(), limit, offset)
	if err != nil {
		return utils.InternalError(c, "Failed to list users")
	}
	return utils.Success(c, fiber.Map{"users": users, "total": total})
}

// GetUser assembles the per-user operator view: profile, balance,
// referral state, gig history, ledger entries and coupon usage.
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid user ID")
	}

	user, err := h.ledger.GetUserByID(c.Context(), id)
	if err != nil {
		return utils.NotFound(c, "User not found")
	}

	transactions, err := h.ledger.ListTransactions(c.Context(), id, 100, 0)
	if err != nil {
		return utils.InternalError(c, "Failed to load transactions")
	}
	gigs, err := h.ledger.ListGigsByUser(c.Context(), id)
	if err != nil {
		return utils.InternalError(c, "Failed to load gigs")
	}

	coupons, err := h.ledger.ListCoupons(c.Context())
	if err != nil {
		return utils.InternalError(c, "Failed to load coupons")
	}
	couponUsage := fiber.Map{}
	for _, coupon := range coupons {
		uses, err := h.ledger.GetCouponUsage(c.Context(), id, coupon.Code)
		if err != nil {
			return utils.InternalError(c, "Failed to load coupon usage")
		}
		if uses > 0 {
			couponUsage[coupon.Code] = uses
		}
	}

	return utils.Success(c, fiber.Map{
		"user": user,
		"referral": fiber.Map{
			"code":                     user.ReferralCode,
			"referred_by":              user.ReferredByCode,
			"first_recharge_completed": user.FirstRechargeCompleted,
		},
		"transactions": transactions,
		"gigs":         gigs,
		"coupon_usage": couponUsage,
	})
}

func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid user id")
	}

	if err := h.userRepo.Delete(c.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return utils.NotFound(c, "User not found")
		}
		return utils.InternalError(c, "Failed to delete user")
	}
	return utils.Success(c, fiber.Map{"message": "User deleted"})
}

// Coupons

func (h *AdminHandler) ListCoupons(c *fiber.Ctx) error {
	coupons, err := h.ledger.ListCoupons(c.Context())
	if err != nil {
		return utils.InternalError(c, "Failed to list coupons")
	}
	return utils.Success(c, fiber.Map{"coupons": coupons})
}

func (h *AdminHandler) CreateCoupon(c *fiber.Ctx) error {
	var coupon models.Coupon
	if err := c.BodyParser(&coupon); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}
	if coupon.Code == "" || coupon.BonusPercentage <= 0 || coupon.MaxUsesPerUser <= 0 {
		return utils.BadRequest(c, "Code, bonus percentage and max uses are required")
	}

	if err := h.ledger.CreateCoupon(c.Context(), &coupon); err != nil {
		return utils.Conflict(c, "Coupon already exists")
	}
	return utils.Created(c, fiber.Map{"coupon": coupon})
}

func (h *AdminHandler) UpdateCoupon(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid coupon id")
	}

	var coupon models.Coupon
	if err := c.BodyParser(&coupon); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}
	coupon.ID = id

	if err := h.ledger.UpdateCoupon(c.Context(), &coupon); err != nil {
		if errors.Is(err, repositories.ErrCouponNotFound) {
			return utils.NotFound(c, "Coupon not found")
		}
		return utils.InternalError(c, "Failed to update coupon")
	}
	return utils.Success(c, fiber.Map{"coupon": coupon})
}

func (h *AdminHandler) DeleteCoupon(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid coupon id")
	}

	if err := h.ledger.DeleteCoupon(c.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrCouponNotFound) {
			return utils.NotFound(c, "Coupon not found")
		}
		return utils.InternalError(c, "Failed to delete coupon")
	}
	return utils.Success(c, fiber.Map{"message": "Coupon deleted"})
}

// Platform settings

func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.ledger.GetSettings(c.Context())
	if err != nil {
		return utils.InternalError(c, "Failed to get settings")
	}
	return utils.Success(c, fiber.Map{"settings": settings})
}

func (h *AdminHandler) UpdateSettings(c *fiber.Ctx) error {
	var settings models.PlatformSettings
	if err := c.BodyParser(&settings); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}
	if settings.PlatformFee < 0 || settings.PlatformFee >= 1 {
		return utils.BadRequest(c, "Platform fee must be a fraction between 0 and 1")
	}

	if err := h.ledger.UpdateSettings(c.Context(), &settings); err != nil {
		return utils.InternalError(c, "Failed to update settings")
	}
	return utils.Success(c, fiber.Map{"settings": settings})
}
