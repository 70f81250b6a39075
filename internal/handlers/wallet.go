package handlers

import (
	"errors"
	"strconv"

	"delu/internal/repositories"
	"delu/internal/services/wallet"
	"delu/internal/storage"
	"delu/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type WalletHandler struct {
	walletService wallet.Service
	store         storage.Store
}

func NewWalletHandler(walletService wallet.Service, store storage.Store) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		store:         store,
	}
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	balance, err := h.walletService.GetBalance(c.Context(), claims.UserID)
	if err != nil {
		return utils.InternalError(c, "Failed to get balance")
	}
	return utils.Success(c, fiber.Map{"balance": balance})
}

func (h *WalletHandler) GetTransactions(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	txns, err := h.walletService.GetTransactions(c.Context(), claims.UserID, limit, offset)
	if err != nil {
		return utils.InternalError(c, "Failed to get transactions")
	}
	return utils.Success(c, fiber.Map{"transactions": txns})
}

// RequestLoad files a top-up request with UPI payment proof. The balance is
// credited only when an admin approves the request.
func (h *WalletHandler) RequestLoad(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	amount, err := strconv.ParseFloat(c.FormValue("amount"), 64)
	if err != nil {
		return utils.BadRequest(c, "Invalid amount")
	}

	in := wallet.LoadRequestInput{
		Amount:     amount,
		UTR:        c.FormValue("utr"),
		CouponCode: c.FormValue("coupon_code"),
	}

	if file, ferr := c.FormFile("screenshot"); ferr == nil && h.store != nil {
		if url, serr := h.store.Save(file, "payment-proofs"); serr == nil {
			in.ScreenshotURL = url
		}
	}

	req, err := h.walletService.RequestLoad(c.Context(), claims.UserID, in)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInvalidAmount):
			return utils.BadRequest(c, err.Error())
		case errors.Is(err, wallet.ErrCouponInactive), errors.Is(err, wallet.ErrCouponQuotaReached),
			errors.Is(err, repositories.ErrCouponNotFound):
			return utils.BadRequest(c, err.Error())
		}
		return utils.InternalError(c, "Failed to create load request")
	}

	return utils.Created(c, fiber.Map{"request": req})
}

func (h *WalletHandler) RequestWithdrawal(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		Amount float64 `json:"amount"`
		UPIID  string  `json:"upi_id"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	req, err := h.walletService.RequestWithdrawal(c.Context(), claims.UserID, input.Amount, input.UPIID)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInvalidAmount):
			return utils.BadRequest(c, err.Error())
		case errors.Is(err, wallet.ErrInsufficientBalance):
			return utils.BadRequest(c, "Insufficient balance")
		}
		return utils.InternalError(c, "Failed to create withdrawal request")
	}

	return utils.Created(c, fiber.Map{"request": req})
}

func (h *WalletHandler) ValidateCoupon(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	code := c.Params("code")
	coupon, err := h.walletService.ValidateCoupon(c.Context(), claims.UserID, code)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrCouponNotFound):
			return utils.NotFound(c, "Coupon not found")
		case errors.Is(err, wallet.ErrCouponInactive), errors.Is(err, wallet.ErrCouponQuotaReached):
			return utils.BadRequest(c, err.Error())
		}
		return utils.InternalError(c, "Failed to validate coupon")
	}

	return utils.Success(c, fiber.Map{
		"code":             coupon.Code,
		"bonus_percentage": coupon.BonusPercentage,
	})
}
