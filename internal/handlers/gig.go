package handlers

import (
	"errors"
	"strconv"
	"time"

	"delu/internal/models"
	"delu/internal/services/gig"
	"delu/internal/services/wallet"
	"delu/internal/storage"
	"delu/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type GigHandler struct {
	gigService gig.Service
	store      storage.Store
}

func NewGigHandler(gigService gig.Service, store storage.Store) *GigHandler {
	return &GigHandler{
		gigService: gigService,
		store:      store,
	}
}

func (h *GigHandler) CreateGig(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		ParcelInfo       string    `json:"parcel_info"`
		PickupBlock      string    `json:"pickup_block"`
		DestinationBlock string    `json:"destination_block"`
		Size             string    `json:"size"`
		Note             string    `json:"note"`
		BasePrice        float64   `json:"base_price"`
		IsUrgent         bool      `json:"is_urgent"`
		DeliveryDeadline time.Time `json:"delivery_deadline"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	created, err := h.gigService.Create(c.Context(), claims.UserID, gig.CreateInput{
		ParcelInfo:       input.ParcelInfo,
		PickupBlock:      input.PickupBlock,
		DestinationBlock: input.DestinationBlock,
		Size:             input.Size,
		Note:             input.Note,
		BasePrice:        input.BasePrice,
		IsUrgent:         input.IsUrgent,
		DeliveryDeadline: input.DeliveryDeadline,
	})
	if err != nil {
		switch {
		case errors.Is(err, gig.ErrInvalidInput), errors.Is(err, gig.ErrUrgentDeadline):
			return utils.BadRequest(c, err.Error())
		case errors.Is(err, wallet.ErrInsufficientBalance):
			return utils.BadRequest(c, "Insufficient wallet balance to escrow the gig price")
		}
		return utils.InternalError(c, "Failed to create gig")
	}

	return utils.Created(c, fiber.Map{
		"gig": created,
		// The OTP goes only to the requester, who reveals it at handoff.
		"otp": created.OTP,
	})
}

// publicGigView shapes a gig for the unauthenticated feed: enough to decide
// whether to take the job, with the requester's contact details withheld.
func publicGigView(g models.Gig) fiber.Map {
	return fiber.Map{
		"id":                g.ID,
		"parcel_info":       g.ParcelInfo,
		"pickup_block":      g.PickupBlock,
		"destination_block": g.DestinationBlock,
		"size":              g.Size,
		"is_urgent":         g.IsUrgent,
		"price":             g.Price,
		"delivery_deadline": g.DeliveryDeadline,
		"status":            g.Status,
		"requester_name":    g.Requester.Name,
		"created_at":        g.CreatedAt,
	}
}

func (h *GigHandler) ListOpenGigs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	gigs, err := h.gigService.ListOpen(c.Context(), limit, offset)
	if err != nil {
		return utils.InternalError(c, "Failed to list gigs")
	}

	feed := make([]fiber.Map, 0, len(gigs))
	for _, g := range gigs {
		feed = append(feed, publicGigView(g))
	}
	return utils.Success(c, fiber.Map{"gigs": feed})
}

func (h *GigHandler) ListMyGigs(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	gigs, err := h.gigService.ListForUser(c.Context(), claims.UserID)
	if err != nil {
		return utils.InternalError(c, "Failed to list gigs")
	}
	return utils.Success(c, fiber.Map{"gigs": gigs})
}

func (h *GigHandler) GetGig(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	gigID, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid gig id")
	}

	found, err := h.gigService.Get(c.Context(), gigID)
	if err != nil {
		return utils.NotFound(c, "Gig not found")
	}

	resp := fiber.Map{"gig": found}
	// Only the requester may see the completion OTP.
	if found.RequesterID == claims.UserID {
		resp["otp"] = found.OTP
	}
	return utils.Success(c, resp)
}

func (h *GigHandler) AcceptGig(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	gigID, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid gig id")
	}

	var selfieURL string
	if file, ferr := c.FormFile("selfie"); ferr == nil && h.store != nil {
		if url, serr := h.store.Save(file, "selfies"); serr == nil {
			selfieURL = url
		}
	}

	accepted, err := h.gigService.Accept(c.Context(), gigID, claims.UserID, selfieURL)
	if err != nil {
		var tooNew *gig.AccountTooNewError
		switch {
		case errors.As(err, &tooNew):
			return utils.Forbidden(c, tooNew.Error())
		case errors.Is(err, gig.ErrOwnGig):
			return utils.BadRequest(c, err.Error())
		case errors.Is(err, gig.ErrGigUnavailable):
			return utils.Conflict(c, err.Error())
		}
		return utils.InternalError(c, "Failed to accept gig")
	}

	return utils.Success(c, fiber.Map{"gig": accepted})
}

func (h *GigHandler) CompleteGig(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	gigID, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid gig id")
	}

	var input struct {
		OTP string `json:"otp"`
	}
	if err := c.BodyParser(&input); err != nil || input.OTP == "" {
		return utils.BadRequest(c, "OTP is required")
	}

	completed, err := h.gigService.Complete(c.Context(), gigID, claims.UserID, input.OTP)
	if err != nil {
		switch {
		case errors.Is(err, gig.ErrNotParticipant):
			return utils.Forbidden(c, err.Error())
		case errors.Is(err, gig.ErrWrongStatus):
			return utils.Conflict(c, err.Error())
		case errors.Is(err, gig.ErrOTPMismatch):
			return utils.BadRequest(c, err.Error())
		case errors.Is(err, gig.ErrTooManyOTPAttempts):
			return utils.TooManyRequests(c, err.Error())
		}
		return utils.InternalError(c, "Failed to complete gig")
	}

	return utils.Success(c, fiber.Map{"gig": completed})
}

func (h *GigHandler) RateGig(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	gigID, err := parseID(c, "id")
	if err != nil {
		return utils.BadRequest(c, "Invalid gig id")
	}

	var input struct {
		Rating   int    `json:"rating"`
		Comments string `json:"comments"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	err = h.gigService.Rate(c.Context(), gigID, claims.UserID, input.Rating, input.Comments)
	if err != nil {
		switch {
		case errors.Is(err, gig.ErrInvalidRating):
			return utils.BadRequest(c, err.Error())
		case errors.Is(err, gig.ErrNotParticipant):
			return utils.Forbidden(c, err.Error())
		case errors.Is(err, gig.ErrWrongStatus):
			return utils.Conflict(c, err.Error())
		case errors.Is(err, gig.ErrAlreadyRated):
			return utils.Conflict(c, err.Error())
		}
		return utils.InternalError(c, "Failed to submit rating")
	}

	return utils.Success(c, fiber.Map{"message": "Rating submitted"})
}

func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
