package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
	"github.com/ashish6318/skillbarter-sub001/internal/repository"
	"github.com/ashish6318/skillbarter-sub001/internal/services"
)

type CreditHandler struct {
	service  creditApplicationService
	userRepo userBalanceReader
}

type creditApplicationService interface {
	Purchase(ctx context.Context, userID int64, amount int64, paymentMethod string) (*models.CreditTransaction, error)
	Transfer(ctx context.Context, fromUserID, toUserID, amount int64, description string) (*services.TransferResult, error)
	History(ctx context.Context, userID int64, filter repository.TransactionListFilter) ([]models.CreditTransaction, int, error)
	Stats(ctx context.Context, userID int64, period string) (*services.CreditStats, error)
}

type userBalanceReader interface {
	GetCredits(ctx context.Context, userID int64) (int64, error)
}

func NewCreditHandler(service *services.LedgerService, userRepo *repository.UserRepository) *CreditHandler {
	return &CreditHandler{service: service, userRepo: userRepo}
}

type purchaseRequest struct {
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

type transferRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (h *CreditHandler) GetBalance(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	credits, err := h.userRepo.GetCredits(c.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to fetch balance"})
	}

	return c.JSON(fiber.Map{"credits": credits})
}

func (h *CreditHandler) Purchase(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		req.PaymentMethod = "card"
	}

	transaction, err := h.service.Purchase(c.Context(), userID, req.Amount, req.PaymentMethod)
	if err != nil {
		return mapCreditError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"transaction": transaction,
		"credits":     transaction.BalanceAfter,
	})
}

func (h *CreditHandler) Transfer(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.service.Transfer(c.Context(), userID, req.RecipientID, req.Amount, strings.TrimSpace(req.Description))
	if err != nil {
		return mapCreditError(c, err)
	}

	return c.JSON(fiber.Map{"transfer": result})
}

func (h *CreditHandler) History(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	page, limit := normalizePage(c.QueryInt("page", 1), c.QueryInt("limit", defaultPageLimit))

	transactions, total, err := h.service.History(c.Context(), userID, repository.TransactionListFilter{
		Type:   strings.TrimSpace(c.Query("type")),
		Status: strings.TrimSpace(c.Query("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return mapCreditError(c, err)
	}

	return c.JSON(fiber.Map{
		"transactions": transactions,
		"pagination":   buildPaginationMeta(page, limit, total),
	})
}

func (h *CreditHandler) Stats(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	stats, err := h.service.Stats(c.Context(), userID, strings.TrimSpace(c.Query("period")))
	if err != nil {
		return mapCreditError(c, err)
	}

	return c.JSON(fiber.Map{"stats": stats})
}

func mapCreditError(c *fiber.Ctx, err error) error {
	var insufficient *services.InsufficientCreditsError

	switch {
	case errors.As(err, &insufficient):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":     "Insufficient credits",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.Is(err, services.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Amount must be greater than 0"})
	case errors.Is(err, services.ErrInvalidPeriod):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "period must be 7d, 30d or 90d"})
	case errors.Is(err, services.ErrSelfTransfer):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot transfer credits to yourself"})
	case errors.Is(err, services.ErrRecipientNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recipient not found"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to process credit request"})
	}
}
