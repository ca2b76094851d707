package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Resolver maps a chat phone number to a customer id.
type Resolver interface {
	LookupID(ctx context.Context, phone string) (string, bool, error)
}

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service   *Service
	customers Resolver
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, customers Resolver) *Handler {
	return &Handler{service: service, customers: customers}
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type amountRequest struct {
	Phone  string          `json:"phone"`
	Amount json.RawMessage `json:"amount"`
}

type historyRequest struct {
	Phone string `json:"phone"`
	Limit int    `json:"limit"`
}

// AmountScale is the number of decimal places every stored amount carries.
const AmountScale int32 = 2

// maxAmount is the first magnitude a NUMERIC(18, 2) column cannot hold.
var maxAmount = decimal.New(1, 18-AmountScale)

// ValidAmount reports whether d fits the stored precision without rounding.
func ValidAmount(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale)) && d.Abs().LessThan(maxAmount)
}

// ParseAmount strictly decodes a JSON number or numeric string into a decimal.
// Amounts with more than AmountScale decimal places are rejected.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	text := string(raw)
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return decimal.Decimal{}, ErrInvalidAmount
		}
		text = strings.TrimSpace(unquoted)
	}
	if text == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(text)
	if err != nil || !ValidAmount(amount) {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return amount, nil
}

// Money renders an amount as a two-decimal JSON number.
func Money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(AmountScale))
}

// Check returns both balances.
func (h *Handler) Check(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	customerID, err := h.resolve(c, req.Phone)
	if err != nil {
		return err
	}
	snap, err := h.service.Check(c.UserContext(), customerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"customer_id":       customerID,
			"available_balance": Money(snap.Available),
			"pending_balance":   Money(snap.Pending),
			"currency":          snap.Currency,
		},
	})
}

// Update adjusts the available balance by a signed amount.
func (h *Handler) Update(c *fiber.Ctx) error {
	customerID, amount, err := h.parseAmountRequest(c)
	if err != nil {
		return err
	}
	res, err := h.service.AdjustAvailable(c.UserContext(), customerID, amount)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"customer_id": customerID,
			"old_balance": Money(res.OldAvailable),
			"new_balance": Money(res.NewAvailable),
			"currency":    res.Currency,
			"message":     "Wallet balance updated successfully.",
		},
	})
}

// TopUp credits purchased funds to the available balance.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	customerID, amount, err := h.parseAmountRequest(c)
	if err != nil {
		return err
	}
	res, err := h.service.CreditTopUp(c.UserContext(), customerID, amount)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"customer_id":  customerID,
			"amount_added": Money(amount),
			"old_balance":  Money(res.OldAvailable),
			"new_balance":  Money(res.NewAvailable),
			"currency":     res.Currency,
		},
	})
}

// Hold moves funds from available to pending.
func (h *Handler) Hold(c *fiber.Ctx) error {
	customerID, amount, err := h.parseAmountRequest(c)
	if err != nil {
		return err
	}
	res, err := h.service.Hold(c.UserContext(), customerID, amount)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"customer_id":           customerID,
			"amount_held":           Money(res.Amount),
			"new_available_balance": Money(res.Available),
			"new_pending_balance":   Money(res.Pending),
			"currency":              res.Currency,
			"message":               "Funds successfully held for assessment.",
		},
	})
}

// Release returns held funds to available.
func (h *Handler) Release(c *fiber.Ctx) error {
	customerID, amount, err := h.parseAmountRequest(c)
	if err != nil {
		return err
	}
	res, err := h.service.Release(c.UserContext(), customerID, amount)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"customer_id":           customerID,
			"amount_released":       Money(res.Amount),
			"new_available_balance": Money(res.Available),
			"new_pending_balance":   Money(res.Pending),
			"currency":              res.Currency,
			"message":               "Funds successfully released from pending.",
		},
	})
}

// DeductPending consumes held funds.
func (h *Handler) DeductPending(c *fiber.Ctx) error {
	customerID, amount, err := h.parseAmountRequest(c)
	if err != nil {
		return err
	}
	res, err := h.service.DeductFromPending(c.UserContext(), customerID, amount)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"customer_id":         customerID,
			"amount_deducted":     Money(res.Amount),
			"new_pending_balance": Money(res.Pending),
			"currency":            res.Currency,
			"message":             "Amount successfully deducted from pending balance.",
		},
	})
}

// History lists recent wallet journal entries.
func (h *Handler) History(c *fiber.Ctx) error {
	var req historyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	customerID, err := h.resolve(c, req.Phone)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), customerID, req.Limit)
	if err != nil {
		return toHTTPError(err)
	}
	items := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		items = append(items, fiber.Map{
			"id":              e.ID,
			"kind":            e.Kind,
			"reference":       e.Reference,
			"available_delta": Money(e.AvailableDelta),
			"pending_delta":   Money(e.PendingDelta),
			"available_after": Money(e.AvailableAfter),
			"pending_after":   Money(e.PendingAfter),
			"created_at":      e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"customer_id": customerID,
			"currency":    h.service.Currency(),
			"entries":     items,
		},
	})
}

func (h *Handler) parseAmountRequest(c *fiber.Ctx) (string, decimal.Decimal, error) {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return "", decimal.Decimal{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Phone) == "" {
		return "", decimal.Decimal{}, fiber.NewError(http.StatusBadRequest, "phone number is required")
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return "", decimal.Decimal{}, toHTTPError(err)
	}
	customerID, err := h.resolve(c, req.Phone)
	if err != nil {
		return "", decimal.Decimal{}, err
	}
	return customerID, amount, nil
}

func (h *Handler) resolve(c *fiber.Ctx, phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", fiber.NewError(http.StatusBadRequest, "phone number is required")
	}
	id, found, err := h.customers.LookupID(c.UserContext(), phone)
	if err != nil {
		return "", fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return "", toHTTPError(ErrNotFound)
	}
	return id, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Customer not found.")
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "A valid amount is required.")
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "Insufficient available balance.")
	case errors.Is(err, ErrInsufficientHeldFunds):
		return fiber.NewError(http.StatusBadRequest, "Insufficient pending balance.")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
