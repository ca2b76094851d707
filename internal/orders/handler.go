package orders

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/wallet"
)

// Handler exposes order endpoints.
type Handler struct {
	service   *Service
	customers wallet.Resolver
	currency  string
}

// NewHandler builds an order HTTP handler.
func NewHandler(service *Service, customers wallet.Resolver, currency string) *Handler {
	return &Handler{service: service, customers: customers, currency: currency}
}

type itemRequest struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    json.RawMessage `json:"unit_price"`
	TopUpValue   json.RawMessage `json:"topup_value"`
	TopUp        bool            `json:"topup"`
	Subscription bool            `json:"subscription"`
}

type createRequest struct {
	Phone         string          `json:"phone"`
	EstimatedCost json.RawMessage `json:"estimated_cost"`
	Items         []itemRequest   `json:"items"`
}

type statusRequest struct {
	Status string          `json:"status"`
	Total  json.RawMessage `json:"total"`
}

type subscriptionRequest struct {
	Phone string        `json:"phone"`
	Items []itemRequest `json:"items"`
}

// Create places an order or, without items, a pickup request.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	customerID, err := h.resolve(c, req.Phone)
	if err != nil {
		return err
	}

	estimated := decimal.Zero
	if present(req.EstimatedCost) {
		estimated, err = wallet.ParseAmount(req.EstimatedCost)
		if err != nil || estimated.IsNegative() {
			return toHTTPError(wallet.ErrInvalidAmount)
		}
	}
	items, err := parseItems(req.Items)
	if err != nil {
		return toHTTPError(err)
	}

	order, err := h.service.Create(c.UserContext(), CreateInput{
		CustomerID:    customerID,
		EstimatedCost: estimated,
		Items:         items,
	})
	if err != nil {
		return toHTTPError(err)
	}

	message := "Order created successfully."
	if order.Status == StatusPendingAssessment {
		message = "Pickup request created. Estimated cost is held until assessment."
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"order_id":       order.ID,
			"order_status":   order.Status,
			"order_total":    wallet.Money(order.Total),
			"estimated_cost": wallet.Money(order.EstimatedCost),
			"currency":       h.currency,
			"message":        message,
		},
	})
}

// UpdateStatus transitions an order and reports the wallet side effects.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	in := TransitionInput{OrderID: c.Params("orderId"), Status: strings.TrimSpace(req.Status)}
	if present(req.Total) {
		total, err := wallet.ParseAmount(req.Total)
		if err != nil {
			return toHTTPError(err)
		}
		in.Total = decimal.NewNullDecimal(total)
	}

	res, err := h.service.Transition(c.UserContext(), in)
	if err != nil {
		return toHTTPError(err)
	}

	data := fiber.Map{
		"order_id":        res.Order.ID,
		"previous_status": res.PreviousStatus,
		"order_status":    res.Order.Status,
		"order_total":     wallet.Money(res.Order.Total),
		"topup_credited":  wallet.Money(res.TopUpCredited),
		"currency":        h.currency,
	}
	if s := res.Settlement; s != nil {
		data["settlement"] = fiber.Map{
			"deducted_from_pending":   wallet.Money(s.DeductPending),
			"released_to_available":   wallet.Money(s.ReleasePending),
			"deducted_from_available": wallet.Money(s.DeductAvailable),
			"shortfall":               wallet.Money(s.Shortfall),
			"manual_intervention":     s.ManualIntervention,
			"replayed":                s.Replayed,
			"available_balance":       wallet.Money(s.Available),
			"pending_balance":         wallet.Money(s.Pending),
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "success", "data": data})
}

// SubscriptionPayment credits the top-up lines of a subscription renewal.
func (h *Handler) SubscriptionPayment(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	customerID, err := h.resolve(c, req.Phone)
	if err != nil {
		return err
	}
	items, err := parseItems(req.Items)
	if err != nil {
		return toHTTPError(err)
	}

	subscriptionID := c.Params("subscriptionId")
	amount, adj, err := h.service.ApplySubscriptionPayment(c.UserContext(), SubscriptionPayment{
		SubscriptionID: subscriptionID,
		CustomerID:     customerID,
		Items:          items,
	})
	if err != nil {
		return toHTTPError(err)
	}

	data := fiber.Map{
		"subscription_id": subscriptionID,
		"customer_id":     customerID,
		"amount_credited": wallet.Money(amount),
		"currency":        h.currency,
	}
	if amount.IsPositive() {
		data["old_balance"] = wallet.Money(adj.OldAvailable)
		data["new_balance"] = wallet.Money(adj.NewAvailable)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "success", "data": data})
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
		return "", toHTTPError(ErrCustomerNotFound)
	}
	return id, nil
}

func parseItems(in []itemRequest) ([]Item, error) {
	items := make([]Item, 0, len(in))
	for _, r := range in {
		price, err := wallet.ParseAmount(r.UnitPrice)
		if err != nil || price.IsNegative() {
			return nil, wallet.ErrInvalidAmount
		}
		lineTotal := price.Mul(decimal.NewFromInt(int64(r.Quantity)))
		if !wallet.ValidAmount(lineTotal) {
			return nil, wallet.ErrInvalidAmount
		}
		item := Item{
			ProductID:    r.ProductID,
			Name:         r.Name,
			Quantity:     r.Quantity,
			LineTotal:    lineTotal,
			TopUp:        r.TopUp,
			Subscription: r.Subscription,
		}
		if present(r.TopUpValue) {
			value, err := wallet.ParseAmount(r.TopUpValue)
			if err != nil || value.IsNegative() {
				return nil, wallet.ErrInvalidAmount
			}
			item.TopUpValue = decimal.NewNullDecimal(value)
		}
		items = append(items, item)
	}
	return items, nil
}

func present(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Order not found.")
	case errors.Is(err, ErrCustomerNotFound), errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Customer not found.")
	case errors.Is(err, ErrInvalidStatus):
		return fiber.NewError(http.StatusBadRequest, "Unknown order status.")
	case errors.Is(err, ErrNoItems):
		return fiber.NewError(http.StatusBadRequest, "At least one item needs a positive quantity.")
	case errors.Is(err, wallet.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "A valid amount is required.")
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "Insufficient available balance.")
	case errors.Is(err, wallet.ErrInsufficientHeldFunds):
		return fiber.NewError(http.StatusBadRequest, "Insufficient pending balance.")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
