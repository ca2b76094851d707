package customer

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const noOrdersLabel = "No previous orders"

// OrderHistory reports the status of a customer's most recent order.
type OrderHistory interface {
	LatestStatus(ctx context.Context, customerID string) (string, bool, error)
}

// Handler exposes customer endpoints.
type Handler struct {
	service *Service
	orders  OrderHistory
}

// NewHandler constructs a customer HTTP handler.
func NewHandler(service *Service, orders OrderHistory) *Handler {
	return &Handler{service: service, orders: orders}
}

type checkRequest struct {
	Phone string `json:"phone"`
}

type createRequest struct {
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Check looks a customer up by phone and reports their last order status.
func (h *Handler) Check(c *fiber.Ctx) error {
	var req checkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Phone == "" {
		return fiber.NewError(http.StatusBadRequest, "Phone number is required.")
	}
	cust, err := h.service.Lookup(c.UserContext(), req.Phone)
	if errors.Is(err, ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"status": "not_found"})
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	lastStatus := noOrdersLabel
	if h.orders != nil {
		status, found, err := h.orders.LatestStatus(c.UserContext(), cust.ID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		if found {
			lastStatus = status
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "found",
		"data": fiber.Map{
			"customer_id":       cust.ID,
			"customer_name":     cust.Name(),
			"last_order_status": lastStatus,
		},
	})
}

// Create registers a new customer.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	cust, err := h.service.Create(c.UserContext(), CreateInput{
		Phone:     req.Phone,
		Name:      req.Name,
		Address:   req.Address,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, "Phone, name, and (address or location coordinates) are required.")
	case errors.Is(err, ErrExists):
		return fiber.NewError(http.StatusConflict, "Customer already exists.")
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status": "created",
		"data": fiber.Map{
			"customer_id":   cust.ID,
			"customer_name": cust.Name(),
			"message":       "New customer created successfully.",
		},
	})
}
