package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	StatusPending           = "pending"
	StatusPendingAssessment = "pending-assessment"
	StatusProcessing        = "processing"
	StatusOnHold            = "on-hold"
	StatusCompleted         = "completed"
	StatusCancelled         = "cancelled"
	StatusRefunded          = "refunded"
	StatusFailed            = "failed"
)

var statusLabels = map[string]string{
	StatusPending:           "Pending payment",
	StatusPendingAssessment: "Pending Assessment",
	StatusProcessing:        "Processing",
	StatusOnHold:            "On hold",
	StatusCompleted:         "Completed",
	StatusCancelled:         "Cancelled",
	StatusRefunded:          "Refunded",
	StatusFailed:            "Failed",
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	_, ok := statusLabels[s]
	return ok
}

// StatusLabel returns the human readable name of a status.
func StatusLabel(s string) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return s
}

// Item is an order or subscription line.
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	LineTotal decimal.Decimal
	// TopUpValue is the wallet credit per unit; when unset the line total is credited.
	TopUpValue   decimal.NullDecimal
	TopUp        bool
	Subscription bool
}

// Order is a storefront order.
type Order struct {
	ID                string
	CustomerID        string
	Status            string
	Total             decimal.Decimal
	EstimatedCost     decimal.Decimal
	TopUpFundsApplied bool
	Settled           bool
	Items             []Item
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateInput describes a new order. Without items it is a pickup request.
type CreateInput struct {
	CustomerID    string
	EstimatedCost decimal.Decimal
	Items         []Item
}

// TransitionInput moves an order to a new status, optionally fixing its final total.
type TransitionInput struct {
	OrderID string
	Status  string
	Total   decimal.NullDecimal
}

// SubscriptionPayment is a completed subscription renewal.
type SubscriptionPayment struct {
	SubscriptionID string
	CustomerID     string
	Items          []Item
}
