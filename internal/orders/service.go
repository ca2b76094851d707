package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/logging"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/notification"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/wallet"
)

const notifyTimeout = 5 * time.Second

// Wallet is the subset of the wallet ledger driven by order events.
type Wallet interface {
	Hold(ctx context.Context, customerID string, amount decimal.Decimal) (wallet.Movement, error)
	Release(ctx context.Context, customerID string, amount decimal.Decimal) (wallet.Movement, error)
	Settle(ctx context.Context, in wallet.SettlementInput) (wallet.Settlement, error)
	CreditTopUp(ctx context.Context, customerID string, amount decimal.Decimal) (wallet.Adjustment, error)
	CreditTopUpOnce(ctx context.Context, customerID string, amount decimal.Decimal) (wallet.Adjustment, bool, error)
}

// Directory reports whether a customer exists.
type Directory interface {
	Exists(ctx context.Context, customerID string) (bool, error)
}

// Service runs the order lifecycle and the wallet side effects it triggers.
type Service struct {
	repo      Repository
	wallet    Wallet
	customers Directory
	locker    wallet.Locker
	notifier  notification.Notifier
	logger    *slog.Logger
	dispatch  func(func())
}

// NewService builds an order service. locker serializes transitions per order.
func NewService(repo Repository, w Wallet, customers Directory, locker wallet.Locker, notifier notification.Notifier, logger *slog.Logger) *Service {
	if locker == nil {
		locker = wallet.NewLocalLocker()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:      repo,
		wallet:    w,
		customers: customers,
		locker:    locker,
		notifier:  notifier,
		logger:    logger,
		dispatch:  func(f func()) { go f() },
	}
}

// TransitionResult reports what a status change did.
type TransitionResult struct {
	Order          Order
	PreviousStatus string
	Settlement     *wallet.Settlement
	TopUpCredited  decimal.Decimal
}

// Create places an order. A pickup request (no items) with a positive
// estimated cost holds that amount first and is not persisted if the hold fails.
// Orders with items are priced from their lines; EstimatedCost is ignored for them.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	ok, err := s.customers.Exists(ctx, in.CustomerID)
	if err != nil {
		return Order{}, fmt.Errorf("lookup customer: %w", err)
	}
	if !ok {
		return Order{}, ErrCustomerNotFound
	}

	now := time.Now().UTC()
	order := Order{
		ID:            uuid.New().String(),
		CustomerID:    in.CustomerID,
		Total:         decimal.Zero,
		EstimatedCost: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	items := validItems(in.Items)
	if len(in.Items) > 0 && len(items) == 0 {
		return Order{}, ErrNoItems
	}
	held := false
	if len(items) == 0 {
		order.Status = StatusPendingAssessment
		if in.EstimatedCost.IsPositive() {
			if _, err := s.wallet.Hold(s.reference(ctx, order.ID), order.CustomerID, in.EstimatedCost); err != nil {
				return Order{}, err
			}
			order.EstimatedCost = in.EstimatedCost
			held = true
		}
	} else {
		order.Status = StatusPending
		order.Items = items
		order.Total = orderTotal(items)
	}

	if err := s.repo.Create(ctx, order); err != nil {
		if held {
			if _, rerr := s.wallet.Release(s.reference(ctx, order.ID), order.CustomerID, order.EstimatedCost); rerr != nil {
				s.logger.Error("release hold after failed order create",
					slog.String("order_id", order.ID),
					slog.String("customer_id", order.CustomerID),
					slog.Any("error", rerr),
				)
			}
		}
		return Order{}, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created",
		slog.String("order_id", order.ID),
		slog.String("customer_id", order.CustomerID),
		slog.String("status", order.Status),
		slog.String("estimated_cost", order.EstimatedCost.String()),
	)
	return order, nil
}

// Transition moves an order to a new status. Leaving pending-assessment for
// processing or completed settles the held estimate against the final total;
// reaching completed credits top-up lines once. Both wallet steps are keyed
// by the order reference, so retrying after a failed order write moves no
// money twice.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (TransitionResult, error) {
	if !ValidStatus(in.Status) {
		return TransitionResult{}, ErrInvalidStatus
	}
	if in.Total.Valid && (in.Total.Decimal.IsNegative() || !wallet.ValidAmount(in.Total.Decimal)) {
		return TransitionResult{}, wallet.ErrInvalidAmount
	}

	unlock, err := s.locker.Lock(ctx, "order:"+in.OrderID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("lock order: %w", err)
	}
	defer unlock()

	order, err := s.repo.Get(ctx, in.OrderID)
	if err != nil {
		return TransitionResult{}, err
	}
	result := TransitionResult{PreviousStatus: order.Status, TopUpCredited: decimal.Zero}

	if in.Total.Valid {
		order.Total = in.Total.Decimal
	}
	if order.Status == in.Status && !in.Total.Valid {
		result.Order = order
		return result, nil
	}

	refCtx := s.reference(ctx, order.ID)
	if !order.Settled && order.Status == StatusPendingAssessment && (in.Status == StatusProcessing || in.Status == StatusCompleted) {
		settlement, err := s.wallet.Settle(refCtx, wallet.SettlementInput{
			CustomerID: order.CustomerID,
			OrderID:    order.ID,
			Total:      order.Total,
			Estimated:  order.EstimatedCost,
		})
		if err != nil {
			return TransitionResult{}, fmt.Errorf("settle order: %w", err)
		}
		result.Settlement = &settlement
		order.Settled = true
	}

	if in.Status == StatusCompleted && !order.TopUpFundsApplied {
		if amount := OrderTopUpAmount(order.Items); amount.IsPositive() {
			if _, _, err := s.wallet.CreditTopUpOnce(refCtx, order.CustomerID, amount); err != nil {
				return TransitionResult{}, fmt.Errorf("credit top-up: %w", err)
			}
			order.TopUpFundsApplied = true
			result.TopUpCredited = amount
		}
	}

	order.Status = in.Status
	order.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, order); err != nil {
		s.logger.Error("order update failed after wallet changes",
			slog.String("order_id", order.ID),
			slog.Bool("settled", result.Settlement != nil),
			slog.String("topup_credited", result.TopUpCredited.String()),
			slog.Any("error", err),
		)
		return TransitionResult{}, fmt.Errorf("update order: %w", err)
	}

	s.logger.Info("order status changed",
		slog.String("order_id", order.ID),
		slog.String("from", result.PreviousStatus),
		slog.String("to", order.Status),
	)
	if result.PreviousStatus != order.Status {
		s.notifyStatus(order, result.PreviousStatus)
	}

	result.Order = order
	return result, nil
}

// ApplySubscriptionPayment credits the top-up lines of a subscription renewal.
// Every call is a separate renewal and credits again.
func (s *Service) ApplySubscriptionPayment(ctx context.Context, p SubscriptionPayment) (decimal.Decimal, wallet.Adjustment, error) {
	amount := SubscriptionTopUpAmount(p.Items)
	if !amount.IsPositive() {
		return decimal.Zero, wallet.Adjustment{}, nil
	}
	ctx = wallet.WithReference(ctx, "subscription:"+p.SubscriptionID)
	adj, err := s.wallet.CreditTopUp(ctx, p.CustomerID, amount)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return decimal.Zero, wallet.Adjustment{}, ErrCustomerNotFound
		}
		return decimal.Zero, wallet.Adjustment{}, err
	}
	s.logger.Info("subscription top-up credited",
		slog.String("subscription_id", p.SubscriptionID),
		slog.String("customer_id", p.CustomerID),
		slog.String("amount", amount.String()),
	)
	return amount, adj, nil
}

// LatestForCustomer returns the most recent order of a customer.
func (s *Service) LatestForCustomer(ctx context.Context, customerID string) (Order, error) {
	return s.repo.LatestForCustomer(ctx, customerID)
}

// LatestStatus returns the label of the customer's last order status.
func (s *Service) LatestStatus(ctx context.Context, customerID string) (string, bool, error) {
	o, err := s.repo.LatestForCustomer(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return StatusLabel(o.Status), true, nil
}

func (s *Service) reference(ctx context.Context, orderID string) context.Context {
	return wallet.WithReference(ctx, "order:"+orderID)
}

func (s *Service) notifyStatus(order Order, previous string) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:        notification.KindOrderStatus,
		Destination: order.CustomerID,
		Body:        fmt.Sprintf("Order %s is now %s.", order.ID, StatusLabel(order.Status)),
		Attributes: map[string]string{
			"order_id": order.ID,
			"from":     previous,
			"to":       order.Status,
		},
	}
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("order status notification failed", slog.String("order_id", order.ID), slog.Any("error", err))
		}
	})
}

func validItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}
