package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/ledger"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/logging"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/notification"
)

const (
	defaultCurrency     = "EGP"
	defaultMaxRetries   = 5
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Directory reports whether a customer exists.
type Directory interface {
	Exists(ctx context.Context, customerID string) (bool, error)
}

// Options tunes the wallet service. Zero values fall back to in-process defaults.
type Options struct {
	Locker     Locker
	Logger     *slog.Logger
	Metrics    Metrics
	Notifier   notification.Notifier
	Currency   string
	MaxRetries int
}

// Service owns every mutation of customer wallet balances.
type Service struct {
	store      ledger.Store
	customers  Directory
	locker     Locker
	logger     *slog.Logger
	metrics    Metrics
	notifier   notification.Notifier
	currency   string
	maxRetries int
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, customers Directory, opts Options) *Service {
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Service{
		store:      store,
		customers:  customers,
		locker:     opts.Locker,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		notifier:   opts.Notifier,
		currency:   opts.Currency,
		maxRetries: opts.MaxRetries,
	}
}

// Currency returns the display currency attached to every result.
func (s *Service) Currency() string {
	return s.currency
}

type referenceKey struct{}

// WithReference tags wallet mutations made with ctx (e.g. "order:<id>").
func WithReference(ctx context.Context, reference string) context.Context {
	return context.WithValue(ctx, referenceKey{}, reference)
}

func referenceFrom(ctx context.Context) string {
	ref, _ := ctx.Value(referenceKey{}).(string)
	return ref
}

// Initialize creates a zero wallet for the customer unless one already exists.
func (s *Service) Initialize(ctx context.Context, customerID string) error {
	created, err := s.store.EnsureAccount(ctx, customerID)
	if err != nil {
		return fmt.Errorf("initialize wallet: %w", err)
	}
	if created {
		s.logger.Info("wallet initialized", slog.String("customer_id", customerID))
	}
	return nil
}

// Check returns the current balances. A missing wallet reads as zero.
func (s *Service) Check(ctx context.Context, customerID string) (Snapshot, error) {
	if err := s.ensureCustomer(ctx, customerID); err != nil {
		return Snapshot{}, err
	}
	bal, err := s.store.Balance(ctx, customerID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read wallet: %w", err)
	}
	return Snapshot{
		CustomerID: customerID,
		Available:  bal.Available,
		Pending:    bal.Pending,
		Currency:   s.currency,
	}, nil
}

// AdjustAvailable adds a signed amount to the available balance without a lower bound.
func (s *Service) AdjustAvailable(ctx context.Context, customerID string, amount decimal.Decimal) (Adjustment, error) {
	if !ValidAmount(amount) {
		return Adjustment{}, ErrInvalidAmount
	}
	before, after, err := s.mutate(ctx, "adjust", customerID, func(cur ledger.Balance) (ledger.Balance, ledger.Entry, error) {
		next := ledger.Balance{Available: cur.Available.Add(amount), Pending: cur.Pending}
		return next, ledger.Entry{Kind: ledger.KindAdjust, AvailableDelta: amount, PendingDelta: decimal.Zero}, nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	return Adjustment{
		CustomerID:   customerID,
		OldAvailable: before.Available,
		NewAvailable: after.Available,
		Currency:     s.currency,
	}, nil
}

// Hold moves amount from available to pending.
func (s *Service) Hold(ctx context.Context, customerID string, amount decimal.Decimal) (Movement, error) {
	if !amount.IsPositive() || !ValidAmount(amount) {
		return Movement{}, ErrInvalidAmount
	}
	_, after, err := s.mutate(ctx, "hold", customerID, func(cur ledger.Balance) (ledger.Balance, ledger.Entry, error) {
		if cur.Available.LessThan(amount) {
			return ledger.Balance{}, ledger.Entry{}, ErrInsufficientFunds
		}
		next := ledger.Balance{Available: cur.Available.Sub(amount), Pending: cur.Pending.Add(amount)}
		return next, ledger.Entry{Kind: ledger.KindHold, AvailableDelta: amount.Neg(), PendingDelta: amount}, nil
	})
	if err != nil {
		return Movement{}, err
	}
	return s.movement(customerID, amount, after), nil
}

// Release moves amount from pending back to available.
func (s *Service) Release(ctx context.Context, customerID string, amount decimal.Decimal) (Movement, error) {
	if !amount.IsPositive() || !ValidAmount(amount) {
		return Movement{}, ErrInvalidAmount
	}
	_, after, err := s.mutate(ctx, "release", customerID, func(cur ledger.Balance) (ledger.Balance, ledger.Entry, error) {
		if cur.Pending.LessThan(amount) {
			return ledger.Balance{}, ledger.Entry{}, ErrInsufficientHeldFunds
		}
		next := ledger.Balance{Available: cur.Available.Add(amount), Pending: cur.Pending.Sub(amount)}
		return next, ledger.Entry{Kind: ledger.KindRelease, AvailableDelta: amount, PendingDelta: amount.Neg()}, nil
	})
	if err != nil {
		return Movement{}, err
	}
	return s.movement(customerID, amount, after), nil
}

// DeductFromPending consumes held funds.
func (s *Service) DeductFromPending(ctx context.Context, customerID string, amount decimal.Decimal) (Movement, error) {
	if !amount.IsPositive() || !ValidAmount(amount) {
		return Movement{}, ErrInvalidAmount
	}
	_, after, err := s.mutate(ctx, "deduct_pending", customerID, func(cur ledger.Balance) (ledger.Balance, ledger.Entry, error) {
		if cur.Pending.LessThan(amount) {
			return ledger.Balance{}, ledger.Entry{}, ErrInsufficientHeldFunds
		}
		next := ledger.Balance{Available: cur.Available, Pending: cur.Pending.Sub(amount)}
		return next, ledger.Entry{Kind: ledger.KindDeductPending, AvailableDelta: decimal.Zero, PendingDelta: amount.Neg()}, nil
	})
	if err != nil {
		return Movement{}, err
	}
	return s.movement(customerID, amount, after), nil
}

// CreditTopUp adds purchased wallet credit to the available balance.
func (s *Service) CreditTopUp(ctx context.Context, customerID string, amount decimal.Decimal) (Adjustment, error) {
	adj, _, err := s.creditTopUp(ctx, customerID, amount, false)
	return adj, err
}

// CreditTopUpOnce credits amount unless a top-up carrying the context
// reference is already in the journal. The flag reports whether this call
// moved money.
func (s *Service) CreditTopUpOnce(ctx context.Context, customerID string, amount decimal.Decimal) (Adjustment, bool, error) {
	return s.creditTopUp(ctx, customerID, amount, referenceFrom(ctx) != "")
}

func (s *Service) creditTopUp(ctx context.Context, customerID string, amount decimal.Decimal, once bool) (Adjustment, bool, error) {
	if !amount.IsPositive() || !ValidAmount(amount) {
		return Adjustment{}, false, ErrInvalidAmount
	}
	reference := referenceFrom(ctx)
	before, after, err := s.mutate(ctx, "topup", customerID, func(cur ledger.Balance) (ledger.Balance, ledger.Entry, error) {
		if once {
			if err := s.appliedBefore(ctx, customerID, ledger.KindTopUp, reference, nil); err != nil {
				return cur, ledger.Entry{}, err
			}
		}
		next := ledger.Balance{Available: cur.Available.Add(amount), Pending: cur.Pending}
		return next, ledger.Entry{Kind: ledger.KindTopUp, AvailableDelta: amount, PendingDelta: decimal.Zero}, nil
	})
	applied := true
	if errors.Is(err, errAlreadyApplied) {
		applied, err = false, nil
		s.logger.Info("top-up already credited",
			slog.String("customer_id", customerID),
			slog.String("reference", reference),
		)
	}
	if err != nil {
		return Adjustment{}, false, err
	}
	return Adjustment{
		CustomerID:   customerID,
		OldAvailable: before.Available,
		NewAvailable: after.Available,
		Currency:     s.currency,
	}, applied, nil
}

// Settle reconciles held funds against an order's final total in one atomic step.
// An uncovered remainder never fails the call; it is reported through
// Plan.ManualIntervention and an operator alert.
//
// A settlement is recorded once per reference. Repeating it moves no money
// and returns the plan computed from the balances the first run saw.
func (s *Service) Settle(ctx context.Context, in SettlementInput) (Settlement, error) {
	if in.Total.IsNegative() || !ValidAmount(in.Total) || !ValidAmount(in.Estimated) {
		return Settlement{}, ErrInvalidAmount
	}
	if in.OrderID != "" && referenceFrom(ctx) == "" {
		ctx = WithReference(ctx, "order:"+in.OrderID)
	}
	reference := referenceFrom(ctx)

	var plan Plan
	_, after, err := s.mutate(ctx, "settle", in.CustomerID, func(cur ledger.Balance) (ledger.Balance, ledger.Entry, error) {
		if reference != "" {
			err := s.appliedBefore(ctx, in.CustomerID, ledger.KindSettlement, reference, func(prior ledger.Entry) {
				pending := prior.PendingAfter.Sub(prior.PendingDelta)
				available := prior.AvailableAfter.Sub(prior.AvailableDelta)
				plan = PlanSettlement(in.Total, in.Estimated, pending, available)
			})
			if err != nil {
				return cur, ledger.Entry{}, err
			}
		}
		plan = PlanSettlement(in.Total, in.Estimated, cur.Pending, cur.Available)
		available, pending := plan.Apply(cur.Available, cur.Pending)
		next := ledger.Balance{Available: available, Pending: pending}
		return next, ledger.Entry{
			Kind:           ledger.KindSettlement,
			AvailableDelta: available.Sub(cur.Available),
			PendingDelta:   pending.Sub(cur.Pending),
		}, nil
	})
	replayed := errors.Is(err, errAlreadyApplied)
	if replayed {
		err = nil
	}
	if err != nil {
		return Settlement{}, err
	}

	result := Settlement{
		CustomerID: in.CustomerID,
		OrderID:    in.OrderID,
		Plan:       plan,
		Available:  after.Available,
		Pending:    after.Pending,
		Currency:   s.currency,
		Replayed:   replayed,
	}
	if replayed {
		s.logger.Info("settlement already applied",
			slog.String("customer_id", in.CustomerID),
			slog.String("reference", reference),
		)
		return result, nil
	}
	if plan.ManualIntervention {
		s.flagManualIntervention(ctx, result)
	}
	return result, nil
}

// appliedBefore returns errAlreadyApplied when the journal already holds an
// entry of kind for reference, passing that entry to seen first.
func (s *Service) appliedBefore(ctx context.Context, customerID, kind, reference string, seen func(ledger.Entry)) error {
	prior, found, err := s.store.FindEntry(ctx, customerID, kind, reference)
	if err != nil {
		return fmt.Errorf("read wallet journal: %w", err)
	}
	if !found {
		return nil
	}
	if seen != nil {
		seen(prior)
	}
	return errAlreadyApplied
}

// History returns the most recent journal entries, newest first.
func (s *Service) History(ctx context.Context, customerID string, limit int) ([]HistoryEntry, error) {
	if err := s.ensureCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	entries, err := s.store.Entries(ctx, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("read wallet history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:             e.ID,
			Kind:           e.Kind,
			Reference:      e.Reference,
			AvailableDelta: e.AvailableDelta,
			PendingDelta:   e.PendingDelta,
			AvailableAfter: e.AvailableAfter,
			PendingAfter:   e.PendingAfter,
			CreatedAt:      e.CreatedAt,
		})
	}
	return out, nil
}

type mutation func(current ledger.Balance) (ledger.Balance, ledger.Entry, error)

// mutate runs fn as a locked, version-checked read-modify-write and retries
// on version conflicts.
func (s *Service) mutate(ctx context.Context, op, customerID string, fn mutation) (before, after ledger.Balance, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation(op, resultLabel(err), time.Since(start))
	}()

	if err = s.ensureCustomer(ctx, customerID); err != nil {
		return ledger.Balance{}, ledger.Balance{}, err
	}

	unlock, err := s.locker.Lock(ctx, customerID)
	if err != nil {
		return ledger.Balance{}, ledger.Balance{}, fmt.Errorf("lock wallet: %w", err)
	}
	defer unlock()

	reference := referenceFrom(ctx)
	for attempt := 0; ; attempt++ {
		current, readErr := s.store.Balance(ctx, customerID)
		if readErr != nil {
			return ledger.Balance{}, ledger.Balance{}, fmt.Errorf("read wallet: %w", readErr)
		}

		next, entry, fnErr := fn(current)
		if fnErr != nil {
			return current, current, fnErr
		}
		entry.Reference = reference

		stored, commitErr := s.store.Commit(ctx, customerID, current.Version, next, entry)
		if commitErr == nil {
			s.logger.Info("wallet updated",
				slog.String("op", op),
				slog.String("customer_id", customerID),
				slog.String("reference", reference),
				slog.String("available", stored.Available.String()),
				slog.String("pending", stored.Pending.String()),
			)
			return current, stored, nil
		}
		if errors.Is(commitErr, ledger.ErrVersionConflict) && attempt < s.maxRetries {
			s.metrics.RecordVersionConflict(op)
			continue
		}
		return ledger.Balance{}, ledger.Balance{}, fmt.Errorf("commit wallet: %w", commitErr)
	}
}

func (s *Service) ensureCustomer(ctx context.Context, customerID string) error {
	if customerID == "" {
		return ErrNotFound
	}
	ok, err := s.customers.Exists(ctx, customerID)
	if err != nil {
		return fmt.Errorf("lookup customer: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) movement(customerID string, amount decimal.Decimal, after ledger.Balance) Movement {
	return Movement{
		CustomerID: customerID,
		Amount:     amount,
		Available:  after.Available,
		Pending:    after.Pending,
		Currency:   s.currency,
	}
}

func (s *Service) flagManualIntervention(ctx context.Context, result Settlement) {
	s.metrics.RecordManualIntervention()
	s.logger.Warn("settlement requires manual intervention",
		slog.String("customer_id", result.CustomerID),
		slog.String("order_id", result.OrderID),
		slog.String("shortfall", result.Shortfall.String()),
		slog.String("available", result.Available.String()),
	)
	if s.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:        notification.KindManualIntervention,
		Destination: result.CustomerID,
		Body:        fmt.Sprintf("order %s left %s %s uncovered", result.OrderID, result.Shortfall.StringFixed(AmountScale), s.currency),
		Attributes: map[string]string{
			"order_id":  result.OrderID,
			"shortfall": result.Shortfall.String(),
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("manual intervention alert failed", slog.String("order_id", result.OrderID), slog.Any("error", err))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientHeldFunds):
		return "insufficient_held_funds"
	case errors.Is(err, errAlreadyApplied):
		return "replayed"
	default:
		return "error"
	}
}
