package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/ledger"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/notification"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/wallet"
)

type staticDirectory map[string]bool

func (d staticDirectory) Exists(_ context.Context, id string) (bool, error) {
	return d[id], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type failingUpdateRepo struct {
	Repository
	failCreate bool
	failUpdate bool
}

func (r failingUpdateRepo) Create(ctx context.Context, o Order) error {
	if r.failCreate {
		return errors.New("disk full")
	}
	return r.Repository.Create(ctx, o)
}

func (r failingUpdateRepo) Update(ctx context.Context, o Order) error {
	if r.failUpdate {
		return errors.New("disk full")
	}
	return r.Repository.Update(ctx, o)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	svc      *Service
	wallets  *wallet.Service
	store    ledger.Store
	notifier *recordingNotifier
}

func newFixture(t *testing.T, repo Repository, ids ...string) fixture {
	t.Helper()
	dir := staticDirectory{}
	for _, id := range ids {
		dir[id] = true
	}
	store := ledger.NewInMemory()
	notifier := &recordingNotifier{}
	wallets := wallet.NewService(store, dir, wallet.Options{Notifier: notifier})
	for _, id := range ids {
		if err := wallets.Initialize(context.Background(), id); err != nil {
			t.Fatalf("initialize %s: %v", id, err)
		}
	}
	if repo == nil {
		repo = NewMemoryRepository()
	}
	svc := NewService(repo, wallets, dir, nil, notifier, nil)
	svc.dispatch = func(f func()) { f() }
	return fixture{svc: svc, wallets: wallets, store: store, notifier: notifier}
}

func (f fixture) balances(t *testing.T, id string) (decimal.Decimal, decimal.Decimal) {
	t.Helper()
	snap, err := f.wallets.Check(context.Background(), id)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return snap.Available, snap.Pending
}

func expectBalances(t *testing.T, f fixture, id, available, pending string) {
	t.Helper()
	gotAvailable, gotPending := f.balances(t, id)
	if !gotAvailable.Equal(dec(available)) || !gotPending.Equal(dec(pending)) {
		t.Fatalf("expected available=%s pending=%s, got available=%s pending=%s",
			available, pending, gotAvailable, gotPending)
	}
}

func createPickup(t *testing.T, f fixture, id, estimated string) Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), CreateInput{CustomerID: id, EstimatedCost: dec(estimated)})
	if err != nil {
		t.Fatalf("create pickup: %v", err)
	}
	return order
}

func TestCreatePickupHoldsEstimatedCost(t *testing.T) {
	f := newFixture(t, nil, "c1")
	ledger.SeedBalance(f.store, "c1", dec("100"), decimal.Zero)

	order := createPickup(t, f, "c1", "60")
	if order.Status != StatusPendingAssessment {
		t.Fatalf("expected pending-assessment, got %s", order.Status)
	}
	if !order.Total.IsZero() || !order.EstimatedCost.Equal(dec("60")) {
		t.Fatalf("unexpected amounts: total=%s estimated=%s", order.Total, order.EstimatedCost)
	}
	expectBalances(t, f, "c1", "40", "60")

	entries, err := f.wallets.History(context.Background(), "c1", 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].Reference != "order:"+order.ID {
		t.Fatalf("expected hold entry referencing the order, got %+v", entries)
	}
}

func TestCreatePickupInsufficientFundsPersistsNothing(t *testing.T) {
	repo := NewMemoryRepository()
	f := newFixture(t, repo, "c1")
	ledger.SeedBalance(f.store, "c1", dec("10"), decimal.Zero)

	_, err := f.svc.Create(context.Background(), CreateInput{CustomerID: "c1", EstimatedCost: dec("60")})
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := repo.LatestForCustomer(context.Background(), "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no order persisted, got %v", err)
	}
	expectBalances(t, f, "c1", "10", "0")
}

func TestCreateReleasesHoldWhenPersistFails(t *testing.T) {
	f := newFixture(t, failingUpdateRepo{Repository: NewMemoryRepository(), failCreate: true}, "c1")
	ledger.SeedBalance(f.store, "c1", dec("100"), decimal.Zero)

	if _, err := f.svc.Create(context.Background(), CreateInput{CustomerID: "c1", EstimatedCost: dec("60")}); err == nil {
		t.Fatalf("expected create error")
	}
	expectBalances(t, f, "c1", "100", "0")
}

func TestCreateUnknownCustomer(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Create(context.Background(), CreateInput{CustomerID: "ghost"}); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestCreateWithItemsSumsLineTotals(t *testing.T) {
	f := newFixture(t, nil, "c1")
	order, err := f.svc.Create(context.Background(), CreateInput{
		CustomerID:    "c1",
		EstimatedCost: dec("500"),
		Items: []Item{
			{ProductID: "p1", Quantity: 2, LineTotal: dec("30")},
			{ProductID: "p2", Quantity: 1, LineTotal: dec("12.50")},
			{ProductID: "p3", Quantity: 0, LineTotal: dec("99")},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Status != StatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if !order.Total.Equal(dec("42.50")) || len(order.Items) != 2 {
		t.Fatalf("unexpected order: total=%s items=%d", order.Total, len(order.Items))
	}
	expectBalances(t, f, "c1", "0", "0")
}

func TestCreateRejectsItemsWithoutQuantity(t *testing.T) {
	repo := NewMemoryRepository()
	f := newFixture(t, repo, "c1")
	ledger.SeedBalance(f.store, "c1", dec("100"), decimal.Zero)

	_, err := f.svc.Create(context.Background(), CreateInput{
		CustomerID:    "c1",
		EstimatedCost: dec("60"),
		Items:         []Item{{ProductID: "p1", Quantity: 0, LineTotal: dec("0")}, {ProductID: "p2", Quantity: -2, LineTotal: dec("0")}},
	})
	if !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
	if _, err := repo.LatestForCustomer(context.Background(), "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no order persisted, got %v", err)
	}
	expectBalances(t, f, "c1", "100", "0")
}

func TestTransitionSettlesPickup(t *testing.T) {
	cases := []struct {
		name          string
		seedAvailable string
		estimated     string
		total         string
		wantAvailable string
		wantPending   string
		wantManual    bool
		wantShortfall string
	}{
		{name: "total below estimate releases difference", seedAvailable: "100", estimated: "60", total: "45", wantAvailable: "55", wantPending: "0", wantShortfall: "0"},
		{name: "total equals estimate", seedAvailable: "100", estimated: "60", total: "60", wantAvailable: "40", wantPending: "0", wantShortfall: "0"},
		{name: "total above estimate charges available", seedAvailable: "100", estimated: "60", total: "80", wantAvailable: "20", wantPending: "0", wantShortfall: "0"},
		{name: "shortfall flags manual intervention", seedAvailable: "70", estimated: "60", total: "100", wantAvailable: "10", wantPending: "0", wantManual: true, wantShortfall: "40"},
		{name: "zero total releases estimate", seedAvailable: "100", estimated: "60", total: "0", wantAvailable: "100", wantPending: "0", wantShortfall: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil, "c1")
			ledger.SeedBalance(f.store, "c1", dec(tc.seedAvailable), decimal.Zero)
			order := createPickup(t, f, "c1", tc.estimated)

			res, err := f.svc.Transition(context.Background(), TransitionInput{
				OrderID: order.ID,
				Status:  StatusProcessing,
				Total:   decimal.NewNullDecimal(dec(tc.total)),
			})
			if err != nil {
				t.Fatalf("transition: %v", err)
			}
			if res.Settlement == nil {
				t.Fatalf("expected settlement")
			}
			if res.Settlement.ManualIntervention != tc.wantManual {
				t.Fatalf("manual intervention = %v, want %v", res.Settlement.ManualIntervention, tc.wantManual)
			}
			if !res.Settlement.Shortfall.Equal(dec(tc.wantShortfall)) {
				t.Fatalf("shortfall = %s, want %s", res.Settlement.Shortfall, tc.wantShortfall)
			}
			if res.Order.Status != StatusProcessing || res.PreviousStatus != StatusPendingAssessment {
				t.Fatalf("unexpected statuses: %s -> %s", res.PreviousStatus, res.Order.Status)
			}
			expectBalances(t, f, "c1", tc.wantAvailable, tc.wantPending)
		})
	}
}

func TestTransitionSettlesOnlyOnce(t *testing.T) {
	f := newFixture(t, nil, "c1")
	ledger.SeedBalance(f.store, "c1", dec("100"), decimal.Zero)
	order := createPickup(t, f, "c1", "60")
	ctx := context.Background()

	if _, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: StatusProcessing, Total: decimal.NewNullDecimal(dec("50"))}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if _, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: StatusPendingAssessment}); err != nil {
		t.Fatalf("back to assessment: %v", err)
	}
	res, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: StatusCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Settlement != nil {
		t.Fatalf("expected no second settlement")
	}
	expectBalances(t, f, "c1", "50", "0")
}

func TestTransitionWithoutStatusChangeIsNoop(t *testing.T) {
	f := newFixture(t, nil, "c1")
	ledger.SeedBalance(f.store, "c1", dec("100"), decimal.Zero)
	order := createPickup(t, f, "c1", "60")

	res, err := f.svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, Status: StatusPendingAssessment})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.Settlement != nil {
		t.Fatalf("expected no settlement")
	}
	if len(f.notifier.kinds()) != 0 {
		t.Fatalf("expected no notification, got %v", f.notifier.kinds())
	}
	expectBalances(t, f, "c1", "40", "60")
}

func TestTransitionCreditsTopUpOnce(t *testing.T) {
	f := newFixture(t, nil, "c1")
	ctx := context.Background()
	order, err := f.svc.Create(ctx, CreateInput{
		CustomerID: "c1",
		Items: []Item{
			{ProductID: "topup-100", Quantity: 2, LineTotal: dec("190"), TopUp: true, TopUpValue: decimal.NewNullDecimal(dec("100"))},
			{ProductID: "topup-plan", Quantity: 1, LineTotal: dec("50"), TopUp: true, Subscription: true},
			{ProductID: "soap", Quantity: 1, LineTotal: dec("20")},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: StatusCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.TopUpCredited.Equal(dec("200")) || !res.Order.TopUpFundsApplied {
		t.Fatalf("expected 200 credited, got %s (applied=%v)", res.TopUpCredited, res.Order.TopUpFundsApplied)
	}

	if _, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: StatusProcessing}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	res, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: StatusCompleted})
	if err != nil {
		t.Fatalf("complete again: %v", err)
	}
	if !res.TopUpCredited.IsZero() {
		t.Fatalf("expected no second credit, got %s", res.TopUpCredited)
	}
	expectBalances(t, f, "c1", "200", "0")
}

func TestTransitionNotifiesStatusChange(t *testing.T) {
	f := newFixture(t, nil, "c1")
	order, err := f.svc.Create(context.Background(), CreateInput{
		CustomerID: "c1",
		Items:      []Item{{ProductID: "p1", Quantity: 1, LineTotal: dec("10")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, Status: StatusOnHold}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	kinds := f.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != notification.KindOrderStatus {
		t.Fatalf("expected one order status notification, got %v", kinds)
	}
}

func TestTransitionRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, nil, "c1")
	ctx := context.Background()
	if _, err := f.svc.Transition(ctx, TransitionInput{OrderID: "x", Status: "shipped"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, TransitionInput{OrderID: "x", Status: StatusCompleted, Total: decimal.NewNullDecimal(dec("-1"))}); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, TransitionInput{OrderID: "x", Status: StatusCompleted, Total: decimal.NewNullDecimal(dec("12.345"))}); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for sub-cent total, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, TransitionInput{OrderID: "missing", Status: StatusCompleted}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionReturnsErrorWhenPersistFails(t *testing.T) {
	repo := failingUpdateRepo{Repository: NewMemoryRepository()}
	f := newFixture(t, repo, "c1")
	ledger.SeedBalance(f.store, "c1", dec("100"), decimal.Zero)
	order := createPickup(t, f, "c1", "60")

	f.svc.repo = failingUpdateRepo{Repository: repo.Repository, failUpdate: true}
	if _, err := f.svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, Status: StatusProcessing, Total: decimal.NewNullDecimal(dec("60"))}); err == nil {
		t.Fatalf("expected update error")
	}
	stored, err := repo.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusPendingAssessment {
		t.Fatalf("expected stored status unchanged, got %s", stored.Status)
	}
}

func TestTransitionRetryAfterPersistFailureSettlesOnce(t *testing.T) {
	repo := &failingUpdateRepo{Repository: NewMemoryRepository()}
	f := newFixture(t, repo, "c1")
	ledger.SeedBalance(f.store, "c1", dec("200"), decimal.Zero)
	order := createPickup(t, f, "c1", "60")
	ctx := context.Background()
	in := TransitionInput{OrderID: order.ID, Status: StatusProcessing, Total: decimal.NewNullDecimal(dec("60"))}

	repo.failUpdate = true
	if _, err := f.svc.Transition(ctx, in); err == nil {
		t.Fatalf("expected update error")
	}
	expectBalances(t, f, "c1", "140", "0")

	repo.failUpdate = false
	res, err := f.svc.Transition(ctx, in)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Settlement == nil || !res.Settlement.Replayed || !res.Settlement.DeductPending.Equal(dec("60")) {
		t.Fatalf("expected the first settlement to be reported, got %+v", res.Settlement)
	}
	expectBalances(t, f, "c1", "140", "0")

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Settled || stored.Status != StatusProcessing {
		t.Fatalf("expected settled processing order, got %+v", stored)
	}
}

func TestTransitionRetryAfterPersistFailureCreditsTopUpOnce(t *testing.T) {
	repo := &failingUpdateRepo{Repository: NewMemoryRepository()}
	f := newFixture(t, repo, "c1")
	ctx := context.Background()
	order, err := f.svc.Create(ctx, CreateInput{
		CustomerID: "c1",
		Items:      []Item{{ProductID: "topup-50", Quantity: 1, LineTotal: dec("45"), TopUp: true, TopUpValue: decimal.NewNullDecimal(dec("50"))}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	repo.failUpdate = true
	if _, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: StatusCompleted}); err == nil {
		t.Fatalf("expected update error")
	}
	repo.failUpdate = false
	res, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: StatusCompleted})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !res.Order.TopUpFundsApplied {
		t.Fatalf("expected top-up marked applied")
	}
	expectBalances(t, f, "c1", "50", "0")
}

func TestApplySubscriptionPaymentCreditsEveryRenewal(t *testing.T) {
	f := newFixture(t, nil, "c1")
	ctx := context.Background()
	payment := SubscriptionPayment{
		SubscriptionID: "sub-1",
		CustomerID:     "c1",
		Items: []Item{
			{ProductID: "plan", Quantity: 1, LineTotal: dec("50"), TopUp: true, Subscription: true},
			{ProductID: "bonus", Quantity: 3, LineTotal: dec("0"), TopUp: true, TopUpValue: decimal.NewNullDecimal(dec("5"))},
		},
	}
	for i := 0; i < 2; i++ {
		amount, _, err := f.svc.ApplySubscriptionPayment(ctx, payment)
		if err != nil {
			t.Fatalf("renewal %d: %v", i, err)
		}
		if !amount.Equal(dec("65")) {
			t.Fatalf("expected 65 credited, got %s", amount)
		}
	}
	expectBalances(t, f, "c1", "130", "0")

	entries, err := f.wallets.History(ctx, "c1", 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if entries[0].Reference != "subscription:sub-1" {
		t.Fatalf("expected subscription reference, got %q", entries[0].Reference)
	}
}

func TestApplySubscriptionPaymentUnknownCustomer(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.svc.ApplySubscriptionPayment(context.Background(), SubscriptionPayment{
		SubscriptionID: "sub-1",
		CustomerID:     "ghost",
		Items:          []Item{{Quantity: 1, LineTotal: dec("10"), TopUp: true}},
	})
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestLatestStatus(t *testing.T) {
	f := newFixture(t, nil, "c1")
	ctx := context.Background()
	if _, found, err := f.svc.LatestStatus(ctx, "c1"); err != nil || found {
		t.Fatalf("expected no orders, got found=%v err=%v", found, err)
	}
	createPickup(t, f, "c1", "0")
	label, found, err := f.svc.LatestStatus(ctx, "c1")
	if err != nil || !found {
		t.Fatalf("expected latest order, got found=%v err=%v", found, err)
	}
	if label != "Pending Assessment" {
		t.Fatalf("unexpected label %q", label)
	}
}
