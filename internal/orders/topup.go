package orders

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// OrderTopUpAmount is the wallet credit earned by a completed one-off order:
// top-up lines that are not subscriptions.
func OrderTopUpAmount(items []Item) decimal.Decimal {
	return sumTopUp(lo.Filter(items, func(it Item, _ int) bool {
		return it.TopUp && !it.Subscription
	}))
}

// SubscriptionTopUpAmount is the wallet credit earned by one subscription renewal.
func SubscriptionTopUpAmount(items []Item) decimal.Decimal {
	return sumTopUp(lo.Filter(items, func(it Item, _ int) bool {
		return it.TopUp
	}))
}

func sumTopUp(items []Item) decimal.Decimal {
	return lo.Reduce(items, func(acc decimal.Decimal, it Item, _ int) decimal.Decimal {
		return acc.Add(it.credit())
	}, decimal.Zero)
}

func (it Item) credit() decimal.Decimal {
	if it.TopUpValue.Valid && !it.TopUpValue.Decimal.IsZero() {
		return it.TopUpValue.Decimal.Mul(decimal.NewFromInt(int64(it.Quantity)))
	}
	return it.LineTotal
}

// orderTotal sums line totals.
func orderTotal(items []Item) decimal.Decimal {
	return lo.Reduce(items, func(acc decimal.Decimal, it Item, _ int) decimal.Decimal {
		return acc.Add(it.LineTotal)
	}, decimal.Zero)
}
