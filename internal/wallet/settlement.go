package wallet

import "github.com/shopspring/decimal"

// PlanSettlement decides how an order's final total is charged against a
// customer's held and available funds.
//
// When an estimate was held, only min(estimated, pending) is treated as held
// so a prior manual release can never drive pending below zero. When pending
// has fallen below the estimate, the uncovered part of the total is charged
// to available instead. Any remainder not covered by held funds is taken from
// available only if available can cover all of it; otherwise nothing is taken
// and the plan is flagged.
func PlanSettlement(total, estimated, pending, available decimal.Decimal) Plan {
	plan := Plan{
		DeductPending:   decimal.Zero,
		ReleasePending:  decimal.Zero,
		DeductAvailable: decimal.Zero,
		Shortfall:       decimal.Zero,
	}

	if !total.IsPositive() {
		if estimated.IsPositive() && pending.GreaterThanOrEqual(estimated) {
			plan.ReleasePending = estimated
		}
		return plan
	}

	remainder := decimal.Zero
	if estimated.IsPositive() {
		held := decimal.Min(estimated, pending)
		if total.LessThanOrEqual(held) {
			plan.DeductPending = total
			plan.ReleasePending = held.Sub(total)
		} else {
			plan.DeductPending = held
			remainder = total.Sub(held)
		}
	} else {
		plan.DeductPending = decimal.Min(total, pending)
		remainder = total.Sub(plan.DeductPending)
	}

	if remainder.IsPositive() {
		if available.GreaterThanOrEqual(remainder) {
			plan.DeductAvailable = remainder
		} else {
			plan.Shortfall = remainder
			plan.ManualIntervention = true
		}
	}
	return plan
}

// Apply returns the balances after the plan is executed.
func (p Plan) Apply(available, pending decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	nextAvailable := available.Add(p.ReleasePending).Sub(p.DeductAvailable)
	nextPending := pending.Sub(p.DeductPending).Sub(p.ReleasePending)
	return nextAvailable, nextPending
}

// IsNoop reports whether the plan moves no money.
func (p Plan) IsNoop() bool {
	return p.DeductPending.IsZero() && p.ReleasePending.IsZero() && p.DeductAvailable.IsZero()
}
