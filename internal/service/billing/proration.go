// internal/service/billing/proration.go
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Proration is the day-granular price adjustment for a mid-period plan change.
// Credit is the unused share of the old plan, Charge the remaining share of
// the new plan, Net the difference. A negative Net is recorded as a credit
// without calling the gateway.
type Proration struct {
	DaysTotal     int             `json:"days_total"`
	DaysRemaining int             `json:"days_remaining"`
	Credit        decimal.Decimal `json:"credit"`
	Charge        decimal.Decimal `json:"charge"`
	Net           decimal.Decimal `json:"net"`
}

// Prorate computes the adjustment for switching from oldPrice to newPrice at
// the given instant inside [periodStart, periodEnd). Partial days count as
// whole days, in the subscriber's favor on the credit side.
func Prorate(oldPrice, newPrice decimal.Decimal, periodStart, periodEnd, now time.Time) Proration {
	daysTotal := ceilDays(periodEnd.Sub(periodStart))
	if daysTotal < 1 {
		daysTotal = 1
	}

	daysRemaining := ceilDays(periodEnd.Sub(now))
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	if daysRemaining > daysTotal {
		daysRemaining = daysTotal
	}

	rem := decimal.NewFromInt(int64(daysRemaining))
	total := decimal.NewFromInt(int64(daysTotal))

	credit := oldPrice.Mul(rem).Div(total).Round(2)
	charge := newPrice.Mul(rem).Div(total).Round(2)

	return Proration{
		DaysTotal:     daysTotal,
		DaysRemaining: daysRemaining,
		Credit:        credit,
		Charge:        charge,
		Net:           charge.Sub(credit),
	}
}

func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
