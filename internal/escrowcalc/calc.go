// Package escrowcalc turns stored timestamps and rates into the values the
// dashboard shows. Everything here is pure: no I/O, no clock reads.
package escrowcalc

import (
	"math"

	"github.com/sprout-escrow/backend/internal/models"
)

const daysPerYear = 365

// ProgressPercentage returns how far now is between createdAt and unlockAt,
// in [0, 100]. Missing timestamps count as no progress.
func ProgressPercentage(createdAt, unlockAt, now models.Millis) float64 {
	if createdAt.IsZero() || unlockAt.IsZero() {
		return 0
	}
	if now <= createdAt {
		return 0
	}
	if now >= unlockAt {
		return 100
	}
	return float64(now-createdAt) / float64(unlockAt-createdAt) * 100
}

// DaysRemaining is the whole number of days, rounded up, until unlockAt.
// Never negative.
func DaysRemaining(unlockAt, now models.Millis) int {
	if unlockAt.IsZero() || now >= unlockAt {
		return 0
	}
	return int(math.Ceil(float64(unlockAt-now) / models.MillisPerDay))
}

// IsUnlockable reports whether the lock period is over. An escrow without an
// unlock time is never unlockable.
func IsUnlockable(unlockAt, now models.Millis) bool {
	if unlockAt.IsZero() {
		return false
	}
	return now >= unlockAt
}

// ProjectedYield is simple (non-compounding) interest over the lock period.
// No rounding; that is up to the caller.
func ProjectedYield(principal, annualRate float64, lockPeriodDays int) float64 {
	return principal * annualRate * (float64(lockPeriodDays) / daysPerYear)
}

// Derive computes the display fields of e as of now.
func Derive(e models.Escrow, now models.Millis) models.EscrowView {
	y := ProjectedYield(e.Amount, e.YieldRate, e.LockPeriodDays)
	return models.EscrowView{
		Escrow:          e,
		ProgressPercent: ProgressPercentage(e.CreatedAt, e.UnlockAt, now),
		DaysRemaining:   DaysRemaining(e.UnlockAt, now),
		Unlockable:      IsUnlockable(e.UnlockAt, now),
		ProjectedYield:  y,
		TotalValue:      e.Amount + y,
	}
}

// Dashboard derives every escrow and sums up the stats row.
// Only escrows whose principal is locked count towards the totals; unpaid,
// withdrawn and cancelled ones are listed only.
func Dashboard(escrows []models.Escrow, now models.Millis) ([]models.EscrowView, models.DashboardStats) {
	views := make([]models.EscrowView, 0, len(escrows))
	var stats models.DashboardStats
	for _, e := range escrows {
		v := Derive(e, now)
		views = append(views, v)

		if !models.IsLocked(e.Status) {
			continue
		}
		stats.TotalLocked += e.Amount
		stats.TotalYield += v.ProjectedYield
		if e.Status == models.EscrowStatusActive || e.Status == models.EscrowStatusFunded {
			stats.ActiveCount++
		}
		if v.Unlockable {
			stats.UnlockableCount++
		}
	}
	return views, stats
}
