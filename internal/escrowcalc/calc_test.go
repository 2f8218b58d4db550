package escrowcalc

import (
	"testing"

	"github.com/sprout-escrow/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = models.MillisPerDay

func TestProgressPercentage(t *testing.T) {
	created := models.Millis(1_700_000_000_000)
	unlock := created + 30*day

	tests := []struct {
		name string
		now  models.Millis
		want float64
	}{
		{"before creation", created - 1, 0},
		{"at creation", created, 0},
		{"halfway", created + (unlock-created)/2, 50},
		{"at unlock", unlock, 100},
		{"after unlock", unlock + 5*day, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProgressPercentage(created, unlock, tt.now))
		})
	}
}

func TestProgressPercentageMissingTimestamps(t *testing.T) {
	now := models.Millis(1_700_000_000_000)
	assert.Zero(t, ProgressPercentage(0, now+day, now))
	assert.Zero(t, ProgressPercentage(now-day, 0, now))
	assert.Zero(t, ProgressPercentage(0, 0, now))
}

func TestProgressPercentageBounds(t *testing.T) {
	created := models.Millis(1_000)
	unlock := models.Millis(1_000 + 7*day)
	for now := models.Millis(0); now < unlock+2*day; now += day / 3 {
		p := ProgressPercentage(created, unlock, now)
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, 100.0)
	}
}

func TestDaysRemaining(t *testing.T) {
	now := models.Millis(1_700_000_000_000)

	tests := []struct {
		name   string
		unlock models.Millis
		want   int
	}{
		{"already unlocked", now - day, 0},
		{"unlocks now", now, 0},
		{"one millisecond left", now + 1, 1},
		{"exactly one day", now + day, 1},
		{"just over one day", now + day + 1, 2},
		{"thirty days", now + 30*day, 30},
		{"missing unlock", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysRemaining(tt.unlock, now))
		})
	}
}

func TestDaysRemainingMonotonic(t *testing.T) {
	unlock := models.Millis(1_700_000_000_000)
	prev := DaysRemaining(unlock, unlock-40*day)
	for now := unlock - 40*day; now <= unlock+3*day; now += day / 7 {
		d := DaysRemaining(unlock, now)
		require.LessOrEqual(t, d, prev, "days remaining increased at now=%d", now)
		require.GreaterOrEqual(t, d, 0)
		prev = d
	}
}

func TestIsUnlockable(t *testing.T) {
	unlock := models.Millis(1_700_000_000_000)
	assert.False(t, IsUnlockable(unlock, unlock-1))
	assert.True(t, IsUnlockable(unlock, unlock))
	assert.True(t, IsUnlockable(unlock, unlock+day))
	assert.False(t, IsUnlockable(0, unlock))

	// unlocked escrows never report days left
	for now := unlock; now < unlock+10*day; now += day {
		assert.True(t, IsUnlockable(unlock, now))
		assert.Zero(t, DaysRemaining(unlock, now))
	}
}

func TestProjectedYield(t *testing.T) {
	assert.Equal(t, 125.0, ProjectedYield(1000, 0.125, 365))
	assert.InDelta(t, 12.33, ProjectedYield(1000, 0.15, 30), 0.01)
	assert.Zero(t, ProjectedYield(1000, 0.15, 0))
	assert.Zero(t, ProjectedYield(0, 0.15, 30))
}

func TestDerive(t *testing.T) {
	created := models.Millis(1_700_000_000_000)
	e := models.Escrow{
		ID:             "esc-1",
		Asset:          models.AssetXRP,
		Amount:         1000,
		YieldRate:      0.125,
		LockPeriodDays: 365,
		CreatedAt:      created,
		UnlockAt:       created + 365*day,
		Status:         models.EscrowStatusActive,
	}

	v := Derive(e, created+73*day)
	assert.InDelta(t, 20.0, v.ProgressPercent, 1e-9)
	assert.Equal(t, 292, v.DaysRemaining)
	assert.False(t, v.Unlockable)
	assert.Equal(t, 125.0, v.ProjectedYield)
	assert.Equal(t, 1125.0, v.TotalValue)
	assert.Equal(t, "esc-1", v.ID)
}

func TestDashboard(t *testing.T) {
	created := models.Millis(1_700_000_000_000)
	now := created + 20*day
	escrows := []models.Escrow{
		{ID: "a", Amount: 300, YieldRate: 0.125, LockPeriodDays: 30, CreatedAt: created, UnlockAt: created + 30*day, Status: models.EscrowStatusActive},
		{ID: "b", Amount: 150, YieldRate: 0.15, LockPeriodDays: 14, CreatedAt: created, UnlockAt: created + 14*day, Status: models.EscrowStatusFunded},
		{ID: "c", Amount: 999, YieldRate: 0.15, LockPeriodDays: 14, CreatedAt: created, UnlockAt: created + 14*day, Status: models.EscrowStatusWithdrawn},
		{ID: "d", Amount: 500, YieldRate: 0.125, LockPeriodDays: 7, CreatedAt: created, UnlockAt: created + 7*day, Status: models.EscrowStatusAwaitingPayment},
	}

	views, stats := Dashboard(escrows, now)
	require.Len(t, views, 4)
	assert.Equal(t, 450.0, stats.TotalLocked)
	assert.Equal(t, 2, stats.ActiveCount)
	assert.Equal(t, 1, stats.UnlockableCount)
	assert.InDelta(t, ProjectedYield(300, 0.125, 30)+ProjectedYield(150, 0.15, 14), stats.TotalYield, 1e-9)
}
