package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/escrowcalc"
	"github.com/sprout-escrow/backend/internal/events"
	"github.com/sprout-escrow/backend/internal/models"
	"github.com/sprout-escrow/backend/internal/navigation"
	"github.com/sprout-escrow/backend/internal/remote"
	"github.com/sprout-escrow/backend/internal/xrpl"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type escrowFixture struct {
	svc     *EscrowService
	remote  *fakeRemote
	escrows *memEscrows
	payouts *memPayouts
	audit   *memAudit
	bus     *recordBus
	nav     *navigation.Router
}

func newEscrowFixture(t *testing.T, es ...models.Escrow) *escrowFixture {
	t.Helper()
	f := &escrowFixture{
		remote:  &fakeRemote{},
		escrows: newMemEscrows(es...),
		payouts: newMemPayouts(),
		audit:   &memAudit{},
		bus:     newRecordBus(t),
	}
	f.nav = navigation.NewRouter("devnet", f.bus, zap.NewNop())
	f.svc = NewEscrowService(f.remote, newTestManager(t), f.escrows, f.payouts, f.audit, f.bus, f.nav,
		xrpl.NewExplorer("https://devnet.xrpl.org"), zap.NewNop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func escrowFixtureData(id, status string, unlockAt time.Time) models.Escrow {
	return models.Escrow{
		ID:             id,
		Title:          "Logo design",
		Asset:          models.AssetXRP,
		Amount:         1000,
		YieldRate:      0.125,
		LockPeriodDays: 30,
		CreatedAt:      models.MillisFromTime(unlockAt.Add(-30 * 24 * time.Hour)),
		UnlockAt:       models.MillisFromTime(unlockAt),
		SenderWallet:   sender,
		ReceiverWallet: receiver,
		Status:         status,
	}
}

func TestDashboardOnlyOwnEscrows(t *testing.T) {
	f := newEscrowFixture(t,
		escrowFixtureData("e1", models.EscrowStatusActive, testNow.Add(-time.Hour)),
		escrowFixtureData("e2", models.EscrowStatusActive, testNow.Add(48*time.Hour)),
		models.Escrow{ID: "other", SenderWallet: stranger, ReceiverWallet: stranger, Status: models.EscrowStatusActive},
	)

	d, err := f.svc.Dashboard(context.Background(), receiver)
	require.NoError(t, err)
	require.Len(t, d.Escrows, 2)
	assert.Equal(t, 2, d.Stats.ActiveCount)
	assert.Equal(t, 1, d.Stats.UnlockableCount)

	empty, err := f.svc.Dashboard(context.Background(), "rSomeoneElse")
	require.NoError(t, err)
	assert.NotNil(t, empty.Escrows)
	assert.Empty(t, empty.Escrows)
}

func TestGetChecksOwnership(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusActive, testNow.Add(72*time.Hour)))

	v, err := f.svc.Get(context.Background(), sender, "e1")
	require.NoError(t, err)
	assert.Equal(t, 3, v.DaysRemaining)
	assert.False(t, v.Unlockable)

	_, err = f.svc.Get(context.Background(), stranger, "e1")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Get(context.Background(), sender, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	valid := CreateEscrowInput{
		Title:          "Website",
		Asset:          models.AssetRLUSD,
		Amount:         250,
		LockPeriodDays: 30,
		ReceiverWallet: receiver,
	}
	tests := []struct {
		name  string
		edit  func(in *CreateEscrowInput)
		field string
	}{
		{"empty title", func(in *CreateEscrowInput) { in.Title = "  " }, "title"},
		{"bad asset", func(in *CreateEscrowInput) { in.Asset = "BTC" }, "asset"},
		{"zero amount", func(in *CreateEscrowInput) { in.Amount = 0 }, "amount"},
		{"sub-drop XRP amount", func(in *CreateEscrowInput) { in.Asset = models.AssetXRP; in.Amount = 1.0000001 }, "amount"},
		{"lock too short", func(in *CreateEscrowInput) { in.LockPeriodDays = 0 }, "lockPeriod"},
		{"lock too long", func(in *CreateEscrowInput) { in.LockPeriodDays = 366 }, "lockPeriod"},
		{"bad receiver", func(in *CreateEscrowInput) { in.ReceiverWallet = "rNotAnAddress" }, "receiverWallet"},
		{"self receiver", func(in *CreateEscrowInput) { in.ReceiverWallet = sender }, "receiverWallet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEscrowFixture(t)
			in := valid
			tt.edit(&in)

			_, err := f.svc.Create(context.Background(), sender, in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, f.remote.created)
		})
	}
}

func TestCreate(t *testing.T) {
	f := newEscrowFixture(t)
	f.remote.escrow = models.Escrow{
		ID:        "esc-new",
		CreatedAt: models.MillisFromTime(testNow),
		UnlockAt:  models.MillisFromTime(testNow.Add(30 * 24 * time.Hour)),
	}
	ctx := context.Background()
	_, err := f.nav.Dispatch(ctx, sender, navigation.Message{Type: navigation.MsgWalletConnected, Wallet: sender})
	require.NoError(t, err)

	v, err := f.svc.Create(ctx, sender, CreateEscrowInput{
		Title:          " Website ",
		Asset:          models.AssetRLUSD,
		Amount:         250,
		LockPeriodDays: 30,
		ReceiverWallet: receiver,
	})
	require.NoError(t, err)

	assert.Equal(t, "esc-new", v.ID)
	assert.Equal(t, models.EscrowStatusAwaitingPayment, v.Status)
	assert.Equal(t, 30, v.DaysRemaining)
	assert.InDelta(t, 0, v.ProgressPercent, 1e-9)

	require.Len(t, f.remote.created, 1)
	draft := f.remote.created[0]
	assert.Equal(t, "Website", draft.Title)
	assert.Equal(t, escrowcalc.StrategyBitgetSavings, draft.YieldStrategy)
	assert.Equal(t, 0.15, draft.YieldRate)
	assert.Equal(t, sender, draft.SenderWallet)

	assert.Equal(t, models.EscrowStatusAwaitingPayment, f.escrows.status("esc-new"))
	assert.Contains(t, f.audit.actions(), "escrow_created")

	changed := f.bus.published(events.StreamEscrow)
	require.Len(t, changed, 1)
	assert.Equal(t, events.EventEscrowChanged, changed[0].Type)
	assert.ElementsMatch(t, []string{sender, receiver}, changed[0].Wallets())

	assert.Equal(t, navigation.PageDashboard, f.nav.Current(sender).Page)
}

func TestStartPaymentGuards(t *testing.T) {
	f := newEscrowFixture(t,
		escrowFixtureData("awaiting", models.EscrowStatusAwaitingPayment, testNow.Add(time.Hour)),
		escrowFixtureData("active", models.EscrowStatusActive, testNow.Add(time.Hour)),
	)
	ctx := context.Background()

	_, err := f.svc.StartPayment(ctx, receiver, "awaiting")
	assert.ErrorIs(t, err, ErrForbidden, "only the sender pays")

	_, err = f.svc.StartPayment(ctx, stranger, "awaiting")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.StartPayment(ctx, sender, "active")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.StartPayment(ctx, sender, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentApprovedActivatesEscrow(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusAwaitingPayment, testNow.Add(time.Hour)))
	ctx := context.Background()

	v, err := f.svc.StartPayment(ctx, sender, "e1")
	require.NoError(t, err)
	assert.Equal(t, approval.KindPayment, v.Kind)
	assert.Equal(t, approval.StatePending, v.State)

	// owner check on status queries
	_, err = f.svc.ApprovalStatus(receiver, v.RequestID)
	assert.ErrorIs(t, err, ErrNotFound)

	f.remote.setCheck(approvedPayload(t, remote.PaymentStatus{Success: true, TxHash: "ABC"}))

	require.Eventually(t, func() bool {
		return f.escrows.status("e1") == models.EscrowStatusActive
	}, 2*time.Second, 5*time.Millisecond)

	s, err := f.svc.ApprovalStatus(sender, v.RequestID)
	require.NoError(t, err)
	assert.Equal(t, approval.StateApproved, s.State)

	require.Eventually(t, func() bool {
		return len(f.bus.published(events.StreamEscrow)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.audit.actions(), "escrow_status_awaiting_payment_to_active")

	resolved := f.bus.published(events.StreamApproval)
	require.Len(t, resolved, 1)
	assert.Equal(t, string(approval.StateApproved), resolved[0].Str("state"))
}

func TestPaymentStatusFromPayload(t *testing.T) {
	assert.Equal(t, models.EscrowStatusFunded,
		paidStatus(models.EscrowStatusAwaitingPayment, []byte(`{"success":true,"status":"funded"}`)))
	assert.Equal(t, models.EscrowStatusActive,
		paidStatus(models.EscrowStatusAwaitingPayment, []byte(`{"success":true,"status":"withdrawn"}`)))
	assert.Equal(t, models.EscrowStatusActive,
		paidStatus(models.EscrowStatusAwaitingPayment, nil))
}

func TestCancelPayment(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusAwaitingPayment, testNow.Add(time.Hour)))
	ctx := context.Background()

	v, err := f.svc.StartPayment(ctx, sender, "e1")
	require.NoError(t, err)

	_, err = f.svc.CancelApproval(receiver, v.RequestID)
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := f.svc.CancelApproval(sender, v.RequestID)
	require.NoError(t, err)
	assert.Equal(t, approval.StateCancelled, c.State)

	// a late approval is ignored
	f.remote.setCheck(approvedPayload(t, remote.PaymentStatus{Success: true}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.EscrowStatusAwaitingPayment, f.escrows.status("e1"))
}

func TestWithdrawLocked(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusActive, testNow.Add(36*time.Hour)))

	_, err := f.svc.Withdraw(context.Background(), receiver, "e1")
	assert.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "2 days")
	assert.Zero(t, f.remote.wCalls)
}

func TestWithdrawInvalidStatus(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusAwaitingPayment, testNow.Add(-time.Hour)))

	_, err := f.svc.Withdraw(context.Background(), receiver, "e1")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Zero(t, f.remote.wCalls)
}

func TestWithdrawRemoteError(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusActive, testNow.Add(-time.Hour)))
	f.remote.wErr = errors.New("ledger unavailable")

	_, err := f.svc.Withdraw(context.Background(), receiver, "e1")
	require.Error(t, err)
	assert.Equal(t, models.EscrowStatusActive, f.escrows.status("e1"))
}

func TestWithdrawStoresPayout(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusActive, testNow.Add(-time.Hour)))
	f.remote.withdraw = remote.Withdrawal{
		TxHash:        "E3FE6EA3D48F0C2B639448020EA4F03D4F4F8FFDB243A852A0F59177921B4879",
		Principal:     "1000",
		YieldEarned:   "10.25",
		TotalReceived: "1010.25",
		Recipient:     receiver,
	}
	ctx := context.Background()
	_, err := f.nav.Dispatch(ctx, receiver, navigation.Message{Type: navigation.MsgWalletConnected, Wallet: receiver})
	require.NoError(t, err)
	_, err = f.nav.Dispatch(ctx, receiver, navigation.Message{Type: navigation.MsgViewDashboard})
	require.NoError(t, err)

	sum, err := f.svc.Withdraw(ctx, receiver, "e1")
	require.NoError(t, err)

	assert.Equal(t, models.EscrowStatusWithdrawn, f.escrows.status("e1"))
	assert.Equal(t, "4.10", sum.Buyer.Amount)
	assert.Equal(t, "4.10", sum.Seller.Amount)
	assert.Equal(t, "2.05", sum.Protocol.Amount)
	assert.Equal(t, "https://devnet.xrpl.org/transactions/"+f.remote.withdraw.TxHash, sum.ExplorerURL)
	assert.Equal(t, "https://devnet.xrpl.org/accounts/"+receiver, sum.RecipientURL)
	assert.Equal(t, testNow, sum.ReleasedAt)
	assert.Equal(t, "XRPL AMM", sum.Strategy)

	loc := f.nav.Current(receiver)
	assert.Equal(t, navigation.PagePayoutSummary, loc.Page)
	assert.Equal(t, "e1", loc.EscrowID)

	again, err := f.svc.PayoutSummary(ctx, sender, "e1")
	require.NoError(t, err)
	assert.Equal(t, sum.TxHash, again.TxHash)

	_, err = f.svc.Withdraw(ctx, receiver, "e1")
	assert.ErrorIs(t, err, ErrInvalidStatus, "withdrawn escrows cannot be withdrawn again")

	history, err := f.svc.History(ctx, sender, "e1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "escrow_status_active_to_withdrawn", history[0].Action)
	assert.Equal(t, receiver, history[0].Actor)

	_, err = f.svc.History(ctx, stranger, "e1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPayoutSummaryNotWithdrawn(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusActive, testNow.Add(-time.Hour)))

	_, err := f.svc.PayoutSummary(context.Background(), sender, "e1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEstimate(t *testing.T) {
	f := newEscrowFixture(t)

	est, err := f.svc.Estimate(1000, models.AssetXRP, 365)
	require.NoError(t, err)
	assert.InDelta(t, 125, est.Total, 1e-6)

	_, err = f.svc.Estimate(1000, "DOGE", 30)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestFundedPaymentCanBeWithdrawnAfterUnlock(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusAwaitingPayment, testNow.Add(time.Hour)))
	ctx := context.Background()

	_, err := f.svc.StartPayment(ctx, sender, "e1")
	require.NoError(t, err)
	f.remote.setCheck(approvedPayload(t, remote.PaymentStatus{Success: true, Status: "funded"}))

	require.Eventually(t, func() bool {
		return f.escrows.status("e1") == models.EscrowStatusFunded
	}, 2*time.Second, 5*time.Millisecond)

	_, err = f.svc.Withdraw(ctx, receiver, "e1")
	assert.ErrorIs(t, err, ErrLocked)

	f.svc.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	f.remote.withdraw = remote.Withdrawal{TxHash: "F00D", Principal: "1000", YieldEarned: "1", TotalReceived: "1001"}

	sum, err := f.svc.Withdraw(ctx, receiver, "e1")
	require.NoError(t, err)
	assert.Equal(t, "F00D", sum.TxHash)
	assert.Equal(t, models.EscrowStatusWithdrawn, f.escrows.status("e1"))
	assert.Contains(t, f.audit.actions(), "escrow_status_funded_to_withdrawn")
}

func TestWithdrawRejectsSecondRequestInFlight(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusActive, testNow.Add(-time.Hour)))
	f.remote.withdraw = remote.Withdrawal{TxHash: "AAA", Principal: "1000", YieldEarned: "1", TotalReceived: "1001"}
	ctx := context.Background()

	var second error
	f.remote.onWithdraw = func() {
		_, second = f.svc.Withdraw(ctx, sender, "e1")
	}

	_, err := f.svc.Withdraw(ctx, receiver, "e1")
	require.NoError(t, err)
	assert.ErrorIs(t, second, ErrInvalidStatus)
	assert.Equal(t, 1, f.remote.wCalls)

	p, err := f.payouts.GetByEscrow(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "AAA", p.TxHash)
}

func TestWithdrawKeepsPayoutOfConcurrentWinner(t *testing.T) {
	f := newEscrowFixture(t, escrowFixtureData("e1", models.EscrowStatusActive, testNow.Add(-time.Hour)))
	f.remote.withdraw = remote.Withdrawal{TxHash: "LATE", Principal: "1000", YieldEarned: "1", TotalReceived: "1001"}
	ctx := context.Background()

	// another api instance withdraws while our remote call is running
	f.remote.onWithdraw = func() {
		_, _ = f.escrows.UpdateStatus(ctx, "e1", models.EscrowStatusActive, models.EscrowStatusWithdrawn)
		_ = f.payouts.Save(ctx, &models.Payout{EscrowID: "e1", TxHash: "FIRST", YieldEarned: "1", Split: models.DefaultYieldSplit})
	}

	sum, err := f.svc.Withdraw(ctx, receiver, "e1")
	require.NoError(t, err)
	assert.Equal(t, "FIRST", sum.TxHash)

	p, err := f.payouts.GetByEscrow(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "FIRST", p.TxHash, "payout must not be overwritten")
	assert.NotContains(t, f.audit.actions(), "escrow_status_active_to_withdrawn")
}
