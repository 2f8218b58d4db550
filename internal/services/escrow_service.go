package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/escrowcalc"
	"github.com/sprout-escrow/backend/internal/events"
	"github.com/sprout-escrow/backend/internal/models"
	"github.com/sprout-escrow/backend/internal/navigation"
	"github.com/sprout-escrow/backend/internal/rbac"
	"github.com/sprout-escrow/backend/internal/remote"
	"github.com/sprout-escrow/backend/internal/repositories"
	"github.com/sprout-escrow/backend/internal/xrpl"
)

const maxTitleLen = 120

type EscrowService struct {
	remote    Remote
	approvals *approval.Manager
	escrows   EscrowStore
	payouts   PayoutStore
	audit     AuditLogger
	publisher events.Publisher
	nav       Navigator
	explorer  xrpl.Explorer
	log       *zap.Logger

	withdrawing sync.Map // escrow id -> struct{}
	now         func() time.Time
}

func NewEscrowService(
	rem Remote,
	approvals *approval.Manager,
	escrows EscrowStore,
	payouts PayoutStore,
	audit AuditLogger,
	publisher events.Publisher,
	nav Navigator,
	explorer xrpl.Explorer,
	log *zap.Logger,
) *EscrowService {
	return &EscrowService{
		remote:    rem,
		approvals: approvals,
		escrows:   escrows,
		payouts:   payouts,
		audit:     audit,
		publisher: publisher,
		nav:       nav,
		explorer:  explorer,
		log:       log,
		now:       time.Now,
	}
}

// Dashboard is the dashboard page: derived views plus the summary row.
type Dashboard struct {
	Escrows []models.EscrowView   `json:"escrows"`
	Stats   models.DashboardStats `json:"stats"`
}

func (s *EscrowService) Dashboard(ctx context.Context, owner string) (*Dashboard, error) {
	escrows, err := s.escrows.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	return BuildDashboard(escrows, models.MillisFromTime(s.now())), nil
}

// BuildDashboard derives the display fields of escrows at now.
func BuildDashboard(escrows []models.Escrow, now models.Millis) *Dashboard {
	views, stats := escrowcalc.Dashboard(escrows, now)
	return &Dashboard{Escrows: views, Stats: stats}
}

func (s *EscrowService) Get(ctx context.Context, owner, id string) (*models.EscrowView, error) {
	e, err := s.authorize(ctx, owner, id, rbac.PermView)
	if err != nil {
		return nil, err
	}
	v := escrowcalc.Derive(*e, models.MillisFromTime(s.now()))
	return &v, nil
}

// authorize loads the escrow and checks that wallet may do perm on it.
func (s *EscrowService) authorize(ctx context.Context, wallet, id, perm string) (*models.Escrow, error) {
	e, err := s.escrows.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !rbac.Can(e, wallet, perm) {
		return nil, ErrForbidden
	}
	if rbac.IsFinancialOperation(perm) {
		s.log.Info("financial operation authorized",
			zap.String("escrow_id", id),
			zap.String("wallet", wallet),
			zap.String("role", rbac.RoleOf(e, wallet)),
			zap.String("permission", perm),
		)
	}
	return e, nil
}

// History is the action log of an escrow, newest first.
func (s *EscrowService) History(ctx context.Context, owner, id string) ([]models.AuditLog, error) {
	if _, err := s.authorize(ctx, owner, id, rbac.PermView); err != nil {
		return nil, err
	}
	return s.audit.History(ctx, "escrow", id, 50)
}

func (s *EscrowService) Estimate(amount float64, asset string, days int) (escrowcalc.Estimate, error) {
	est, err := escrowcalc.EstimateYield(amount, asset, days)
	if err != nil {
		return escrowcalc.Estimate{}, invalid("escrow", err.Error())
	}
	return est, nil
}

type CreateEscrowInput struct {
	Title          string  `json:"title"`
	Asset          string  `json:"asset"`
	Amount         float64 `json:"amount"`
	LockPeriodDays int     `json:"lockPeriod"`
	ReceiverWallet string  `json:"receiverWallet"`
}

func (in CreateEscrowInput) validate(sender string) error {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return invalid("title", "is required")
	case len(title) > maxTitleLen:
		return invalid("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	case !models.IsSupportedAsset(in.Asset):
		return invalid("asset", "must be XRP or RLUSD")
	case in.Amount <= 0:
		return invalid("amount", "must be positive")
	case in.LockPeriodDays < escrowcalc.MinLockPeriodDays || in.LockPeriodDays > escrowcalc.MaxLockPeriodDays:
		return invalid("lockPeriod", fmt.Sprintf("must be between %d and %d days", escrowcalc.MinLockPeriodDays, escrowcalc.MaxLockPeriodDays))
	}
	if in.Asset == models.AssetXRP {
		// в леджер уходит целое число drops
		if _, err := xrpl.DropsFromXRP(decimal.NewFromFloat(in.Amount)); err != nil {
			return invalid("amount", err.Error())
		}
	}
	if err := xrpl.ValidateAddress(in.ReceiverWallet); err != nil {
		return invalid("receiverWallet", err.Error())
	}
	if strings.TrimSpace(in.ReceiverWallet) == sender {
		return invalid("receiverWallet", "must differ from the sender")
	}
	return nil
}

// Create creates the escrow through the remote API and mirrors the returned document.
func (s *EscrowService) Create(ctx context.Context, sender string, in CreateEscrowInput) (*models.EscrowView, error) {
	if err := in.validate(sender); err != nil {
		return nil, err
	}
	strategy, err := escrowcalc.StrategyForAsset(in.Asset)
	if err != nil {
		return nil, invalid("asset", err.Error())
	}

	e, err := s.remote.CreateEscrow(ctx, models.EscrowDraft{
		Title:          strings.TrimSpace(in.Title),
		Asset:          in.Asset,
		Amount:         in.Amount,
		LockPeriodDays: in.LockPeriodDays,
		ReceiverWallet: strings.TrimSpace(in.ReceiverWallet),
		SenderWallet:   sender,
		YieldStrategy:  strategy.ID,
		YieldRate:      strategy.APY,
	})
	if err != nil {
		return nil, fmt.Errorf("create escrow: %w", err)
	}
	if e.Status == "" {
		e.Status = models.EscrowStatusAwaitingPayment
	}

	if err := s.escrows.Upsert(ctx, &e); err != nil {
		return nil, fmt.Errorf("save escrow %s: %w", e.ID, err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		Actor:      sender,
		ActorType:  "wallet",
		Action:     "escrow_created",
		EntityType: "escrow",
		EntityID:   e.ID,
		Meta:       map[string]any{"asset": e.Asset, "amount": e.Amount, "lock_period": e.LockPeriodDays, "strategy": strategy.ID},
	})
	s.publishChanged(ctx, &e)
	s.navigate(ctx, sender, navigation.Message{Type: navigation.MsgEscrowCreated})

	s.log.Info("escrow created", zap.String("escrow_id", e.ID), zap.String("sender", sender))

	v := escrowcalc.Derive(e, models.MillisFromTime(s.now()))
	return &v, nil
}

// StartPayment asks the sender's wallet to fund the escrow and polls for the
// confirmation. A pending payment for the same escrow is cancelled first.
func (s *EscrowService) StartPayment(ctx context.Context, sender, escrowID string) (approval.View, error) {
	e, err := s.authorize(ctx, sender, escrowID, rbac.PermPay)
	if err != nil {
		return approval.View{}, err
	}
	if !models.IsValidEscrowTransition(e.Status, models.EscrowStatusActive) {
		return approval.View{}, fmt.Errorf("%w: %s", ErrInvalidStatus, e.Status)
	}

	p, _, err := s.approvals.Start(ctx, approval.Flow{
		Kind:     approval.KindPayment,
		Key:      "payment:" + e.ID,
		Owner:    sender,
		Initiate: s.remote.PaymentInitiate(e.ID),
		Check:    s.remote.PaymentCheck(e.ID),
		OnResult: func(ctx context.Context, p *approval.Poller, res approval.Result) {
			s.onPayment(ctx, *e, res)
		},
	})
	if err != nil {
		return approval.View{}, err
	}
	return p.View(), nil
}

func (s *EscrowService) onPayment(ctx context.Context, e models.Escrow, res approval.Result) {
	_ = s.publisher.Publish(ctx, events.StreamApproval,
		events.ApprovalResolved(e.SenderWallet, res.RequestID, approval.KindPayment, string(res.State)))

	if res.State != approval.StateApproved {
		s.log.Info("escrow payment not approved",
			zap.String("escrow_id", e.ID),
			zap.String("state", string(res.State)),
			zap.Error(res.Err),
		)
		return
	}

	to := paidStatus(e.Status, res.Payload)
	ok, err := s.escrows.UpdateStatus(ctx, e.ID, e.Status, to)
	if err != nil {
		s.log.Error("failed to mark escrow paid", zap.String("escrow_id", e.ID), zap.Error(err))
		return
	}
	if !ok {
		s.log.Warn("escrow changed while payment was pending", zap.String("escrow_id", e.ID))
		return
	}
	from := e.Status
	e.Status = to

	_ = s.audit.Log(ctx, models.AuditLog{
		Actor:      e.SenderWallet,
		ActorType:  "wallet",
		Action:     fmt.Sprintf("escrow_status_%s_to_%s", from, to),
		EntityType: "escrow",
		EntityID:   e.ID,
		Meta:       map[string]any{"request_id": res.RequestID},
	})
	s.publishChanged(ctx, &e)
	s.log.Info("escrow funded", zap.String("escrow_id", e.ID), zap.String("status", to))
}

// paidStatus picks the status after a confirmed payment: the one the remote
// side reports if it is a legal next step, else active.
func paidStatus(from string, payload json.RawMessage) string {
	var st remote.PaymentStatus
	if json.Unmarshal(payload, &st) == nil {
		to := models.NormalizeEscrowStatus(st.Status)
		if to != "" && models.IsValidEscrowTransition(from, to) {
			return to
		}
	}
	return models.EscrowStatusActive
}

// ApprovalStatus returns a payment approval owned by the wallet.
func (s *EscrowService) ApprovalStatus(owner, requestID string) (approval.View, error) {
	p, ok := s.approvals.Get(requestID)
	if !ok || p.Kind() != approval.KindPayment || p.Owner() != owner {
		return approval.View{}, ErrNotFound
	}
	return p.View(), nil
}

func (s *EscrowService) CancelApproval(owner, requestID string) (approval.View, error) {
	p, ok := s.approvals.Get(requestID)
	if !ok || p.Kind() != approval.KindPayment || p.Owner() != owner {
		return approval.View{}, ErrNotFound
	}
	p.Cancel()
	return p.View(), nil
}

// Withdraw releases an unlocked escrow through the remote API and stores the payout.
func (s *EscrowService) Withdraw(ctx context.Context, owner, escrowID string) (*models.PayoutSummary, error) {
	e, err := s.authorize(ctx, owner, escrowID, rbac.PermWithdraw)
	if err != nil {
		return nil, err
	}
	now := models.MillisFromTime(s.now())
	if !escrowcalc.IsUnlockable(e.UnlockAt, now) {
		return nil, fmt.Errorf("%w: %d days remaining", ErrLocked, escrowcalc.DaysRemaining(e.UnlockAt, now))
	}
	if !models.IsValidEscrowTransition(e.Status, models.EscrowStatusWithdrawn) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, e.Status)
	}

	// один вывод на эскроу в пределах процесса
	if _, busy := s.withdrawing.LoadOrStore(e.ID, struct{}{}); busy {
		return nil, fmt.Errorf("%w: withdrawal already in progress", ErrInvalidStatus)
	}
	defer s.withdrawing.Delete(e.ID)

	w, err := s.remote.WithdrawEscrow(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("withdraw escrow: %w", err)
	}

	from := e.Status
	moved, err := s.escrows.UpdateStatus(ctx, e.ID, from, models.EscrowStatusWithdrawn)
	switch {
	case err != nil:
		// деньги уже ушли, поэтому только логируем
		s.log.Error("failed to mark escrow withdrawn", zap.String("escrow_id", e.ID), zap.Error(err))
	case !moved:
		// другой инстанс успел раньше: его payout уже записан
		s.log.Warn("escrow left status during withdrawal, payout not recorded again",
			zap.String("escrow_id", e.ID),
			zap.String("from", from),
			zap.String("tx_hash", w.TxHash),
		)
		if p, err := s.payouts.GetByEscrow(ctx, e.ID); err == nil {
			return s.summary(*p)
		}
		return nil, fmt.Errorf("%w: escrow is no longer %s", ErrInvalidStatus, from)
	}
	e.Status = models.EscrowStatusWithdrawn

	p := payoutFromWithdrawal(*e, w, s.now())
	if err := s.payouts.Save(ctx, &p); err != nil {
		s.log.Error("failed to save payout", zap.String("escrow_id", e.ID), zap.String("tx_hash", w.TxHash), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		Actor:      owner,
		ActorType:  "wallet",
		Action:     fmt.Sprintf("escrow_status_%s_to_%s", from, models.EscrowStatusWithdrawn),
		EntityType: "escrow",
		EntityID:   e.ID,
		Meta:       map[string]any{"tx_hash": w.TxHash, "total_received": w.TotalReceived},
	})
	s.publishChanged(ctx, e)
	s.navigate(ctx, owner, navigation.Message{Type: navigation.MsgReleaseFunds, EscrowID: e.ID})

	s.log.Info("escrow withdrawn", zap.String("escrow_id", e.ID), zap.String("tx_hash", w.TxHash))
	return s.summary(p)
}

func payoutFromWithdrawal(e models.Escrow, w remote.Withdrawal, now time.Time) models.Payout {
	p := models.Payout{
		EscrowID:      e.ID,
		Asset:         e.Asset,
		Principal:     w.Principal,
		YieldEarned:   w.YieldEarned,
		TotalReceived: w.TotalReceived,
		Recipient:     w.Recipient,
		TxHash:        w.TxHash,
		Split:         models.DefaultYieldSplit,
		ReleasedAt:    w.ReleasedAt.Time(),
	}
	if p.Principal == "" {
		p.Principal = escrowcalc.FormatAmount(e.Amount)
	}
	if p.YieldEarned == "" {
		p.YieldEarned = "0"
	}
	if p.TotalReceived == "" {
		p.TotalReceived = p.Principal
	}
	if p.Recipient == "" {
		p.Recipient = e.ReceiverWallet
	}
	if p.ReleasedAt.IsZero() {
		p.ReleasedAt = now.UTC()
	}
	if st, err := escrowcalc.StrategyForAsset(e.Asset); err == nil {
		p.Strategy = st.Title
	}
	return p
}

// PayoutSummary reopens the payout page of a withdrawn escrow.
func (s *EscrowService) PayoutSummary(ctx context.Context, owner, escrowID string) (*models.PayoutSummary, error) {
	if _, err := s.authorize(ctx, owner, escrowID, rbac.PermViewPayout); err != nil {
		return nil, err
	}
	p, err := s.payouts.GetByEscrow(ctx, escrowID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.summary(*p)
}

func (s *EscrowService) summary(p models.Payout) (*models.PayoutSummary, error) {
	buyer, seller, protocol, err := escrowcalc.SplitYield(p.YieldEarned, p.Split)
	if err != nil {
		return nil, fmt.Errorf("split yield of %s: %w", p.EscrowID, err)
	}
	return &models.PayoutSummary{
		Payout:       p,
		Buyer:        buyer,
		Seller:       seller,
		Protocol:     protocol,
		ExplorerURL:  s.explorer.Transaction(p.TxHash),
		RecipientURL: s.explorer.Account(p.Recipient),
	}, nil
}

func (s *EscrowService) publishChanged(ctx context.Context, e *models.Escrow) {
	err := s.publisher.Publish(ctx, events.StreamEscrow,
		events.EscrowChanged(e.ID, e.Status, e.SenderWallet, e.ReceiverWallet))
	if err != nil {
		s.log.Warn("failed to publish escrow change", zap.String("escrow_id", e.ID), zap.Error(err))
	}
}

func (s *EscrowService) navigate(ctx context.Context, session string, msg navigation.Message) {
	if _, err := s.nav.Dispatch(ctx, session, msg); err != nil {
		s.log.Debug("navigation skipped", zap.String("session", session), zap.String("message", msg.Type), zap.Error(err))
	}
}
