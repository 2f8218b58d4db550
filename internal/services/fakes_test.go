package services

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/events"
	"github.com/sprout-escrow/backend/internal/models"
	"github.com/sprout-escrow/backend/internal/remote"
	"github.com/sprout-escrow/backend/internal/repositories"
)

const (
	sender   = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	receiver = "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY"
	stranger = "rrrrrrrrrrrrrrrrrrrrrhoLvTp"
)

// fakeRemote answers checks from a settable status.
type fakeRemote struct {
	mu sync.Mutex

	initErr     error
	requests    int
	checkResult approval.Check
	checkErr    error

	created  []models.EscrowDraft
	escrow   models.Escrow
	withdraw remote.Withdrawal
	wErr     error
	wCalls   int
	// onWithdraw runs inside WithdrawEscrow before it answers.
	onWithdraw func()
}

func (f *fakeRemote) initiate(prefix string) approval.InitiateFunc {
	return func(ctx context.Context) (approval.Request, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.initErr != nil {
			return approval.Request{}, f.initErr
		}
		f.requests++
		id := prefix + "-" + strconv.Itoa(f.requests)
		return approval.Request{ID: id, Reference: "https://xumm.app/sign/" + id}, nil
	}
}

func (f *fakeRemote) check(ctx context.Context, id string) (approval.Check, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkResult, f.checkErr
}

func (f *fakeRemote) setCheck(c approval.Check) {
	f.mu.Lock()
	f.checkResult = c
	f.mu.Unlock()
}

func (f *fakeRemote) LoginInitiate(network string) approval.InitiateFunc { return f.initiate("login") }
func (f *fakeRemote) LoginCheck() approval.CheckFunc                     { return f.check }
func (f *fakeRemote) PaymentInitiate(id string) approval.InitiateFunc    { return f.initiate("pay") }
func (f *fakeRemote) PaymentCheck(id string) approval.CheckFunc          { return f.check }

func (f *fakeRemote) CreateEscrow(ctx context.Context, draft models.EscrowDraft) (models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, draft)
	e := f.escrow
	e.Title = draft.Title
	e.Asset = draft.Asset
	e.Amount = draft.Amount
	e.LockPeriodDays = draft.LockPeriodDays
	e.SenderWallet = draft.SenderWallet
	e.ReceiverWallet = draft.ReceiverWallet
	e.YieldRate = draft.YieldRate
	return e, nil
}

func (f *fakeRemote) WithdrawEscrow(ctx context.Context, id string) (remote.Withdrawal, error) {
	f.mu.Lock()
	f.wCalls++
	hook := f.onWithdraw
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.withdraw, f.wErr
}

func approvedPayload(t *testing.T, v any) approval.Check {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return approval.Check{Terminal: true, Approved: true, Result: raw}
}

type memEscrows struct {
	mu   sync.Mutex
	byID map[string]models.Escrow
}

func newMemEscrows(es ...models.Escrow) *memEscrows {
	m := &memEscrows{byID: make(map[string]models.Escrow)}
	for _, e := range es {
		m.byID[e.ID] = e
	}
	return m
}

func (m *memEscrows) ListByOwner(ctx context.Context, owner string) ([]models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Escrow
	for _, e := range m.byID {
		if e.OwnedBy(owner) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEscrows) GetByID(ctx context.Context, id string) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &e, nil
}

func (m *memEscrows) Upsert(ctx context.Context, e *models.Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[e.ID] = *e
	return nil
}

func (m *memEscrows) UpdateStatus(ctx context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	m.byID[id] = e
	return true, nil
}

func (m *memEscrows) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

type memWallets struct {
	mu sync.Mutex
	m  map[string]models.Wallet
}

func newMemWallets() *memWallets { return &memWallets{m: make(map[string]models.Wallet)} }

func (w *memWallets) Connect(ctx context.Context, wl *models.Wallet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wl.ConnectedAt = time.Now()
	w.m[wl.Address] = *wl
	return nil
}

func (w *memWallets) Get(ctx context.Context, addr string) (*models.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wl, ok := w.m[addr]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &wl, nil
}

func (w *memWallets) Touch(ctx context.Context, addr string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wl, ok := w.m[addr]
	if !ok {
		return repositories.ErrNotFound
	}
	now := time.Now()
	wl.LastSeenAt = &now
	w.m[addr] = wl
	return nil
}

func (w *memWallets) Disconnect(ctx context.Context, addr string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wl, ok := w.m[addr]
	if !ok {
		return repositories.ErrNotFound
	}
	wl.IsActive = false
	w.m[addr] = wl
	return nil
}

type memPayouts struct {
	mu sync.Mutex
	m  map[string]models.Payout
}

func newMemPayouts() *memPayouts { return &memPayouts{m: make(map[string]models.Payout)} }

func (p *memPayouts) Save(ctx context.Context, po *models.Payout) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[po.EscrowID] = *po
	return nil
}

func (p *memPayouts) GetByEscrow(ctx context.Context, id string) (*models.Payout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.m[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &po, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *memAudit) Log(ctx context.Context, e models.AuditLog) error {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return nil
}

func (a *memAudit) History(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditLog
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := a.entries[i]
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// recordBus collects everything published on a stream.
type recordBus struct {
	*events.MemoryBus
	mu  sync.Mutex
	got map[string][]events.Event
}

func newRecordBus(t *testing.T) *recordBus {
	b := &recordBus{MemoryBus: events.NewMemoryBus(), got: make(map[string][]events.Event)}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, s := range []string{events.StreamEscrow, events.StreamApproval, events.StreamSession} {
		stream := s
		_ = b.Subscribe(ctx, stream, func(e events.Event) {
			b.mu.Lock()
			b.got[stream] = append(b.got[stream], e)
			b.mu.Unlock()
		})
	}
	return b
}

func (b *recordBus) published(stream string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.got[stream]...)
}

func newTestManager(t *testing.T) *approval.Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := approval.NewManager(ctx, approval.ManagerConfig{
		Interval:    5 * time.Millisecond,
		MaxDuration: 5 * time.Second,
		Retention:   time.Minute,
	}, nil, zap.NewNop())
	t.Cleanup(func() {
		m.Shutdown()
		cancel()
	})
	return m
}
