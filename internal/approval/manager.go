package approval

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Flow describes one approval workflow to run.
type Flow struct {
	Kind string
	// Key identifies the flow; starting a flow cancels the pending one with the same key.
	Key   string
	Owner string

	Initiate InitiateFunc
	Check    CheckFunc

	// OnResult is called once with the terminal result, from a manager goroutine.
	OnResult func(ctx context.Context, p *Poller, res Result)
}

type ManagerConfig struct {
	Interval    time.Duration
	MaxDuration time.Duration
	// Retention is how long resolved approvals stay queryable by request ID.
	Retention time.Duration
}

// Manager owns the running pollers. At most one poller is pending per flow key.
type Manager struct {
	ctx context.Context
	cfg ManagerConfig
	rec Recorder
	log *zap.Logger

	mu    sync.Mutex
	byKey map[string]*Poller
	byID  map[string]*Poller
	wg    sync.WaitGroup
}

// NewManager creates a manager whose poll loops live as long as ctx.
func NewManager(ctx context.Context, cfg ManagerConfig, rec Recorder, log *zap.Logger) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		ctx:   ctx,
		cfg:   cfg,
		rec:   rec,
		log:   log,
		byKey: make(map[string]*Poller),
		byID:  make(map[string]*Poller),
	}
}

// Start cancels any pending flow with the same key, issues the initiating
// call with ctx and, on success, polls in the background.
func (m *Manager) Start(ctx context.Context, flow Flow) (*Poller, Request, error) {
	p := NewPoller(Options{
		Kind:        flow.Kind,
		Owner:       flow.Owner,
		Interval:    m.cfg.Interval,
		MaxDuration: m.cfg.MaxDuration,
		Log:         m.log,
		Recorder:    m.rec,
	})

	m.mu.Lock()
	prev := m.byKey[flow.Key]
	m.byKey[flow.Key] = p
	m.mu.Unlock()

	if prev != nil {
		m.log.Info("replacing pending approval", zap.String("key", flow.Key), zap.String("request_id", prev.Request().ID))
		prev.Cancel()
	}

	req, err := p.Begin(ctx, flow.Initiate)
	if err != nil {
		m.release(flow.Key, p)
		return nil, Request{}, err
	}

	m.mu.Lock()
	m.byID[req.ID] = p
	m.mu.Unlock()

	out, err := p.Poll(m.ctx, flow.Check)
	if err != nil {
		// replaced between Begin and Poll
		m.release(flow.Key, p)
		return nil, Request{}, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res := <-out
		m.release(flow.Key, p)
		if flow.OnResult != nil {
			flow.OnResult(m.ctx, p, res)
		}
	}()

	return p, req, nil
}

func (m *Manager) release(key string, p *Poller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byKey[key] == p {
		delete(m.byKey, key)
	}
}

// Get looks a poller up by request ID.
func (m *Manager) Get(requestID string) (*Poller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[requestID]
	return p, ok
}

// Pending returns the pending poller for a flow key, if any.
func (m *Manager) Pending(key string) (*Poller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byKey[key]
	return p, ok
}

// Cancel cancels the approval with the given request ID.
func (m *Manager) Cancel(requestID string) bool {
	p, ok := m.Get(requestID)
	if !ok {
		return false
	}
	p.Cancel()
	return true
}

// Prune forgets resolved approvals older than the retention period.
func (m *Manager) Prune(now time.Time) int {
	cutoff := now.Add(-m.cfg.Retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, p := range m.byID {
		if p.resolvedBefore(cutoff) {
			delete(m.byID, id)
			n++
		}
	}
	return n
}

// Run prunes periodically until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Prune(now); n > 0 {
				m.log.Debug("pruned resolved approvals", zap.Int("count", n))
			}
		}
	}
}

// Shutdown cancels every pending approval and waits for result handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	pending := make([]*Poller, 0, len(m.byKey))
	for _, p := range m.byKey {
		pending = append(pending, p)
	}
	m.mu.Unlock()

	for _, p := range pending {
		p.Cancel()
	}
	m.wg.Wait()
}
