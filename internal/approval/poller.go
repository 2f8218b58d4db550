package approval

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxDuration = 5 * time.Minute
)

type Options struct {
	Kind  string
	Owner string // wallet address the approval belongs to, empty for logins

	// Interval between status checks.
	Interval time.Duration
	// MaxDuration bounds the whole poll; reaching it fails with ErrTimeout.
	MaxDuration time.Duration

	Log      *zap.Logger
	Recorder Recorder
}

// Poller follows one approval request through
// idle → requesting → pending → approved | cancelled | failed.
//
// A Poller is single use. Cancel must not be called from inside the CheckFunc.
type Poller struct {
	opts Options
	log  *zap.Logger
	rec  Recorder

	mu         sync.Mutex
	state      State
	req        Request
	result     Result
	attempts   int
	lastErr    error
	resolvedAt time.Time
	cancel     context.CancelFunc
	done       chan struct{} // closed when the poll loop has exited
}

func NewPoller(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Poller{
		opts:  opts,
		log:   opts.Log.With(zap.String("kind", opts.Kind)),
		rec:   opts.Recorder,
		state: StateIdle,
	}
}

// Begin issues the initiating call. Errors come back as *RequestError and
// leave the poller failed; nothing is retried.
func (p *Poller) Begin(ctx context.Context, initiate InitiateFunc) (Request, error) {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return Request{}, ErrAlreadyStarted
	}
	p.state = StateRequesting
	p.mu.Unlock()

	req, err := initiate(ctx)
	if err == nil {
		err = req.validate()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRequesting {
		// cancelled while the call was in flight
		return Request{}, ErrCancelled
	}

	if err != nil {
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			reqErr = &RequestError{Err: err}
		}
		p.state = StateFailed
		p.result = Result{State: StateFailed, Err: reqErr}
		p.resolvedAt = time.Now()
		p.rec.RequestFailed(p.opts.Kind)
		p.log.Warn("approval request failed", zap.Error(err))
		return Request{}, reqErr
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	p.req = req
	p.state = StatePending
	p.result = Result{RequestID: req.ID, State: StatePending}
	p.rec.PollStarted(p.opts.Kind)
	p.log.Info("approval pending", zap.String("request_id", req.ID))
	return req, nil
}

// Poll starts the status loop. The returned channel receives exactly one
// terminal Result and is then closed.
func (p *Poller) Poll(ctx context.Context, check CheckFunc) (<-chan Result, error) {
	p.mu.Lock()
	if p.state != StatePending || p.done != nil {
		p.mu.Unlock()
		return nil, ErrNotPending
	}
	loopCtx, cancel := context.WithTimeout(ctx, p.opts.MaxDuration)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	id := p.req.ID
	p.mu.Unlock()

	out := make(chan Result, 1)
	go p.run(loopCtx, cancel, done, check, id, out)
	return out, nil
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, check CheckFunc, id string, out chan<- Result) {
	defer close(done)
	defer cancel()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	deliver := func() {
		out <- p.Result()
		close(out)
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				p.resolve(StateFailed, nil, ErrTimeout)
			} else {
				p.resolve(StateCancelled, nil, ErrCancelled)
			}
			deliver()
			return

		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			if !p.isPending() {
				deliver()
				return
			}

			p.rec.Checked(p.opts.Kind)
			c, err := check(ctx, id)

			// результат после отмены или таймаута отбрасываем
			if ctx.Err() != nil || !p.isPending() {
				continue
			}

			if err != nil {
				p.noteTransient(id, err)
				continue
			}
			if !c.Terminal {
				continue
			}

			if c.Approved {
				p.resolve(StateApproved, c.Result, nil)
			} else {
				p.resolve(StateFailed, c.Result, ErrDenied)
			}
			deliver()
			return
		}
	}
}

func (p *Poller) noteTransient(id string, err error) {
	p.mu.Lock()
	p.attempts++
	terr := &TransientPollError{RequestID: id, Attempt: p.attempts, Err: err}
	p.lastErr = terr
	p.mu.Unlock()

	p.rec.TransientError(p.opts.Kind)
	p.log.Warn("status check failed, retrying", zap.Error(terr))
}

// resolve moves a pending poller to a terminal state. Only the first call wins.
func (p *Poller) resolve(state State, payload json.RawMessage, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePending {
		return false
	}
	p.state = state
	p.result = Result{RequestID: p.req.ID, State: state, Payload: payload, Err: err}
	p.resolvedAt = time.Now()
	p.rec.PollResolved(p.opts.Kind, state)
	p.log.Info("approval resolved",
		zap.String("request_id", p.req.ID),
		zap.String("state", string(state)),
		zap.Error(err),
	)
	return true
}

func (p *Poller) isPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StatePending
}

// Cancel stops the poller. It is idempotent; once it returns the CheckFunc
// will not be invoked again and a result still in flight is dropped.
func (p *Poller) Cancel() {
	p.mu.Lock()
	prev := p.state
	if !prev.Terminal() {
		p.state = StateCancelled
		p.result = Result{RequestID: p.req.ID, State: StateCancelled, Err: ErrCancelled}
		p.resolvedAt = time.Now()
		if prev == StatePending {
			p.rec.PollResolved(p.opts.Kind, StateCancelled)
		}
		p.log.Info("approval cancelled", zap.String("request_id", p.req.ID), zap.String("from", string(prev)))
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Wait blocks until the poll loop has finished or ctx is done.
func (p *Poller) Wait(ctx context.Context) (Result, error) {
	p.mu.Lock()
	state, done := p.state, p.done
	p.mu.Unlock()

	if done == nil {
		if state.Terminal() {
			return p.Result(), nil
		}
		return Result{}, ErrNotPending
	}

	select {
	case <-done:
		return p.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *Poller) Request() Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req
}

func (p *Poller) Kind() string  { return p.opts.Kind }
func (p *Poller) Owner() string { return p.opts.Owner }

// View is a JSON-friendly snapshot for status endpoints.
type View struct {
	RequestID  string          `json:"request_id"`
	Reference  string          `json:"reference"`
	Kind       string          `json:"kind"`
	State      State           `json:"state"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
	Attempts   int             `json:"failed_checks,omitempty"`
	LastError  string          `json:"last_check_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

func (p *Poller) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{
		RequestID: p.req.ID,
		Reference: p.req.Reference,
		Kind:      p.opts.Kind,
		State:     p.state,
		Payload:   p.result.Payload,
		Attempts:  p.attempts,
		CreatedAt: p.req.CreatedAt,
	}
	if p.result.Err != nil {
		v.Error = p.result.Err.Error()
	}
	if p.lastErr != nil {
		v.LastError = p.lastErr.Error()
	}
	if !p.resolvedAt.IsZero() {
		t := p.resolvedAt
		v.ResolvedAt = &t
	}
	return v
}

func (p *Poller) resolvedBefore(t time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Terminal() && !p.resolvedAt.IsZero() && p.resolvedAt.Before(t)
}
