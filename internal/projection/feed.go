// Package projection keeps per-owner read-only mirrors of escrow records and
// pushes them to subscribers as full snapshots whenever something changes.
package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/events"
	"github.com/sprout-escrow/backend/internal/models"
)

var ErrClosed = errors.New("subscription closed")

// SubscriptionError means the feed could not load records for an owner.
// The subscription is over; the client has to subscribe again.
type SubscriptionError struct {
	Owner string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("escrow feed for %s failed: %v", e.Owner, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// Source loads every escrow where owner is the sender or the receiver.
type Source interface {
	ListByOwner(ctx context.Context, owner string) ([]models.Escrow, error)
}

// Observer is notified about subscription lifecycle, e.g. for metrics.
type Observer interface {
	SubscriberOpened()
	SubscriberClosed()
	FeedError()
}

type nopObserver struct{}

func (nopObserver) SubscriberOpened() {}
func (nopObserver) SubscriberClosed() {}
func (nopObserver) FeedError()        {}

// Snapshot replaces whatever the subscriber held before.
type Snapshot struct {
	Owner   string          `json:"owner"`
	Escrows []models.Escrow `json:"escrows"`
	At      time.Time       `json:"at"`
}

type Feed struct {
	src Source
	obs Observer
	log *zap.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewFeed(src Source, obs Observer, log *zap.Logger) *Feed {
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		src:  src,
		obs:  obs,
		log:  log,
		subs: make(map[*Subscription]struct{}),
	}
}

// Listen subscribes the feed to escrow notifications. Each one reloads the
// subscriptions of the wallets it names, or all of them if it names none.
func (f *Feed) Listen(ctx context.Context, sub events.Subscriber) error {
	return sub.Subscribe(ctx, events.StreamEscrow, f.Notify)
}

// Notify schedules a reload for the subscriptions an event concerns.
func (f *Feed) Notify(e events.Event) {
	wallets := e.Wallets()

	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		if len(wallets) == 0 || contains(wallets, s.owner) {
			s.kick()
		}
	}
}

// Subscribe loads the initial snapshot and keeps the subscription fresh until
// ctx is done, Close is called, or a reload fails.
func (f *Feed) Subscribe(ctx context.Context, owner string) (*Subscription, error) {
	if owner == "" {
		return nil, &SubscriptionError{Owner: owner, Err: errors.New("owner address is required")}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		owner:   owner,
		updates: make(chan Snapshot, 1),
		wake:    make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	// регистрируемся до первой загрузки: уведомление, пришедшее во время
	// чтения, оставит wake взведённым и run перечитает снимок
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	snap, err := f.load(ctx, owner)
	if err != nil {
		f.mu.Lock()
		delete(f.subs, s)
		f.mu.Unlock()
		cancel()
		f.obs.FeedError()
		return nil, err
	}
	s.updates <- snap
	f.obs.SubscriberOpened()

	go f.run(ctx, s)
	return s, nil
}

func (f *Feed) load(ctx context.Context, owner string) (Snapshot, error) {
	escrows, err := f.src.ListByOwner(ctx, owner)
	if err != nil {
		return Snapshot{}, &SubscriptionError{Owner: owner, Err: err}
	}
	if escrows == nil {
		escrows = []models.Escrow{}
	}
	return Snapshot{Owner: owner, Escrows: escrows, At: time.Now()}, nil
}

func (f *Feed) run(ctx context.Context, s *Subscription) {
	defer func() {
		f.mu.Lock()
		delete(f.subs, s)
		f.mu.Unlock()
		f.obs.SubscriberClosed()
		s.fail(ErrClosed)
		close(s.updates)
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			snap, err := f.load(ctx, s.owner)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				f.obs.FeedError()
				f.log.Warn("escrow feed reload failed", zap.String("owner", s.owner), zap.Error(err))
				s.fail(err)
				return
			}
			s.replace(snap)
		}
	}
}

// Subscribers returns how many subscriptions are open.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Subscription is one owner's live view. Updates holds at most one pending
// snapshot; an unread snapshot is replaced by a newer one.
type Subscription struct {
	owner   string
	updates chan Snapshot
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

func (s *Subscription) Owner() string { return s.owner }

// Updates is closed when the subscription ends; check Err afterwards.
func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

// Err returns the *SubscriptionError that ended the subscription, ErrClosed
// after Close or context cancellation, or nil while it is live.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription and waits for its goroutine. Safe to call twice.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.err == nil {
		s.err = ErrClosed
	}
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

func (s *Subscription) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) replace(snap Snapshot) {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
