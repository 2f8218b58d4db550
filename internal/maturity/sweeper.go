// Package maturity finds escrows whose lock period ended and announces them,
// so open dashboards flip the withdraw button without waiting for a reload.
package maturity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/events"
	"github.com/sprout-escrow/backend/internal/models"
)

const cursorKey = "maturity_sweep"

// FirstRunLookback is how far back the first sweep looks when no cursor is stored.
const FirstRunLookback = 24 * time.Hour

type EscrowSource interface {
	ListMatured(ctx context.Context, after, until time.Time) ([]models.Escrow, error)
}

type Cursor interface {
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}

type Recorder interface {
	EscrowsMatured(n int)
}

type Sweeper struct {
	escrows   EscrowSource
	cursor    Cursor
	publisher events.Publisher
	rec       Recorder
	log       *zap.Logger
}

func NewSweeper(escrows EscrowSource, cursor Cursor, publisher events.Publisher, rec Recorder, log *zap.Logger) *Sweeper {
	return &Sweeper{escrows: escrows, cursor: cursor, publisher: publisher, rec: rec, log: log}
}

// Sweep announces every escrow that unlocked in (last sweep, now]. The cursor
// only moves forward once all of them were published.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	after, err := s.cursor.GetTime(ctx, cursorKey)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	if after.IsZero() {
		after = now.Add(-FirstRunLookback)
	}
	if !now.After(after) {
		return 0, nil
	}

	matured, err := s.escrows.ListMatured(ctx, after, now)
	if err != nil {
		return 0, fmt.Errorf("list matured escrows: %w", err)
	}

	for _, e := range matured {
		if err := s.publisher.Publish(ctx, events.StreamEscrow,
			events.EscrowUnlockable(e.ID, e.SenderWallet, e.ReceiverWallet)); err != nil {
			return 0, fmt.Errorf("publish %s: %w", e.ID, err)
		}
		s.log.Info("escrow unlocked", zap.String("escrow_id", e.ID), zap.Time("unlock_at", e.UnlockAt.Time()))
	}

	if err := s.cursor.SetTime(ctx, cursorKey, now); err != nil {
		return len(matured), fmt.Errorf("save cursor: %w", err)
	}
	if s.rec != nil {
		s.rec.EscrowsMatured(len(matured))
	}
	return len(matured), nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Sweep(ctx, now)
			if err != nil {
				s.log.Error("maturity sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("maturity sweep", zap.Int("unlocked", n))
			}
		}
	}
}
