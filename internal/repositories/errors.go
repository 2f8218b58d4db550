package repositories

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sprout-escrow/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func timePtr(m models.Millis) *time.Time {
	if m.IsZero() {
		return nil
	}
	t := m.Time()
	return &t
}

func millis(t *time.Time) models.Millis {
	if t == nil {
		return 0
	}
	return models.MillisFromTime(*t)
}
