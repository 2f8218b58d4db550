package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sprout-escrow/backend/internal/models"
)

// EscrowRepo is the local mirror of escrow documents.
type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `id, title, asset, amount, yield_rate, lock_period_days,
	created_at, unlock_at, sender_wallet, receiver_wallet, status`

func scanEscrow(row pgx.Row) (models.Escrow, error) {
	var (
		e                  models.Escrow
		createdAt, unlocks *time.Time
	)
	err := row.Scan(&e.ID, &e.Title, &e.Asset, &e.Amount, &e.YieldRate, &e.LockPeriodDays,
		&createdAt, &unlocks, &e.SenderWallet, &e.ReceiverWallet, &e.Status)
	if err != nil {
		return models.Escrow{}, err
	}
	e.CreatedAt = millis(createdAt)
	e.UnlockAt = millis(unlocks)
	return e, nil
}

func collectEscrows(rows pgx.Rows) ([]models.Escrow, error) {
	defer rows.Close()

	escrows := []models.Escrow{}
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, e)
	}
	return escrows, rows.Err()
}

// ListByOwner returns escrows where addr is the sender OR the receiver, newest first.
func (r *EscrowRepo) ListByOwner(ctx context.Context, addr string) ([]models.Escrow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE sender_wallet = $1 OR receiver_wallet = $1
		ORDER BY created_at DESC NULLS LAST, id
	`, addr)
	if err != nil {
		return nil, err
	}
	return collectEscrows(rows)
}

func (r *EscrowRepo) GetByID(ctx context.Context, id string) (*models.Escrow, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// Upsert stores the document as the remote side returned it.
func (r *EscrowRepo) Upsert(ctx context.Context, e *models.Escrow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			asset = EXCLUDED.asset,
			amount = EXCLUDED.amount,
			yield_rate = EXCLUDED.yield_rate,
			lock_period_days = EXCLUDED.lock_period_days,
			created_at = EXCLUDED.created_at,
			unlock_at = EXCLUDED.unlock_at,
			sender_wallet = EXCLUDED.sender_wallet,
			receiver_wallet = EXCLUDED.receiver_wallet,
			status = EXCLUDED.status,
			updated_at = now()
	`, e.ID, e.Title, e.Asset, e.Amount, e.YieldRate, e.LockPeriodDays,
		timePtr(e.CreatedAt), timePtr(e.UnlockAt), e.SenderWallet, e.ReceiverWallet, e.Status)
	return err
}

// UpdateStatus moves an escrow from one status to another. It reports false
// when the escrow was not in status from.
func (r *EscrowRepo) UpdateStatus(ctx context.Context, id, from, to string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListMatured returns locked escrows whose unlock time is in (after, until].
func (r *EscrowRepo) ListMatured(ctx context.Context, after, until time.Time) ([]models.Escrow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE status IN ('active', 'funded', 'completed')
		  AND unlock_at > $1 AND unlock_at <= $2
		ORDER BY unlock_at
	`, after, until)
	if err != nil {
		return nil, err
	}
	return collectEscrows(rows)
}
