package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sprout-escrow/backend/internal/models"
)

// PayoutRepo keeps the result of each withdrawal so the payout page can be
// reopened after the fact.
type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

func (r *PayoutRepo) Save(ctx context.Context, p *models.Payout) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payouts (
			escrow_id, asset, principal, yield_earned, total_received,
			recipient, tx_hash, strategy, split_buyer, split_seller, split_protocol, released_at
		) VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5::text::numeric, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (escrow_id) DO UPDATE SET
			tx_hash = EXCLUDED.tx_hash,
			principal = EXCLUDED.principal,
			yield_earned = EXCLUDED.yield_earned,
			total_received = EXCLUDED.total_received,
			released_at = EXCLUDED.released_at
		RETURNING released_at
	`, p.EscrowID, p.Asset, p.Principal, p.YieldEarned, p.TotalReceived,
		p.Recipient, p.TxHash, p.Strategy, p.Split.Buyer, p.Split.Seller, p.Split.Protocol, p.ReleasedAt,
	).Scan(&p.ReleasedAt)
}

func (r *PayoutRepo) GetByEscrow(ctx context.Context, escrowID string) (*models.Payout, error) {
	var p models.Payout
	err := r.pool.QueryRow(ctx, `
		SELECT escrow_id, asset, principal::text, yield_earned::text, total_received::text,
		       recipient, tx_hash, strategy, split_buyer, split_seller, split_protocol, released_at
		FROM payouts WHERE escrow_id = $1
	`, escrowID).Scan(&p.EscrowID, &p.Asset, &p.Principal, &p.YieldEarned, &p.TotalReceived,
		&p.Recipient, &p.TxHash, &p.Strategy, &p.Split.Buyer, &p.Split.Seller, &p.Split.Protocol, &p.ReleasedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
