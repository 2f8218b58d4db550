package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sprout-escrow/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Connect records a wallet that signed a login, reactivating it if it was disconnected.
func (r *WalletRepo) Connect(ctx context.Context, w *models.Wallet) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO wallets (address, network, kind, balance_xrp, balance_rlusd, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (address) DO UPDATE SET
			network = EXCLUDED.network,
			kind = EXCLUDED.kind,
			balance_xrp = EXCLUDED.balance_xrp,
			balance_rlusd = EXCLUDED.balance_rlusd,
			is_active = true,
			connected_at = now()
		RETURNING connected_at, is_active
	`, w.Address, w.Network, w.Kind, w.Balances.XRP, w.Balances.RLUSD).Scan(&w.ConnectedAt, &w.IsActive)
}

func (r *WalletRepo) Get(ctx context.Context, address string) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT address, network, kind, balance_xrp, balance_rlusd, connected_at, last_seen_at, is_active
		FROM wallets WHERE address = $1
	`, address).Scan(&w.Address, &w.Network, &w.Kind, &w.Balances.XRP, &w.Balances.RLUSD,
		&w.ConnectedAt, &w.LastSeenAt, &w.IsActive)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (r *WalletRepo) Touch(ctx context.Context, address string) error {
	_, err := r.pool.Exec(ctx, `UPDATE wallets SET last_seen_at = now() WHERE address = $1`, address)
	return err
}

func (r *WalletRepo) Disconnect(ctx context.Context, address string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE wallets SET is_active = false WHERE address = $1 AND is_active = true
	`, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
