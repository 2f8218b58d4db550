package services

import (
	"context"
	"errors"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/models"
	"github.com/sprout-escrow/backend/internal/navigation"
	"github.com/sprout-escrow/backend/internal/remote"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("escrow does not belong to this wallet")
	ErrLocked            = errors.New("escrow is still locked")
	ErrInvalidStatus     = errors.New("escrow status does not allow this action")
	ErrUnsupportedWallet = errors.New("wallet is not supported on this network")
)

// ValidationError is a bad user input, reported back as 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

// Remote is the part of the callable API the services use.
type Remote interface {
	LoginInitiate(network string) approval.InitiateFunc
	LoginCheck() approval.CheckFunc
	PaymentInitiate(escrowID string) approval.InitiateFunc
	PaymentCheck(escrowID string) approval.CheckFunc
	CreateEscrow(ctx context.Context, draft models.EscrowDraft) (models.Escrow, error)
	WithdrawEscrow(ctx context.Context, escrowID string) (remote.Withdrawal, error)
}

type EscrowStore interface {
	ListByOwner(ctx context.Context, owner string) ([]models.Escrow, error)
	GetByID(ctx context.Context, id string) (*models.Escrow, error)
	Upsert(ctx context.Context, e *models.Escrow) error
	UpdateStatus(ctx context.Context, id, from, to string) (bool, error)
}

type WalletStore interface {
	Connect(ctx context.Context, w *models.Wallet) error
	Get(ctx context.Context, address string) (*models.Wallet, error)
	Touch(ctx context.Context, address string) error
	Disconnect(ctx context.Context, address string) error
}

type PayoutStore interface {
	Save(ctx context.Context, p *models.Payout) error
	GetByEscrow(ctx context.Context, escrowID string) (*models.Payout, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
	History(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditLog, error)
}

// Navigator moves a session between pages.
type Navigator interface {
	Dispatch(ctx context.Context, session string, msg navigation.Message) (navigation.Location, error)
	Forget(session string)
}
