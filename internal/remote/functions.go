package remote

import (
	"context"
	"fmt"

	"github.com/sprout-escrow/backend/internal/models"
)

// SignRequest is a payload the user signs in the wallet app. URL is what the
// QR code encodes.
type SignRequest struct {
	UUID string `json:"uuid"`
	URL  string `json:"url"`
}

// LoginStatus is the answer of checkWalletLogin. Signed is nil until the user
// has acted on the request.
type LoginStatus struct {
	Signed   *bool           `json:"signed"`
	Expired  bool            `json:"expired"`
	Account  string          `json:"account"`
	Network  string          `json:"network,omitempty"`
	Balances models.Balances `json:"balances"`
}

type PaymentStatus struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	TxHash  string `json:"txHash,omitempty"`
}

type Withdrawal struct {
	TxHash        string        `json:"txHash"`
	Principal     string        `json:"principal"`
	YieldEarned   string        `json:"yieldEarned"`
	TotalReceived string        `json:"totalReceived"`
	Recipient     string        `json:"recipient"`
	ReleasedAt    models.Millis `json:"releasedAt"`
}

func (c *Client) RequestWalletLogin(ctx context.Context, network string) (SignRequest, error) {
	var out SignRequest
	err := c.call(ctx, FnRequestWalletLogin, map[string]string{"network": network}, &out)
	return out, err
}

func (c *Client) CheckWalletLogin(ctx context.Context, uuid string) (LoginStatus, error) {
	var out LoginStatus
	err := c.call(ctx, FnCheckWalletLogin, map[string]string{"uuid": uuid}, &out)
	return out, err
}

func (c *Client) CreateEscrow(ctx context.Context, draft models.EscrowDraft) (models.Escrow, error) {
	var out models.Escrow
	if err := c.call(ctx, FnCreateEscrow, draft, &out); err != nil {
		return models.Escrow{}, err
	}
	if out.ID == "" {
		return models.Escrow{}, fmt.Errorf("%s: %w: missing escrow id", FnCreateEscrow, ErrMalformedResponse)
	}
	out.Status = models.NormalizeEscrowStatus(out.Status)
	return out, nil
}

func (c *Client) RequestEscrowPayment(ctx context.Context, escrowID string) (SignRequest, error) {
	var out SignRequest
	err := c.call(ctx, FnRequestEscrowPayment, map[string]string{"escrowId": escrowID}, &out)
	return out, err
}

func (c *Client) ConfirmEscrowPayment(ctx context.Context, escrowID string) (PaymentStatus, error) {
	var out PaymentStatus
	err := c.call(ctx, FnConfirmEscrowPayment, map[string]string{"escrowId": escrowID}, &out)
	return out, err
}

func (c *Client) WithdrawEscrow(ctx context.Context, escrowID string) (Withdrawal, error) {
	var out Withdrawal
	if err := c.call(ctx, FnWithdrawEscrow, map[string]string{"escrowId": escrowID}, &out); err != nil {
		return Withdrawal{}, err
	}
	if out.TxHash == "" {
		return Withdrawal{}, fmt.Errorf("%s: %w: missing txHash", FnWithdrawEscrow, ErrMalformedResponse)
	}
	return out, nil
}
