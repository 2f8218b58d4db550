package remote

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sprout-escrow/backend/internal/approval"
)

func (r SignRequest) approvalRequest() approval.Request {
	return approval.Request{ID: r.UUID, Reference: r.URL}
}

// LoginInitiate starts a wallet login on the given network.
func (c *Client) LoginInitiate(network string) approval.InitiateFunc {
	return func(ctx context.Context) (approval.Request, error) {
		req, err := c.RequestWalletLogin(ctx, network)
		if err != nil {
			return approval.Request{}, err
		}
		return req.approvalRequest(), nil
	}
}

// LoginCheck maps checkWalletLogin onto approval checks. The approved payload
// is the LoginStatus.
func (c *Client) LoginCheck() approval.CheckFunc {
	return func(ctx context.Context, requestID string) (approval.Check, error) {
		st, err := c.CheckWalletLogin(ctx, requestID)
		if err != nil {
			return approval.Check{}, err
		}
		return loginCheck(st)
	}
}

func loginCheck(st LoginStatus) (approval.Check, error) {
	switch {
	case st.Signed != nil && *st.Signed:
		if st.Account == "" {
			// подписано, но аккаунт ещё не пришёл; спросим снова
			return approval.Check{}, nil
		}
		payload, err := json.Marshal(st)
		if err != nil {
			return approval.Check{}, err
		}
		return approval.Check{Terminal: true, Approved: true, Result: payload}, nil
	case st.Signed != nil, st.Expired:
		return approval.Check{Terminal: true}, nil
	default:
		return approval.Check{}, nil
	}
}

// PaymentInitiate asks the wallet app to sign the escrow payment.
func (c *Client) PaymentInitiate(escrowID string) approval.InitiateFunc {
	return func(ctx context.Context) (approval.Request, error) {
		req, err := c.RequestEscrowPayment(ctx, escrowID)
		if err != nil {
			return approval.Request{}, err
		}
		return req.approvalRequest(), nil
	}
}

// PaymentCheck confirms by escrow ID; the request ID is not used by the remote side.
func (c *Client) PaymentCheck(escrowID string) approval.CheckFunc {
	return func(ctx context.Context, _ string) (approval.Check, error) {
		st, err := c.ConfirmEscrowPayment(ctx, escrowID)
		if err != nil {
			return approval.Check{}, err
		}
		return paymentCheck(st)
	}
}

var paymentDenied = map[string]bool{
	"rejected":  true,
	"expired":   true,
	"cancelled": true,
	"failed":    true,
}

func paymentCheck(st PaymentStatus) (approval.Check, error) {
	if st.Success {
		payload, err := json.Marshal(st)
		if err != nil {
			return approval.Check{}, err
		}
		return approval.Check{Terminal: true, Approved: true, Result: payload}, nil
	}
	if paymentDenied[strings.ToLower(st.Status)] {
		return approval.Check{Terminal: true}, nil
	}
	return approval.Check{}, nil
}
