package dto

import "github.com/sprout-escrow/backend/internal/approval"

type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ApprovalResponse is a pending or resolved sign request plus where to fetch its QR code.
type ApprovalResponse struct {
	approval.View
	Session string `json:"session,omitempty"`
	QRURL   string `json:"qr_url,omitempty"`
}

// WSMessage is what the websocket pushes to a wallet.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}
