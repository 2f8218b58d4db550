package dto

type StartLoginRequest struct {
	// Session identifies the browser tab; a new login from the same session
	// replaces the pending one.
	Session string `json:"session"`
	Kind    string `json:"kind"` // xumm / tangem / devnet
}

type CreateEscrowRequest struct {
	Title          string  `json:"title"`
	Asset          string  `json:"asset"`
	Amount         float64 `json:"amount"`
	LockPeriodDays int     `json:"lockPeriod"`
	ReceiverWallet string  `json:"receiverWallet"`
}

type EstimateRequest struct {
	Asset          string  `json:"asset"`
	Amount         float64 `json:"amount"`
	LockPeriodDays int     `json:"lockPeriod"`
}

type NavigateRequest struct {
	Type     string `json:"type"`
	EscrowID string `json:"escrow_id,omitempty"`
}
