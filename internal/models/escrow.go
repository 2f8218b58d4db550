package models

import "strings"

// Escrow statuses
const (
	EscrowStatusAwaitingPayment = "awaiting_payment"
	EscrowStatusActive          = "active"
	EscrowStatusFunded          = "funded"
	EscrowStatusCompleted       = "completed"
	EscrowStatusWithdrawn       = "withdrawn"
	EscrowStatusCancelled       = "cancelled"
)

// Supported assets
const (
	AssetXRP   = "XRP"
	AssetRLUSD = "RLUSD"
)

// Valid state transitions: from -> []to
var ValidEscrowTransitions = map[string][]string{
	EscrowStatusAwaitingPayment: {EscrowStatusFunded, EscrowStatusActive, EscrowStatusCancelled},
	EscrowStatusFunded:          {EscrowStatusActive, EscrowStatusCompleted, EscrowStatusWithdrawn, EscrowStatusCancelled},
	EscrowStatusActive:          {EscrowStatusCompleted, EscrowStatusWithdrawn},
	EscrowStatusCompleted:       {EscrowStatusWithdrawn},
	EscrowStatusWithdrawn:       {},
	EscrowStatusCancelled:       {},
}

// IsLocked reports whether the principal of an escrow in this status sits in
// the yield strategy.
func IsLocked(status string) bool {
	switch status {
	case EscrowStatusActive, EscrowStatusFunded, EscrowStatusCompleted:
		return true
	}
	return false
}

func IsValidEscrowTransition(from, to string) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// NormalizeEscrowStatus приводит статус из документа к нашему виду:
// удалённые функции пишут то "awaiting-payment", то "awaiting_payment".
func NormalizeEscrowStatus(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

func IsSupportedAsset(asset string) bool {
	return asset == AssetXRP || asset == AssetRLUSD
}

// Escrow is the read-only mirror of an escrow document owned by the remote store.
type Escrow struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Asset          string  `json:"asset"`
	Amount         float64 `json:"amount"`
	YieldRate      float64 `json:"yieldRate"`  // annualized fraction, 0.125 = 12.5%
	LockPeriodDays int     `json:"lockPeriod"` // days
	CreatedAt      Millis  `json:"createdAt"`
	UnlockAt       Millis  `json:"unlockAt"`
	SenderWallet   string  `json:"senderWallet"`
	ReceiverWallet string  `json:"receiverWallet"`
	Status         string  `json:"status"`
}

// OwnedBy reports whether addr is the sender or the receiver of the escrow.
func (e *Escrow) OwnedBy(addr string) bool {
	return addr != "" && (e.SenderWallet == addr || e.ReceiverWallet == addr)
}

// EscrowDraft is what the create form submits.
type EscrowDraft struct {
	Title          string  `json:"title"`
	Asset          string  `json:"asset"`
	Amount         float64 `json:"amount"`
	LockPeriodDays int     `json:"lockPeriod"`
	ReceiverWallet string  `json:"receiverWallet"`
	SenderWallet   string  `json:"senderWallet"`
	YieldStrategy  string  `json:"yieldStrategy"`
	YieldRate      float64 `json:"yieldRate"`
}

// EscrowView is an escrow with display fields recomputed for a given instant.
type EscrowView struct {
	Escrow
	ProgressPercent float64 `json:"progressPercent"`
	DaysRemaining   int     `json:"daysRemaining"`
	Unlockable      bool    `json:"unlockable"`
	ProjectedYield  float64 `json:"projectedYield"`
	TotalValue      float64 `json:"totalValue"`
}

// DashboardStats is the summary row above the escrow cards.
type DashboardStats struct {
	TotalLocked     float64 `json:"totalLocked"`
	TotalYield      float64 `json:"totalYield"`
	ActiveCount     int     `json:"activeCount"`
	UnlockableCount int     `json:"unlockableCount"`
}
