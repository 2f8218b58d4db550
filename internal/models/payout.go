package models

import "time"

// YieldSplit is the share of earned yield, in percent, going to each party.
type YieldSplit struct {
	Buyer    int `json:"buyer"`
	Seller   int `json:"seller"`
	Protocol int `json:"protocol"`
}

var DefaultYieldSplit = YieldSplit{Buyer: 40, Seller: 40, Protocol: 20}

func (s YieldSplit) Valid() bool {
	return s.Buyer >= 0 && s.Seller >= 0 && s.Protocol >= 0 && s.Buyer+s.Seller+s.Protocol == 100
}

// Payout records what the remote withdrawal call released.
type Payout struct {
	EscrowID      string     `json:"escrowId"`
	Asset         string     `json:"asset"`
	Principal     string     `json:"principal"`
	YieldEarned   string     `json:"yieldEarned"`
	TotalReceived string     `json:"totalReceived"`
	Recipient     string     `json:"recipient"`
	TxHash        string     `json:"txHash"`
	Strategy      string     `json:"strategy"`
	Split         YieldSplit `json:"yieldSplit"`
	ReleasedAt    time.Time  `json:"releasedAt"`
}

type YieldShare struct {
	Percent int    `json:"percent"`
	Amount  string `json:"amount"`
}

// PayoutSummary is the payout page: the payout plus per-party yield amounts.
type PayoutSummary struct {
	Payout
	Buyer        YieldShare `json:"buyer"`
	Seller       YieldShare `json:"seller"`
	Protocol     YieldShare `json:"protocol"`
	ExplorerURL  string     `json:"explorerUrl"`
	RecipientURL string     `json:"recipientUrl,omitempty"`
}
