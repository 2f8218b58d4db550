package models

import "time"

// Wallet kinds offered on the connect page.
const (
	WalletXUMM   = "xumm"
	WalletTangem = "tangem"
	WalletDevnet = "devnet"
)

type Balances struct {
	XRP   string `json:"xrp"`
	RLUSD string `json:"rlusd"`
}

// Wallet is a wallet that signed a login request through the remote API.
type Wallet struct {
	Address     string     `json:"address"` // classic r-address
	Network     string     `json:"network"` // devnet/mainnet
	Kind        string     `json:"kind"`
	Balances    Balances   `json:"balances"`
	ConnectedAt time.Time  `json:"connected_at"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

type WalletOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Supported   bool   `json:"supported"`
	Recommended bool   `json:"recommended"`
}

// WalletOptions returns the wallets the connect page offers on the given network.
func WalletOptions(network string) []WalletOption {
	return []WalletOption{
		{ID: WalletXUMM, Name: "XUMM", Description: "The most popular XRPL wallet", Supported: true, Recommended: true},
		{ID: WalletTangem, Name: "Tangem", Description: "Hardware wallet security", Supported: true},
		{ID: WalletDevnet, Name: "Devnet Wallet", Description: "For testing purposes only", Supported: network == "devnet"},
	}
}

func IsWalletSupported(kind, network string) bool {
	for _, o := range WalletOptions(network) {
		if o.ID == kind {
			return o.Supported
		}
	}
	return false
}
