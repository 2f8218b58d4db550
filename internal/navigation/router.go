// Package navigation tracks which page each session is on. Pages never switch
// each other directly; they send a Message to the Router, which checks it
// against the transition table and announces the new Location.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/events"
)

type Page string

const (
	PageLanding       Page = "landing"
	PageConnectWallet Page = "connect_wallet"
	PageCreateEscrow  Page = "create_escrow"
	PageDashboard     Page = "dashboard"
	PagePayoutSummary Page = "payout_summary"
)

// Message kinds
const (
	MsgStartEscrow     = "start_escrow"
	MsgConnectWallet   = "connect_wallet"
	MsgWalletConnected = "wallet_connected"
	MsgEscrowCreated   = "escrow_created"
	MsgViewDashboard   = "view_dashboard"
	MsgReleaseFunds    = "release_funds"
	MsgCreateAnother   = "create_another"
	MsgToggleNetwork   = "toggle_network"
	MsgDisconnect      = "disconnect"
)

const (
	NetworkDevnet  = "devnet"
	NetworkMainnet = "mainnet"
)

var (
	ErrInvalidTransition = errors.New("message not allowed on this page")
	ErrUnknownMessage    = errors.New("unknown message")
	ErrWalletRequired    = errors.New("wallet not connected")
	ErrEscrowRequired    = errors.New("escrow_id is required")
)

type Message struct {
	Type     string `json:"type"`
	EscrowID string `json:"escrow_id,omitempty"`
	Wallet   string `json:"wallet,omitempty"`
}

// Location is a session's current page plus the state pages share.
type Location struct {
	Page     Page   `json:"page"`
	EscrowID string `json:"escrow_id,omitempty"` // payout summary target
	Wallet   string `json:"wallet,omitempty"`
	Network  string `json:"network"`
}

// transitions: message -> pages it may be sent from -> target page.
// A message not listed for the current page is rejected.
var transitions = map[string]map[Page]Page{
	MsgStartEscrow: {
		PageLanding: PageConnectWallet,
	},
	MsgConnectWallet: {
		PageConnectWallet: PageConnectWallet,
		PageCreateEscrow:  PageConnectWallet,
		PageDashboard:     PageConnectWallet,
		PagePayoutSummary: PageConnectWallet,
	},
	MsgWalletConnected: {
		PageLanding:       PageCreateEscrow,
		PageConnectWallet: PageCreateEscrow,
	},
	MsgEscrowCreated: {
		PageCreateEscrow: PageDashboard,
	},
	MsgViewDashboard: {
		PageConnectWallet: PageDashboard,
		PageCreateEscrow:  PageDashboard,
		PagePayoutSummary: PageDashboard,
	},
	MsgReleaseFunds: {
		PageDashboard: PagePayoutSummary,
	},
	MsgCreateAnother: {
		PageDashboard:     PageCreateEscrow,
		PagePayoutSummary: PageCreateEscrow,
	},
}

// pages that need a connected wallet
var walletPages = map[Page]bool{
	PageCreateEscrow:  true,
	PageDashboard:     true,
	PagePayoutSummary: true,
}

type Router struct {
	network string
	pub     events.Publisher
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[string]Location
}

// NewRouter creates a router. pub may be nil, then locations are not announced.
func NewRouter(defaultNetwork string, pub events.Publisher, log *zap.Logger) *Router {
	if defaultNetwork != NetworkMainnet {
		defaultNetwork = NetworkDevnet
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		network:  defaultNetwork,
		pub:      pub,
		log:      log,
		sessions: make(map[string]Location),
	}
}

// Current returns the session's location; new sessions start on the landing page.
func (r *Router) Current(session string) Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current(session)
}

func (r *Router) current(session string) Location {
	if loc, ok := r.sessions[session]; ok {
		return loc
	}
	return Location{Page: PageLanding, Network: r.network}
}

// Dispatch applies msg to the session and returns the new location.
func (r *Router) Dispatch(ctx context.Context, session string, msg Message) (Location, error) {
	r.mu.Lock()
	from := r.current(session)
	to, err := next(from, msg)
	if err != nil {
		r.mu.Unlock()
		return from, err
	}
	r.sessions[session] = to
	r.mu.Unlock()

	r.log.Debug("navigate",
		zap.String("session", session),
		zap.String("message", msg.Type),
		zap.String("from", string(from.Page)),
		zap.String("to", string(to.Page)),
	)

	if r.pub != nil {
		ev := events.Navigate(session, string(to.Page), to.EscrowID)
		ev.Payload["network"] = to.Network
		if err := r.pub.Publish(ctx, events.StreamSession, ev); err != nil {
			r.log.Warn("navigation publish failed", zap.String("session", session), zap.Error(err))
		}
	}
	return to, nil
}

// Forget drops the session state.
func (r *Router) Forget(session string) {
	r.mu.Lock()
	delete(r.sessions, session)
	r.mu.Unlock()
}

func next(from Location, msg Message) (Location, error) {
	switch msg.Type {
	case MsgDisconnect:
		return Location{Page: PageLanding, Network: from.Network}, nil
	case MsgToggleNetwork:
		to := from
		if from.Network == NetworkMainnet {
			to.Network = NetworkDevnet
		} else {
			to.Network = NetworkMainnet
		}
		return to, nil
	}

	table, ok := transitions[msg.Type]
	if !ok {
		return from, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	page, ok := table[from.Page]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, msg.Type, from.Page)
	}

	to := from
	to.Page = page
	to.EscrowID = ""

	switch msg.Type {
	case MsgWalletConnected:
		if msg.Wallet == "" {
			return from, ErrWalletRequired
		}
		to.Wallet = msg.Wallet
	case MsgReleaseFunds:
		if msg.EscrowID == "" {
			return from, ErrEscrowRequired
		}
		to.EscrowID = msg.EscrowID
	}

	if walletPages[to.Page] && to.Wallet == "" {
		return from, ErrWalletRequired
	}
	return to, nil
}
