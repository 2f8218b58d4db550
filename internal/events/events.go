package events

import "context"

// Streams
const (
	StreamEscrow   = "events:escrow"
	StreamApproval = "events:approval"
	StreamSession  = "events:session"
)

// Event types
const (
	EventEscrowChanged    = "escrow_changed"
	EventEscrowUnlockable = "escrow_unlockable"
	EventApprovalResolved = "approval_resolved"
	EventNavigate         = "navigate"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Str returns a string payload field, or "" if it is missing or not a string.
func (e Event) Str(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// Wallets returns the wallet addresses the event concerns.
func (e Event) Wallets() []string {
	var out []string
	for _, k := range []string{"sender_wallet", "receiver_wallet", "wallet"} {
		if s := e.Str(k); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EscrowChanged is published whenever an escrow document is written.
func EscrowChanged(escrowID, status, sender, receiver string) Event {
	return Event{Type: EventEscrowChanged, Payload: map[string]any{
		"escrow_id":       escrowID,
		"status":          status,
		"sender_wallet":   sender,
		"receiver_wallet": receiver,
	}}
}

func EscrowUnlockable(escrowID, sender, receiver string) Event {
	return Event{Type: EventEscrowUnlockable, Payload: map[string]any{
		"escrow_id":       escrowID,
		"sender_wallet":   sender,
		"receiver_wallet": receiver,
	}}
}

func ApprovalResolved(wallet, requestID, kind, state string) Event {
	return Event{Type: EventApprovalResolved, Payload: map[string]any{
		"wallet":     wallet,
		"request_id": requestID,
		"kind":       kind,
		"state":      state,
	}}
}

func Navigate(session, page, escrowID string) Event {
	return Event{Type: EventNavigate, Payload: map[string]any{
		"session":   session,
		"page":      page,
		"escrow_id": escrowID,
	}}
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
